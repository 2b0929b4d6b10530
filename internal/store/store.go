package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by a Medium when the key has never been written.
var ErrNotFound = errors.New("key not found")

// ErrMalformedData is returned by Adapter.Read when the durable blob
// cannot be decoded into a notification collection.
var ErrMalformedData = errors.New("malformed stored data")

// Revision identifies one durable write of a key.
type Revision struct {
	// Seq changes on every write. Backends that keep a counter make it
	// increase monotonically; others derive it from the stored bytes.
	Seq int64

	// Writer is the instance id passed to Set, when the backend records it.
	Writer string

	UpdatedAt time.Time
}

// Medium is a durable key-value store holding one serialized blob per key.
type Medium interface {
	// Get returns the blob stored under key and its revision, or
	// ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, Revision, error)

	// Set replaces the blob stored under key.
	Set(ctx context.Context, key string, value []byte, writer string) (Revision, error)

	// Revision returns the current revision of key without reading the
	// blob, or ErrNotFound.
	Revision(ctx context.Context, key string) (Revision, error)

	Close() error
}

// StorageError wraps a failed durable read or write.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
