package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/finance-dashboard/internal/model"
)

// ioTimeout bounds a single durable read or write.
const ioTimeout = 5 * time.Second

// Adapter reads and writes the notification collection as a single JSON
// array stored under one key. Each Adapter has its own instance id, which
// is recorded as the writer of every blob it stores, and remembers the
// last revision it read or wrote so it can tell when another instance
// has touched the key.
type Adapter struct {
	medium     Medium
	key        string
	instanceID string

	mu   sync.Mutex
	last Revision
}

// NewAdapter returns an Adapter for key on m with a fresh instance id.
func NewAdapter(m Medium, key string) *Adapter {
	return &Adapter{
		medium:     m,
		key:        key,
		instanceID: uuid.NewString(),
	}
}

// Key returns the durable key this adapter manages.
func (a *Adapter) Key() string {
	return a.key
}

// InstanceID returns the writer id stamped on this adapter's writes.
func (a *Adapter) InstanceID() string {
	return a.instanceID
}

// Read loads the full collection. A key that was never written yields an
// empty collection. A blob that does not decode yields ErrMalformedData;
// medium failures are returned as *StorageError.
func (a *Adapter) Read() ([]model.Notification, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()

	blob, rev, err := a.medium.Get(ctx, a.key)
	if errors.Is(err, ErrNotFound) {
		a.last = Revision{}
		return []model.Notification{}, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "read", Key: a.key, Err: err}
	}

	// Remember the revision even when decoding fails so that the same
	// bad blob is not reported as a fresh external change.
	a.last = rev

	return decode(blob)
}

// Write stores the full collection, replacing whatever was there.
func (a *Adapter) Write(list []model.Notification) error {
	if list == nil {
		list = []model.Notification{}
	}

	blob, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encoding notifications: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()

	rev, err := a.medium.Set(ctx, a.key, blob, a.instanceID)
	if err != nil {
		return &StorageError{Op: "write", Key: a.key, Err: err}
	}
	a.last = rev
	return nil
}

// Changed reports whether the durable key has a revision other than the
// one this adapter last read or wrote.
func (a *Adapter) Changed() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()

	rev, err := a.medium.Revision(ctx, a.key)
	if errors.Is(err, ErrNotFound) {
		return a.last.Seq != 0, nil
	}
	if err != nil {
		return false, &StorageError{Op: "revision", Key: a.key, Err: err}
	}

	return rev.Seq != a.last.Seq || rev.Writer != a.last.Writer, nil
}

// decode parses a stored blob, dropping records without an id and all
// but the first occurrence of a duplicated id.
func decode(blob []byte) ([]model.Notification, error) {
	var raw []model.Notification
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}

	list := make([]model.Notification, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, n := range raw {
		if n.ID == "" || seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		list = append(list, n)
	}
	return list, nil
}
