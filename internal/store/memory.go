package store

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryMedium is an in-process Medium. Several adapters sharing one
// MemoryMedium behave like several processes sharing one durable key,
// and OnExternalChange lets them observe each other's writes.
type MemoryMedium struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	listeners map[int]func()
	nextID    int

	// failWith, when set, makes every Get and Set return it.
	failWith error
}

type memoryEntry struct {
	value []byte
	rev   Revision
}

// NewMemoryMedium returns an empty MemoryMedium.
func NewMemoryMedium() *MemoryMedium {
	return &MemoryMedium{
		entries:   make(map[string]memoryEntry),
		listeners: make(map[int]func()),
	}
}

// Fail makes every subsequent Get and Set return err; nil restores
// normal operation.
func (m *MemoryMedium) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Get returns the blob stored under key.
func (m *MemoryMedium) Get(_ context.Context, key string) ([]byte, Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil {
		return nil, Revision{}, m.failWith
	}

	e, ok := m.entries[key]
	if !ok {
		return nil, Revision{}, ErrNotFound
	}
	return slices.Clone(e.value), e.rev, nil
}

// Set replaces the blob stored under key and notifies listeners.
// Listeners run on the caller's goroutine after the medium is unlocked,
// so they must not block.
func (m *MemoryMedium) Set(_ context.Context, key string, value []byte, writer string) (Revision, error) {
	m.mu.Lock()
	if m.failWith != nil {
		err := m.failWith
		m.mu.Unlock()
		return Revision{}, err
	}

	rev := Revision{
		Seq:       m.entries[key].rev.Seq + 1,
		Writer:    writer,
		UpdatedAt: time.Now(),
	}
	m.entries[key] = memoryEntry{value: slices.Clone(value), rev: rev}

	listeners := make([]func(), 0, len(m.listeners))
	for _, id := range slices.Sorted(maps.Keys(m.listeners)) {
		listeners = append(listeners, m.listeners[id])
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return rev, nil
}

// SetRaw stores value without notifying listeners. It stands in for a
// write made by a process this medium cannot observe.
func (m *MemoryMedium) SetRaw(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{
		value: slices.Clone(value),
		rev:   Revision{Seq: m.entries[key].rev.Seq + 1, UpdatedAt: time.Now()},
	}
}

// Revision returns the current revision of key.
func (m *MemoryMedium) Revision(_ context.Context, key string) (Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return Revision{}, ErrNotFound
	}
	return e.rev, nil
}

// OnExternalChange registers callback to run after every Set. Filtering
// out the caller's own writes is left to the adapter.
func (m *MemoryMedium) OnExternalChange(callback func()) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = callback

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}, nil
}

// Close is a no-op.
func (m *MemoryMedium) Close() error {
	return nil
}
