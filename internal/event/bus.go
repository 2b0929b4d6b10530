// Package event provides the in-process publish/subscribe channel that
// the notification store uses to announce mutations.
package event

import (
	"sync"

	"github.com/nhle/finance-dashboard/internal/model"
)

// Kind identifies what happened to the collection.
type Kind string

const (
	KindAdd    Kind = "add"
	KindRead   Kind = "read"
	KindDelete Kind = "delete"
	KindClear  Kind = "clear"
	KindUpdate Kind = "update"
)

// Event describes a single mutation. Notification is a copy owned by
// the receiver; ID is set for read and delete.
type Event struct {
	Kind         Kind
	Notification *model.Notification
	ID           string
}

type subscriber struct {
	id int
	fn func(Event)
}

// Bus delivers events synchronously to subscribers in registration order.
// Events are not stored; a subscriber only sees events published after
// it registered.
type Bus struct {
	mu     sync.Mutex
	subs   []subscriber
	nextID int
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a function that removes it. The
// returned function may be called more than once.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish calls every subscriber registered at the time of the call, in
// registration order, on the caller's goroutine. Subscribers may
// subscribe, unsubscribe or publish from inside the callback.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(e)
	}
}

// Len returns the number of registered subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
