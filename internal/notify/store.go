// Package notify owns the canonical notification collection.
//
// Store is the only writer of the collection. Every successful mutation
// is written through the persistence adapter before the matching event
// is published, so a subscriber that re-reads durable storage always
// sees at least the state the event describes.
package notify

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/finance-dashboard/internal/event"
	"github.com/nhle/finance-dashboard/internal/model"
	"github.com/nhle/finance-dashboard/internal/store"
)

// ErrUnavailable is returned by Add when the store was constructed
// without a persistence adapter.
var ErrUnavailable = errors.New("notification store unavailable")

// Persistence is the durable side of the store.
type Persistence interface {
	Read() ([]model.Notification, error)
	Write([]model.Notification) error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for recovered storage failures.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMaxRecords keeps at most n records, dropping the oldest after an
// add. Zero or less keeps everything.
func WithMaxRecords(n int) Option {
	return func(s *Store) { s.maxRecords = n }
}

// WithClock overrides the time source for new records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store holds the notification collection newest-first. It is safe for
// concurrent use. Events are delivered in the order the mutations were
// applied, but a mutator may return before its event is delivered when
// another goroutine is already delivering.
type Store struct {
	persist    Persistence
	bus        *event.Bus
	logger     *log.Logger
	maxRecords int
	now        func() time.Time

	mu    sync.Mutex
	items []model.Notification

	// Events queue in mutation order under mu and are delivered by one
	// goroutine at a time, outside mu, so subscribers may call back in.
	pubMu    sync.Mutex
	pending  []event.Event
	draining bool
}

// New creates a Store and loads the collection from p. A nil p yields a
// closed store whose Add returns ErrUnavailable. Load failures are logged and leave
// the collection empty.
func New(p Persistence, bus *event.Bus, opts ...Option) *Store {
	s := &Store{
		persist: p,
		bus:     bus,
		logger:  log.Default(),
		now:     time.Now,
		items:   []model.Notification{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bus == nil {
		s.bus = event.NewBus()
	}

	if s.persist != nil {
		s.items = s.load()
	}
	return s
}

// enqueueLocked queues e for delivery. Callers hold s.mu.
func (s *Store) enqueueLocked(e event.Event) {
	s.pubMu.Lock()
	s.pending = append(s.pending, e)
	s.pubMu.Unlock()
}

// flush delivers queued events in order. If another goroutine is already
// delivering, or this call is nested inside a subscriber, the running
// loop picks the events up instead.
func (s *Store) flush() {
	s.pubMu.Lock()
	if s.draining {
		s.pubMu.Unlock()
		return
	}
	s.draining = true
	for len(s.pending) > 0 {
		e := s.pending[0]
		s.pending = s.pending[1:]
		s.pubMu.Unlock()
		s.bus.Publish(e)
		s.pubMu.Lock()
	}
	s.draining = false
	s.pubMu.Unlock()
}

// Bus returns the event bus the store publishes on.
func (s *Store) Bus() *event.Bus {
	return s.bus
}

// load reads the durable collection, degrading to empty on failure.
func (s *Store) load() []model.Notification {
	items, err := s.persist.Read()
	switch {
	case errors.Is(err, store.ErrMalformedData):
		s.logger.Printf("failed to parse stored notifications, resetting: %v", err)
		return []model.Notification{}
	case err != nil:
		s.logger.Printf("failed to load notifications: %v", err)
		return []model.Notification{}
	}
	return items
}

// save writes the current collection. Callers hold s.mu. Failures are
// logged; the in-memory collection stays authoritative.
func (s *Store) save() {
	if s.persist == nil {
		return
	}
	if err := s.persist.Write(s.snapshotLocked()); err != nil {
		s.logger.Printf("failed to persist notifications: %v", err)
	}
}

func (s *Store) snapshotLocked() []model.Notification {
	out := make([]model.Notification, len(s.items))
	for i, n := range s.items {
		out[i] = n.Clone()
	}
	return out
}

// Add creates a notification from in, stores it first in the collection
// and publishes an add event.
func (s *Store) Add(in model.Input) (model.Notification, error) {
	if err := in.Validate(); err != nil {
		return model.Notification{}, err
	}
	if s.persist == nil {
		return model.Notification{}, ErrUnavailable
	}

	s.mu.Lock()
	n := model.Notification{
		ID:        s.newIDLocked(),
		Title:     in.Title,
		Message:   in.Message,
		Type:      in.Type,
		Priority:  in.Priority,
		Timestamp: s.now(),
		Data:      in.Data,
	}
	n = n.Clone()

	s.items = append([]model.Notification{n}, s.items...)
	if s.maxRecords > 0 && len(s.items) > s.maxRecords {
		s.items = s.items[:s.maxRecords:s.maxRecords]
	}
	s.save()
	payload := n.Clone()
	s.enqueueLocked(event.Event{Kind: event.KindAdd, Notification: &payload, ID: n.ID})
	s.mu.Unlock()

	s.flush()
	return n.Clone(), nil
}

// newIDLocked returns a time-ordered id not present in the collection.
func (s *Store) newIDLocked() string {
	for {
		id := uuid.Must(uuid.NewV7()).String()
		if s.indexLocked(id) < 0 {
			return id
		}
	}
}

func (s *Store) indexLocked(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

// List returns a copy of the collection, newest first.
func (s *Store) List() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ListUnread returns the unread records, newest first.
func (s *Store) ListUnread() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []model.Notification{}
	for _, n := range s.items {
		if !n.IsRead {
			out = append(out, n.Clone())
		}
	}
	return out
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (model.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return model.Notification{}, false
	}
	return s.items[i].Clone(), true
}

// UnreadCount returns the number of unread records.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, n := range s.items {
		if !n.IsRead {
			count++
		}
	}
	return count
}

// CountByType returns the number of unread records per type.
func (s *Store) CountByType() map[model.Type]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[model.Type]int)
	for _, n := range s.items {
		if !n.IsRead {
			counts[n.Type]++
		}
	}
	return counts
}

// MarkAsRead marks the record with the given id as read. It reports
// false, and does nothing, when no such record exists.
func (s *Store) MarkAsRead(id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.items[i].IsRead = true
	payload := s.items[i].Clone()
	s.save()
	s.enqueueLocked(event.Event{Kind: event.KindRead, Notification: &payload, ID: id})
	s.mu.Unlock()

	s.flush()
	return true
}

// MarkAllAsRead marks every record as read. It always persists and
// publishes an update event, even when nothing changed.
func (s *Store) MarkAllAsRead() {
	s.mu.Lock()
	for i := range s.items {
		s.items[i].IsRead = true
	}
	s.save()
	s.enqueueLocked(event.Event{Kind: event.KindUpdate})
	s.mu.Unlock()

	s.flush()
}

// Delete removes the record with the given id. It reports false, and
// does nothing, when no such record exists.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	removed := s.items[i].Clone()
	s.items = append(s.items[:i:i], s.items[i+1:]...)
	s.save()
	s.enqueueLocked(event.Event{Kind: event.KindDelete, Notification: &removed, ID: id})
	s.mu.Unlock()

	s.flush()
	return true
}

// ClearAll removes every record and publishes a clear event.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.items = []model.Notification{}
	s.save()
	s.enqueueLocked(event.Event{Kind: event.KindClear})
	s.mu.Unlock()

	s.flush()
}

// Reload discards the in-memory collection, re-reads it from durable
// storage and publishes an update event. A storage failure keeps the
// current collection and is returned; malformed data resets it.
func (s *Store) Reload() error {
	if s.persist == nil {
		return ErrUnavailable
	}

	s.mu.Lock()
	items, err := s.persist.Read()
	switch {
	case errors.Is(err, store.ErrMalformedData):
		s.logger.Printf("failed to parse stored notifications, resetting: %v", err)
		s.items = []model.Notification{}
	case err != nil:
		s.mu.Unlock()
		return err
	default:
		s.items = items
	}
	s.enqueueLocked(event.Event{Kind: event.KindUpdate})
	s.mu.Unlock()

	s.flush()
	return nil
}
