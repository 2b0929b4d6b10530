package notify_test

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/finance-dashboard/internal/event"
	"github.com/nhle/finance-dashboard/internal/model"
	"github.com/nhle/finance-dashboard/internal/notify"
	"github.com/nhle/finance-dashboard/internal/store"
	"github.com/nhle/finance-dashboard/tests/testutil"
)

func newStore(t *testing.T, m store.Medium, opts ...notify.Option) (*notify.Store, *store.Adapter) {
	t.Helper()
	a := store.NewAdapter(m, "notifications")
	opts = append([]notify.Option{notify.WithLogger(testutil.DiscardLogger())}, opts...)
	return notify.New(a, event.NewBus(), opts...), a
}

func add(t *testing.T, s *notify.Store, title string, typ model.Type, prio model.Priority) model.Notification {
	t.Helper()
	n, err := s.Add(model.Input{Title: title, Message: title + " body", Type: typ, Priority: prio})
	require.NoError(t, err)
	return n
}

func recordEvents(s *notify.Store) *[]event.Event {
	var events []event.Event
	s.Bus().Subscribe(func(e event.Event) { events = append(events, e) })
	return &events
}

func TestAddPrependsAndPublishes(t *testing.T) {
	s, _ := newStore(t, store.NewMemoryMedium())
	events := recordEvents(s)

	first := add(t, s, "first", model.TypeComment, model.PriorityLow)
	second := add(t, s, "second", model.TypeFinancialAlert, model.PriorityHigh)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.False(t, list[0].IsRead)
	assert.False(t, list[0].Timestamp.IsZero())

	require.Len(t, *events, 2)
	assert.Equal(t, event.KindAdd, (*events)[1].Kind)
	require.NotNil(t, (*events)[1].Notification)
	assert.Equal(t, second.ID, (*events)[1].Notification.ID)
}

func TestAddDefaultsToMediumPriority(t *testing.T) {
	s, _ := newStore(t, store.NewMemoryMedium())

	n, err := s.Add(model.Input{Title: "t", Message: "m", Type: model.TypeSystem})
	require.NoError(t, err)
	assert.Equal(t, model.PriorityMedium, n.Priority)
}

func TestAddRejectsInvalidInput(t *testing.T) {
	s, _ := newStore(t, store.NewMemoryMedium())
	events := recordEvents(s)

	_, err := s.Add(model.Input{Message: "m", Type: model.TypeSystem})
	require.ErrorIs(t, err, model.ErrInvalidNotification)
	assert.Empty(t, s.List())
	assert.Empty(t, *events)
}

func TestIDsAreUnique(t *testing.T) {
	s, _ := newStore(t, store.NewMemoryMedium())

	seen := map[string]bool{}
	for range 200 {
		n := add(t, s, "n", model.TypeSystem, model.PriorityLow)
		require.False(t, seen[n.ID], "duplicate id %s", n.ID)
		seen[n.ID] = true
	}
}

func TestUnreadCountMatchesList(t *testing.T) {
	s, _ := newStore(t, store.NewMemoryMedium())

	a := add(t, s, "a", model.TypeComment, model.PriorityLow)
	add(t, s, "b", model.TypeBudgetAlert, model.PriorityHigh)
	c := add(t, s, "c", model.TypeComment, model.PriorityMedium)
	assert.Equal(t, 3, s.UnreadCount())

	require.True(t, s.MarkAsRead(a.ID))
	require.True(t, s.Delete(c.ID))

	unread := 0
	for _, n := range s.List() {
		if !n.IsRead {
			unread++
		}
	}
	assert.Equal(t, unread, s.UnreadCount())
	assert.Equal(t, 1, s.UnreadCount())
	assert.Len(t, s.ListUnread(), 1)
	assert.Equal(t, map[model.Type]int{model.TypeBudgetAlert: 1}, s.CountByType())
}

func TestMarkAsRead(t *testing.T) {
	s, _ := newStore(t, store.NewMemoryMedium())
	n := add(t, s, "a", model.TypeComment, model.PriorityLow)
	events := recordEvents(s)

	assert.False(t, s.MarkAsRead("missing"))
	assert.Empty(t, *events)

	require.True(t, s.MarkAsRead(n.ID))
	got, ok := s.Get(n.ID)
	require.True(t, ok)
	assert.True(t, got.IsRead)

	require.Len(t, *events, 1)
	assert.Equal(t, event.KindRead, (*events)[0].Kind)
	assert.Equal(t, n.ID, (*events)[0].ID)
}

func TestMarkAllAsReadIsIdempotent(t *testing.T) {
	s, _ := newStore(t, store.NewMemoryMedium())
	add(t, s, "a", model.TypeComment, model.PriorityLow)
	add(t, s, "b", model.TypeSystem, model.PriorityLow)
	events := recordEvents(s)

	s.MarkAllAsRead()
	once := s.List()
	s.MarkAllAsRead()

	assert.Equal(t, once, s.List())
	assert.Equal(t, 0, s.UnreadCount())
	require.Len(t, *events, 2)
	assert.Equal(t, event.KindUpdate, (*events)[1].Kind)
}

func TestDelete(t *testing.T) {
	s, _ := newStore(t, store.NewMemoryMedium())
	a := add(t, s, "a", model.TypeComment, model.PriorityLow)
	b := add(t, s, "b", model.TypeComment, model.PriorityLow)
	events := recordEvents(s)

	assert.False(t, s.Delete("missing"))
	require.True(t, s.Delete(a.ID))

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)

	require.Len(t, *events, 1)
	assert.Equal(t, event.KindDelete, (*events)[0].Kind)
	assert.Equal(t, a.ID, (*events)[0].ID)
}

func TestClearAllEmptiesMemoryAndStorage(t *testing.T) {
	m := store.NewMemoryMedium()
	s, a := newStore(t, m)
	add(t, s, "a", model.TypeComment, model.PriorityLow)
	add(t, s, "b", model.TypeComment, model.PriorityLow)
	events := recordEvents(s)

	s.ClearAll()

	assert.Empty(t, s.List())
	assert.Equal(t, 0, s.UnreadCount())
	stored, err := a.Read()
	require.NoError(t, err)
	assert.Empty(t, stored)
	require.Len(t, *events, 1)
	assert.Equal(t, event.KindClear, (*events)[0].Kind)
}

func TestStateSurvivesRestart(t *testing.T) {
	m := store.NewMemoryMedium()
	s, _ := newStore(t, m)
	a := add(t, s, "a", model.TypeComment, model.PriorityLow)
	b := add(t, s, "b", model.TypeFinancialAlert, model.PriorityHigh)
	require.True(t, s.MarkAsRead(a.ID))

	restarted, _ := newStore(t, m)
	list := restarted.List()
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)
	assert.True(t, list[1].IsRead)
	assert.Equal(t, 1, restarted.UnreadCount())
}

func TestMalformedStorageStartsEmpty(t *testing.T) {
	m := store.NewMemoryMedium()
	m.SetRaw("notifications", []byte("garbage"))

	s, _ := newStore(t, m)
	assert.Empty(t, s.List())

	add(t, s, "fresh", model.TypeSystem, model.PriorityLow)
	assert.Len(t, s.List(), 1)
}

func TestStorageWriteFailureKeepsMemory(t *testing.T) {
	m := store.NewMemoryMedium()
	s, _ := newStore(t, m)
	events := recordEvents(s)

	m.Fail(errors.New("quota exceeded"))
	n := add(t, s, "kept", model.TypeSystem, model.PriorityLow)

	got, ok := s.Get(n.ID)
	require.True(t, ok)
	assert.Equal(t, "kept", got.Title)
	assert.Len(t, *events, 1)
}

func TestClosedStore(t *testing.T) {
	s := notify.New(nil, nil)

	_, err := s.Add(model.Input{Title: "t", Message: "m", Type: model.TypeSystem})
	require.ErrorIs(t, err, notify.ErrUnavailable)
	assert.Empty(t, s.List())
	assert.False(t, s.MarkAsRead("x"))
	assert.False(t, s.Delete("x"))
	require.ErrorIs(t, s.Reload(), notify.ErrUnavailable)
}

func TestPersistsBeforePublishing(t *testing.T) {
	m := store.NewMemoryMedium()
	s, _ := newStore(t, m)
	observer := store.NewAdapter(m, "notifications")

	var seen []int
	s.Bus().Subscribe(func(event.Event) {
		list, err := observer.Read()
		require.NoError(t, err)
		seen = append(seen, len(list))
	})

	n := add(t, s, "a", model.TypeSystem, model.PriorityLow)
	add(t, s, "b", model.TypeSystem, model.PriorityLow)
	s.Delete(n.ID)

	assert.Equal(t, []int{1, 2, 1}, seen)
}

func TestConcurrentAddsPublishInMutationOrder(t *testing.T) {
	s, _ := newStore(t, store.NewMemoryMedium())

	var (
		mu        sync.Mutex
		published []string
	)
	s.Bus().Subscribe(func(e event.Event) {
		mu.Lock()
		published = append(published, e.ID)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Add(model.Input{Title: "t", Message: "m", Type: model.TypeSystem})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Adds prepend, so the collection read backwards is mutation order.
	var stored []string
	for _, n := range s.List() {
		stored = append(stored, n.ID)
	}
	slices.Reverse(stored)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, stored, published)
}

func TestSubscriberMayCallBackIntoStore(t *testing.T) {
	s, _ := newStore(t, store.NewMemoryMedium())

	var kinds []event.Kind
	s.Bus().Subscribe(func(e event.Event) {
		kinds = append(kinds, e.Kind)
		if e.Kind == event.KindAdd {
			s.MarkAsRead(e.ID)
		}
	})

	n := add(t, s, "auto-read", model.TypeSystem, model.PriorityLow)

	got, ok := s.Get(n.ID)
	require.True(t, ok)
	assert.True(t, got.IsRead)
	assert.Equal(t, []event.Kind{event.KindAdd, event.KindRead}, kinds)
}

func TestMaxRecordsDropsOldest(t *testing.T) {
	s, _ := newStore(t, store.NewMemoryMedium(), notify.WithMaxRecords(2))

	add(t, s, "oldest", model.TypeSystem, model.PriorityLow)
	b := add(t, s, "b", model.TypeSystem, model.PriorityLow)
	c := add(t, s, "c", model.TypeSystem, model.PriorityLow)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, c.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)
}

func TestWithClock(t *testing.T) {
	at := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	s, _ := newStore(t, store.NewMemoryMedium(), notify.WithClock(func() time.Time { return at }))

	n := add(t, s, "a", model.TypeSystem, model.PriorityLow)
	assert.Equal(t, at, n.Timestamp)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s, _ := newStore(t, store.NewMemoryMedium())
	n, err := s.Add(model.Input{
		Title: "t", Message: "m", Type: model.TypeApprovalRequest,
		Data: map[string]any{"requestId": "r-1"},
	})
	require.NoError(t, err)

	list := s.List()
	list[0].IsRead = true
	list[0].Data["requestId"] = "tampered"

	got, _ := s.Get(n.ID)
	assert.False(t, got.IsRead)
	assert.Equal(t, "r-1", got.Data["requestId"])
}

func TestLastWriterWins(t *testing.T) {
	m := store.NewMemoryMedium()
	a, _ := newStore(t, m)
	b, _ := newStore(t, m)

	add(t, a, "from a", model.TypeSystem, model.PriorityLow)
	add(t, b, "from b", model.TypeSystem, model.PriorityLow)

	require.NoError(t, a.Reload())
	list := a.List()
	require.Len(t, list, 1)
	assert.Equal(t, "from b", list[0].Title)
}

func TestReloadStorageErrorKeepsCollection(t *testing.T) {
	m := store.NewMemoryMedium()
	s, _ := newStore(t, m)
	add(t, s, "a", model.TypeSystem, model.PriorityLow)
	events := recordEvents(s)

	m.Fail(errors.New("io error"))
	require.Error(t, s.Reload())
	assert.Len(t, s.List(), 1)
	assert.Empty(t, *events)
}
