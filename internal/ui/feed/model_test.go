package feed

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/finance-dashboard/internal/event"
	"github.com/nhle/finance-dashboard/internal/keys"
	"github.com/nhle/finance-dashboard/internal/model"
)

type fakeService struct {
	items      []model.Notification
	refreshErr error
	refreshes  int
}

func (f *fakeService) GetStoredNotifications() []model.Notification {
	return append([]model.Notification(nil), f.items...)
}

func (f *fakeService) UnreadCount() int {
	count := 0
	for _, n := range f.items {
		if !n.IsRead {
			count++
		}
	}
	return count
}

func (f *fakeService) MarkNotificationAsRead(id string) []model.Notification {
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].IsRead = true
		}
	}
	return f.GetStoredNotifications()
}

func (f *fakeService) MarkAllNotificationsAsRead() []model.Notification {
	for i := range f.items {
		f.items[i].IsRead = true
	}
	return f.GetStoredNotifications()
}

func (f *fakeService) DeleteNotification(id string) []model.Notification {
	for i := range f.items {
		if f.items[i].ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			break
		}
	}
	return f.GetStoredNotifications()
}

func (f *fakeService) DeleteAllNotifications() {
	f.items = nil
}

func (f *fakeService) Refresh() error {
	f.refreshes++
	return f.refreshErr
}

func newFake() *fakeService {
	now := time.Now()
	return &fakeService{items: []model.Notification{
		{ID: "1", Title: "Transfer flagged", Type: model.TypeFinancialAlert, Priority: model.PriorityHigh, Timestamp: now},
		{ID: "2", Title: "Budget at 90%", Type: model.TypeBudgetAlert, Priority: model.PriorityMedium, Timestamp: now.Add(-time.Hour)},
		{ID: "3", Title: "Weekly digest", Type: model.TypeSystem, Priority: model.PriorityLow, Timestamp: now.Add(-48 * time.Hour)},
	}}
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestNavigationAndRead(t *testing.T) {
	svc := newFake()
	m := New(svc, keys.DefaultKeyMap())

	m = press(m, "j", "enter")
	assert.Equal(t, 1, m.cursor)
	assert.True(t, svc.items[1].IsRead)
	assert.Equal(t, 2, svc.UnreadCount())

	m = press(m, "k", "k")
	assert.Equal(t, 0, m.cursor)
}

func TestCursorStaysInRangeAfterDelete(t *testing.T) {
	svc := newFake()
	m := New(svc, keys.DefaultKeyMap())

	m = press(m, "j", "j", "j", "d")
	assert.Len(t, m.items, 2)
	assert.Equal(t, 1, m.cursor)

	m = press(m, "D")
	assert.Empty(t, m.items)
	assert.Equal(t, 0, m.cursor)
	assert.Contains(t, m.View(), "No notifications.")
}

func TestReadAll(t *testing.T) {
	svc := newFake()
	m := New(svc, keys.DefaultKeyMap())

	m = press(m, "a")
	for _, n := range m.items {
		assert.True(t, n.IsRead)
	}
}

func TestChangedMsgReloads(t *testing.T) {
	svc := newFake()
	m := New(svc, keys.DefaultKeyMap())

	svc.items = svc.items[:1]
	next, _ := m.Update(ChangedMsg{Kind: event.KindUpdate})
	m = next.(Model)

	assert.Len(t, m.items, 1)
	assert.Equal(t, "synced", m.status)
}

func TestRefresh(t *testing.T) {
	svc := newFake()
	m := New(svc, keys.DefaultKeyMap())

	m = press(m, "r")
	assert.Equal(t, 1, svc.refreshes)
	assert.Equal(t, "refreshed", m.status)

	svc.refreshErr = errors.New("locked")
	m = press(m, "r")
	assert.Equal(t, "refresh failed: locked", m.status)
}

func TestQuit(t *testing.T) {
	m := New(newFake(), keys.DefaultKeyMap())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestViewShowsUnreadCountAndTitles(t *testing.T) {
	m := New(newFake(), keys.DefaultKeyMap())

	view := m.View()
	assert.Contains(t, view, "3 unread")
	assert.Contains(t, view, "Transfer flagged")
	assert.Contains(t, view, "Weekly digest")
	assert.Contains(t, view, "[F]")
}

func TestOpenShowsDetailAndMarksRead(t *testing.T) {
	svc := newFake()
	svc.items[0].Message = "Wire of $48,000 to a new payee"
	m := New(svc, keys.DefaultKeyMap())

	m = press(m, "o")
	require.True(t, m.showDetail)
	assert.True(t, svc.items[0].IsRead)
	assert.Contains(t, m.View(), "Wire of $48,000 to a new payee")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	require.NotNil(t, cmd)
	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.False(t, m.showDetail)
}

func TestDetailClosesWhenNotificationDeletedElsewhere(t *testing.T) {
	svc := newFake()
	m := New(svc, keys.DefaultKeyMap())

	m = press(m, "o")
	require.True(t, m.showDetail)

	svc.items = svc.items[1:]
	next, _ := m.Update(ChangedMsg{Kind: event.KindUpdate})
	m = next.(Model)
	assert.False(t, m.showDetail)
}
