// Package feed is a live terminal view of the notification list. It holds
// no state of its own beyond the cursor: every change, local or from
// another instance, reloads the list from the service.
package feed

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nhle/finance-dashboard/internal/event"
	"github.com/nhle/finance-dashboard/internal/keys"
	"github.com/nhle/finance-dashboard/internal/model"
	"github.com/nhle/finance-dashboard/internal/theme"
	"github.com/nhle/finance-dashboard/internal/ui/detail"
)

// Service is the part of the notification core the feed drives.
type Service interface {
	GetStoredNotifications() []model.Notification
	UnreadCount() int
	MarkNotificationAsRead(id string) []model.Notification
	MarkAllNotificationsAsRead() []model.Notification
	DeleteNotification(id string) []model.Notification
	DeleteAllNotifications()
	Refresh() error
}

// ChangedMsg tells the feed that the store published an event.
type ChangedMsg struct {
	Kind event.Kind
}

// Model is the Bubble Tea model of the feed.
type Model struct {
	svc    Service
	keys   *keys.KeyMap
	help   help.Model
	detail detail.Model
	items  []model.Notification
	cursor int
	width  int
	height int
	status string

	// showDetail is set while the detail pane covers the list.
	showDetail bool
}

// New creates a feed over svc.
func New(svc Service, km *keys.KeyMap) Model {
	m := Model{svc: svc, keys: km, help: help.New(), width: 80, height: 24}
	m.detail = detail.New(km, m.width, m.height-2)
	m.reload(svc.GetStoredNotifications())
	return m
}

// Bridge forwards store events to p. Send is called on a new goroutine
// because events raised by the feed's own actions are published while
// the program is still inside Update.
func Bridge(p *tea.Program, subscribe func(func(event.Event)) func()) func() {
	return subscribe(func(e event.Event) {
		go p.Send(ChangedMsg{Kind: e.Kind})
	})
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m *Model) reload(items []model.Notification) {
	m.items = items
	if m.cursor >= len(m.items) {
		m.cursor = len(m.items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}

	// Follow the open notification, or close the pane if it is gone.
	if !m.showDetail {
		return
	}
	open, _ := m.detail.Notification()
	for _, n := range m.items {
		if n.ID == open.ID {
			m.detail.SetNotification(n)
			return
		}
	}
	m.showDetail = false
}

func (m Model) selected() (model.Notification, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return model.Notification{}, false
	}
	return m.items[m.cursor], true
}

// Update handles key presses and store change messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.detail.SetSize(msg.Width, msg.Height-2)
		return m, nil

	case detail.BackMsg:
		m.showDetail = false
		return m, nil

	case ChangedMsg:
		m.reload(m.svc.GetStoredNotifications())
		if msg.Kind == event.KindUpdate {
			m.status = "synced"
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	if m.showDetail {
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Open):
		if n, ok := m.selected(); ok {
			m.reload(m.svc.MarkNotificationAsRead(n.ID))
			if n, ok = m.selected(); ok {
				m.detail.SetNotification(n)
				m.showDetail = true
			}
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Read):
		if n, ok := m.selected(); ok {
			m.reload(m.svc.MarkNotificationAsRead(n.ID))
		}

	case key.Matches(msg, m.keys.ReadAll):
		m.reload(m.svc.MarkAllNotificationsAsRead())

	case key.Matches(msg, m.keys.Delete):
		if n, ok := m.selected(); ok {
			m.reload(m.svc.DeleteNotification(n.ID))
		}

	case key.Matches(msg, m.keys.Clear):
		m.svc.DeleteAllNotifications()
		m.reload(m.svc.GetStoredNotifications())

	case key.Matches(msg, m.keys.Refresh):
		if err := m.svc.Refresh(); err != nil {
			m.status = "refresh failed: " + err.Error()
		} else {
			m.reload(m.svc.GetStoredNotifications())
			m.status = "refreshed"
		}

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

// View renders the header, the list and the help line.
func (m Model) View() string {
	header := theme.HeaderStyle.
		Width(m.width).
		Render(fmt.Sprintf("Notifications  %d unread", m.svc.UnreadCount()))

	if m.showDetail {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			m.detail.View(),
			theme.StatusBarStyle.Width(m.width).Render(m.help.View(m.keys)),
		)
	}

	var body strings.Builder
	if len(m.items) == 0 {
		body.WriteString(theme.HelpStyle.Render("  No notifications."))
	}
	for i, n := range m.items {
		body.WriteString(m.renderItem(n, i == m.cursor))
		body.WriteString("\n")
	}

	footer := m.help.View(m.keys)
	if m.status != "" {
		footer = theme.HelpStyle.Render(m.status) + "  " + footer
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		body.String(),
		theme.StatusBarStyle.Width(m.width).Render(footer),
	)
}

func (m Model) renderItem(n model.Notification, selected bool) string {
	marker := "●"
	if n.IsRead {
		marker = " "
	}

	line := fmt.Sprintf("%s %s %s %s  %s",
		marker,
		theme.TypeLabelStyle(n.Type).Render(theme.TypeLabel(n.Type)),
		theme.PriorityStyle(n.Priority).Render(string(n.Priority)),
		n.Title,
		theme.HelpStyle.Render(humanize.Time(n.Timestamp)),
	)

	switch {
	case selected:
		return theme.SelectedItemStyle.Render(line)
	case n.IsRead:
		return theme.ReadItemStyle.Render(line)
	default:
		return theme.ListItemStyle.Render(line)
	}
}
