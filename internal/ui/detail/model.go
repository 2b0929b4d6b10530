package detail

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nhle/finance-dashboard/internal/keys"
	"github.com/nhle/finance-dashboard/internal/model"
	"github.com/nhle/finance-dashboard/internal/theme"
)

// BackMsg signals the parent to navigate back to the feed.
type BackMsg struct{}

// Model is the notification detail view component.
type Model struct {
	item     *model.Notification
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Back) {
		return m, func() tea.Msg {
			return BackMsg{}
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.item == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return emptyStyle.Render("No notification selected")
	}

	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.item == nil {
		return ""
	}

	n := m.item
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(n.Title))

	// Badges line: type + priority + read state
	typeBadge := theme.TypeLabelStyle(n.Type).Render(strings.ToUpper(typeName(n.Type)))
	priBadge := theme.PriorityStyle(n.Priority).Render(string(n.Priority))

	state := "unread"
	if n.IsRead {
		state = "read"
	}
	stateBadge := lipgloss.NewStyle().Foreground(theme.ColorGray).Render(state)

	sections = append(sections, lipgloss.JoinHorizontal(
		lipgloss.Top, typeBadge, "  ", priBadge, "  ", stateBadge,
	))
	sections = append(sections, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)

	sections = append(sections, fmt.Sprintf(
		"%s  %s",
		metaStyle.Render("Received:"),
		valStyle.Render(fmt.Sprintf("%s (%s)",
			n.Timestamp.Format("2006-01-02 15:04"), humanize.Time(n.Timestamp))),
	))
	sections = append(sections, fmt.Sprintf(
		"%s        %s",
		metaStyle.Render("ID:"),
		valStyle.Render(n.ID),
	))

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
	sections = append(sections, "", separator, "")
	sections = append(sections, n.Message)

	// Caller data, sorted so the layout is stable between renders
	if len(n.Data) > 0 {
		sections = append(sections, "", separator, "")

		names := make([]string, 0, len(n.Data))
		for k := range n.Data {
			names = append(names, k)
		}
		slices.Sort(names)

		for _, k := range names {
			sections = append(sections, fmt.Sprintf(
				"%s  %s",
				metaStyle.Render(k+":"),
				valStyle.Render(fmt.Sprint(n.Data[k])),
			))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetNotification updates the notification being displayed and
// re-renders the content.
func (m *Model) SetNotification(n model.Notification) {
	m.item = &n
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Notification returns the displayed notification, if any.
func (m Model) Notification() (model.Notification, bool) {
	if m.item == nil {
		return model.Notification{}, false
	}
	return *m.item, true
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	m.viewport.SetContent(m.renderContent())
}

// typeName returns a human-readable name for the notification type.
func typeName(t model.Type) string {
	switch t {
	case model.TypeFinancialAlert:
		return "Financial"
	case model.TypeBudgetAlert:
		return "Budget"
	case model.TypeApprovalRequest:
		return "Approval"
	case model.TypeComment:
		return "Comment"
	case model.TypeSystem:
		return "System"
	default:
		return "Unknown"
	}
}
