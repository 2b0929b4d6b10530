package detail

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/finance-dashboard/internal/keys"
	"github.com/nhle/finance-dashboard/internal/model"
)

func TestEmptyView(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 60, 20)
	assert.Contains(t, m.View(), "No notification selected")

	_, ok := m.Notification()
	assert.False(t, ok)
}

func TestRendersNotification(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 30)
	m.SetNotification(model.Notification{
		ID:        "n-42",
		Title:     "Approval needed",
		Message:   "PO-1187 for $3,200 awaits your approval",
		Type:      model.TypeApprovalRequest,
		Priority:  model.PriorityMedium,
		Timestamp: time.Now().Add(-3 * time.Minute),
		Data:      map[string]any{"poId": "PO-1187", "amount": 3200},
	})

	view := m.View()
	assert.Contains(t, view, "Approval needed")
	assert.Contains(t, view, "APPROVAL")
	assert.Contains(t, view, "n-42")
	assert.Contains(t, view, "PO-1187 for $3,200 awaits your approval")
	assert.Contains(t, view, "amount:")
	assert.Contains(t, view, "poId:")
	assert.Contains(t, view, "3 minutes ago")

	n, ok := m.Notification()
	require.True(t, ok)
	assert.Equal(t, "n-42", n.ID)
}

func TestBackKeyEmitsBackMsg(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 30)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, BackMsg{}, cmd())
}
