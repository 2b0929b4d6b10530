package router_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/finance-dashboard/internal/event"
	"github.com/nhle/finance-dashboard/internal/model"
	"github.com/nhle/finance-dashboard/internal/notify"
	"github.com/nhle/finance-dashboard/internal/permission"
	"github.com/nhle/finance-dashboard/internal/router"
	"github.com/nhle/finance-dashboard/internal/store"
	"github.com/nhle/finance-dashboard/tests/testutil"
)

// fakeGateway is a permission gateway with a scripted state.
type fakeGateway struct {
	mu       sync.Mutex
	state    permission.State
	answer   bool
	requests int
	shown    []string
	options  []permission.Options
}

func (g *fakeGateway) State() permission.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *fakeGateway) RequestPermission(context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests++
	if g.answer {
		g.state = permission.StateGranted
	} else {
		g.state = permission.StateDenied
	}
	return g.answer
}

func (g *fakeGateway) ShowNotification(title string, opts permission.Options) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.shown = append(g.shown, title)
	g.options = append(g.options, opts)
}

func (g *fakeGateway) Shown() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.shown...)
}

func note(typ model.Type, prio model.Priority) model.Notification {
	return model.Notification{ID: string(typ) + "-" + string(prio), Title: string(typ), Type: typ, Priority: prio}
}

func TestDefaultPolicyMatrix(t *testing.T) {
	p := router.DefaultPolicy()

	for _, typ := range model.Types {
		assert.True(t, p.Allows(typ, model.PriorityHigh), typ)
		assert.True(t, p.Allows(typ, model.PriorityMedium), typ)
		assert.False(t, p.Allows(typ, model.PriorityLow), typ)
	}
}

func TestDisabledTypeIsNeverEscalated(t *testing.T) {
	g := &fakeGateway{state: permission.StateGranted}
	r := router.New(g, router.DefaultPolicy().Disable(model.TypeComment))

	assert.Equal(t, router.OutcomeSkipped, r.Route(context.Background(), note(model.TypeComment, model.PriorityHigh)))
	assert.Equal(t, router.OutcomeShown, r.Route(context.Background(), note(model.TypeFinancialAlert, model.PriorityHigh)))
	assert.Equal(t, []string{"financial_alert"}, g.Shown())
}

func TestMatrixOverrides(t *testing.T) {
	p := router.DefaultPolicy().
		Set(model.PriorityLow, model.TypeFinancialAlert, true).
		Set(model.PriorityMedium, model.TypeSystem, false)

	assert.True(t, p.Allows(model.TypeFinancialAlert, model.PriorityLow))
	assert.False(t, p.Allows(model.TypeSystem, model.PriorityMedium))
	assert.True(t, p.Allows(model.TypeSystem, model.PriorityHigh))

	disabled := p.Disable(model.TypeFinancialAlert)
	assert.False(t, disabled.Allows(model.TypeFinancialAlert, model.PriorityLow))
	assert.True(t, p.Allows(model.TypeFinancialAlert, model.PriorityLow), "Disable returns a copy")
}

func TestPolicyFromConfig(t *testing.T) {
	p := router.PolicyFromConfig(model.EscalationConfig{
		Types:  map[string]bool{"comment": false},
		Matrix: map[string]map[string]bool{"low": {"budget_alert": true}},
	})

	assert.False(t, p.Allows(model.TypeComment, model.PriorityHigh))
	assert.True(t, p.Allows(model.TypeBudgetAlert, model.PriorityLow))
	assert.False(t, p.Allows(model.TypeSystem, model.PriorityLow))
}

func TestRouteOutcomes(t *testing.T) {
	high := note(model.TypeFinancialAlert, model.PriorityHigh)

	tests := []struct {
		name     string
		state    permission.State
		answer   bool
		reprompt bool
		want     router.Outcome
		requests int
	}{
		{"granted", permission.StateGranted, true, false, router.OutcomeShown, 0},
		{"default then granted", permission.StateDefault, true, false, router.OutcomeShown, 1},
		{"default then denied", permission.StateDefault, false, false, router.OutcomeDenied, 1},
		{"denied", permission.StateDenied, true, false, router.OutcomeDenied, 0},
		{"denied with reprompt", permission.StateDenied, true, true, router.OutcomeShown, 1},
		{"unsupported", permission.StateUnsupported, true, true, router.OutcomeDenied, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGateway{state: tt.state, answer: tt.answer}
			r := router.New(g, router.DefaultPolicy(), router.WithRepromptDenied(tt.reprompt))

			assert.Equal(t, tt.want, r.Route(context.Background(), high))
			assert.Equal(t, tt.requests, g.requests)
		})
	}
}

func TestLowPrioritySkipsWithoutPrompt(t *testing.T) {
	g := &fakeGateway{state: permission.StateDefault, answer: true}
	r := router.New(g, router.DefaultPolicy())

	assert.Equal(t, router.OutcomeSkipped, r.Route(context.Background(), note(model.TypeSystem, model.PriorityLow)))
	assert.Equal(t, 0, g.requests)
}

func TestAlertOptions(t *testing.T) {
	g := &fakeGateway{state: permission.StateGranted}
	r := router.New(g, router.DefaultPolicy(), router.WithAlertDefaults("$", "badge.png", []int{100}))

	n := note(model.TypeBudgetAlert, model.PriorityHigh)
	n.Message = "over budget"
	n.Data = map[string]any{"budgetId": "ops"}
	r.Route(context.Background(), n)

	m := note(model.TypeBudgetAlert, model.PriorityMedium)
	r.Route(context.Background(), m)

	require.Len(t, g.options, 2)
	opts := g.options[0]
	assert.Equal(t, "over budget", opts.Body)
	assert.Equal(t, "$", opts.Icon)
	assert.Equal(t, "badge.png", opts.Badge)
	assert.Equal(t, []int{100}, opts.Vibrate)
	assert.Equal(t, n.ID, opts.Tag)
	assert.Equal(t, "ops", opts.Data["budgetId"])
	assert.True(t, opts.RequireInteraction)
	assert.False(t, g.options[1].RequireInteraction)
}

func TestAttachEscalatesAddedNotifications(t *testing.T) {
	g := &fakeGateway{state: permission.StateGranted}
	r := router.New(g, router.DefaultPolicy().Disable(model.TypeComment), router.WithLogger(testutil.DiscardLogger()))

	s := notify.New(store.NewAdapter(store.NewMemoryMedium(), "notifications"), event.NewBus(),
		notify.WithLogger(testutil.DiscardLogger()))
	detach := r.Attach(s.Bus())

	add := func(title string, typ model.Type, prio model.Priority) model.Notification {
		n, err := s.Add(model.Input{Title: title, Message: "m", Type: typ, Priority: prio})
		require.NoError(t, err)
		return n
	}

	add("transfer", model.TypeFinancialAlert, model.PriorityHigh)
	add("comment", model.TypeComment, model.PriorityHigh)
	add("digest", model.TypeSystem, model.PriorityLow)
	n := add("approval", model.TypeApprovalRequest, model.PriorityMedium)
	s.MarkAsRead(n.ID)

	r.Wait()
	assert.ElementsMatch(t, []string{"transfer", "approval"}, g.Shown())

	detach()
	add("after detach", model.TypeFinancialAlert, model.PriorityHigh)
	r.Wait()
	assert.Len(t, g.Shown(), 2)
}

func TestSetPolicyAppliesToLaterNotifications(t *testing.T) {
	g := &fakeGateway{state: permission.StateGranted}
	r := router.New(g, router.DefaultPolicy())

	n := note(model.TypeComment, model.PriorityMedium)
	assert.True(t, r.ShouldEscalate(n))

	r.SetPolicy(r.Policy().Disable(model.TypeComment))
	assert.False(t, r.ShouldEscalate(n))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "skipped", router.OutcomeSkipped.String())
	assert.Equal(t, "denied", router.OutcomeDenied.String())
	assert.Equal(t, "shown", router.OutcomeShown.String())
}

func TestMixedBatchWithCommentsDisabled(t *testing.T) {
	g := &fakeGateway{state: permission.StateDefault, answer: true}
	r := router.New(g, router.DefaultPolicy().Disable(model.TypeComment))

	batch := []model.Notification{
		note(model.TypeBudgetAlert, model.PriorityHigh),
		note(model.TypeComment, model.PriorityMedium),
		note(model.TypeSystem, model.PriorityLow),
	}

	attempts := 0
	for _, n := range batch {
		if r.ShouldEscalate(n) {
			attempts++
		}
		r.Route(context.Background(), n)
	}

	assert.Equal(t, 1, attempts)
	assert.Equal(t, []string{"budget_alert"}, g.Shown())
	assert.Equal(t, 1, g.requests)
}

func TestBurstOfEscalationsPromptsOnce(t *testing.T) {
	tests := []struct {
		name      string
		answer    bool
		wantState permission.State
		wantShown int
	}{
		{"denied", false, permission.StateDenied, 0},
		{"granted", true, permission.StateGranted, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testutil.NewFakePlatform(tt.answer)
			p.Delay = 50 * time.Millisecond
			g := permission.NewGateway(p, nil, permission.WithLogger(testutil.DiscardLogger()))
			r := router.New(g, router.DefaultPolicy(), router.WithLogger(testutil.DiscardLogger()))

			s := notify.New(store.NewAdapter(store.NewMemoryMedium(), "notifications"), event.NewBus(),
				notify.WithLogger(testutil.DiscardLogger()))
			defer r.Attach(s.Bus())()

			for range 3 {
				_, err := s.Add(model.Input{Title: "transfer", Message: "m", Type: model.TypeFinancialAlert, Priority: model.PriorityHigh})
				require.NoError(t, err)
			}
			r.Wait()

			assert.Equal(t, 1, p.Prompts())
			assert.Equal(t, tt.wantState, g.State())
			assert.Len(t, p.Alerts(), tt.wantShown)
		})
	}
}
