// Package router decides which newly added notifications are escalated
// to the platform alert surface, and performs the escalation.
package router

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/nhle/finance-dashboard/internal/event"
	"github.com/nhle/finance-dashboard/internal/model"
	"github.com/nhle/finance-dashboard/internal/permission"
)

// escalationTimeout bounds a single escalation, including the consent
// prompt.
const escalationTimeout = 2 * time.Minute

// Gateway is the permission side of an escalation.
type Gateway interface {
	State() permission.State
	RequestPermission(ctx context.Context) bool
	ShowNotification(title string, opts permission.Options)
}

// Outcome is the result of routing one notification.
type Outcome int

const (
	// OutcomeSkipped means the policy does not escalate the notification.
	OutcomeSkipped Outcome = iota
	// OutcomeDenied means escalation was wanted but permission is missing.
	OutcomeDenied
	// OutcomeShown means the notification was handed to the platform.
	OutcomeShown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDenied:
		return "denied"
	case OutcomeShown:
		return "shown"
	default:
		return "skipped"
	}
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger for escalation results.
func WithLogger(l *log.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithRepromptDenied makes the router prompt again after the user has
// denied consent. By default a denial is final until reset.
func WithRepromptDenied(reprompt bool) Option {
	return func(r *Router) { r.repromptDenied = reprompt }
}

// WithAlertDefaults sets the icon, badge and vibration pattern attached
// to every alert.
func WithAlertDefaults(icon, badge string, vibrate []int) Option {
	return func(r *Router) {
		r.icon, r.badge, r.vibrate = icon, badge, vibrate
	}
}

// Router applies a Policy to new notifications and escalates the ones it
// selects through a Gateway.
type Router struct {
	gateway        Gateway
	logger         *log.Logger
	repromptDenied bool
	icon           string
	badge          string
	vibrate        []int

	mu     sync.RWMutex
	policy Policy

	// promptMu makes the consent check and the prompt one step, so a
	// burst of escalations yields a single prompt. promptGen counts
	// finished prompts.
	promptMu  sync.Mutex
	promptGen atomic.Uint64

	wg conc.WaitGroup
}

// New creates a Router using policy p.
func New(g Gateway, p Policy, opts ...Option) *Router {
	r := &Router{
		gateway: g,
		logger:  log.Default(),
		policy:  p.clone(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetPolicy replaces the policy for subsequent notifications.
func (r *Router) SetPolicy(p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policy = p.clone()
}

// Policy returns a copy of the current policy.
func (r *Router) Policy() Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policy.clone()
}

// ShouldEscalate reports whether the current policy escalates n.
func (r *Router) ShouldEscalate(n model.Notification) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policy.Allows(n.Type, n.Priority)
}

// Route escalates n if the policy selects it, asking for permission
// first when it has not been granted.
func (r *Router) Route(ctx context.Context, n model.Notification) Outcome {
	if !r.ShouldEscalate(n) {
		return OutcomeSkipped
	}

	if !r.permitted(ctx) {
		return OutcomeDenied
	}

	r.gateway.ShowNotification(n.Title, r.options(n))
	return OutcomeShown
}

// permitted reports whether alerts may be shown, prompting at most once
// for every group of callers that arrive while a prompt is open.
func (r *Router) permitted(ctx context.Context) bool {
	if r.gateway.State() == permission.StateGranted {
		return true
	}

	gen := r.promptGen.Load()
	r.promptMu.Lock()
	defer r.promptMu.Unlock()

	// A prompt finished while we waited; its answer stands.
	if r.promptGen.Load() != gen {
		return r.gateway.State() == permission.StateGranted
	}

	switch r.gateway.State() {
	case permission.StateGranted:
		return true
	case permission.StateUnsupported:
		return false
	case permission.StateDenied:
		if !r.repromptDenied {
			return false
		}
	}

	defer r.promptGen.Add(1)
	return r.gateway.RequestPermission(ctx)
}

func (r *Router) options(n model.Notification) permission.Options {
	return permission.Options{
		Body:               n.Message,
		Icon:               r.icon,
		Badge:              r.badge,
		Vibrate:            r.vibrate,
		Data:               n.Data,
		Tag:                n.ID,
		RequireInteraction: n.Priority == model.PriorityHigh,
	}
}

// Attach subscribes the router to add events on bus. Each escalation
// runs on its own goroutine so a consent prompt never blocks the
// publisher. The returned function unsubscribes.
func (r *Router) Attach(bus *event.Bus) func() {
	return bus.Subscribe(func(e event.Event) {
		if e.Kind != event.KindAdd || e.Notification == nil {
			return
		}
		n := e.Notification.Clone()
		if !r.ShouldEscalate(n) {
			return
		}

		r.wg.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), escalationTimeout)
			defer cancel()

			if outcome := r.Route(ctx, n); outcome == OutcomeDenied {
				r.logger.Printf("notification %s not escalated: permission not granted", n.ID)
			}
		})
	})
}

// Wait blocks until every escalation started by Attach has finished.
func (r *Router) Wait() {
	r.wg.Wait()
}
