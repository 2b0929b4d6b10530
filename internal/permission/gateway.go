// Package permission negotiates and caches the user's consent to show
// platform-level alerts, and forwards alerts to the platform once
// consent is granted.
package permission

import (
	"context"
	"log"
	"sync"
)

// State is the consent state of the platform alert surface.
type State string

const (
	// StateUnsupported means the platform has no native alert surface.
	StateUnsupported State = "unsupported"
	// StateDefault means the user has not been asked yet.
	StateDefault State = "default"
	StateGranted State = "granted"
	StateDenied  State = "denied"
)

// Options describes a platform alert beyond its title.
type Options struct {
	Body    string
	Icon    string
	Badge   string
	Vibrate []int
	Data    map[string]any

	// Tag identifies the alert so the platform can replace an earlier
	// one with the same tag.
	Tag string

	// RequireInteraction asks the platform to keep the alert visible
	// until the user acts on it.
	RequireInteraction bool
}

// Platform is the native alert primitive.
type Platform interface {
	// Supported reports whether the platform can show alerts at all.
	Supported() bool

	// RequestConsent prompts the user and returns their answer.
	RequestConsent(ctx context.Context) (bool, error)

	// Display shows a single alert.
	Display(title string, opts Options) error
}

// ConsentCache remembers the user's answer across restarts.
type ConsentCache interface {
	Load() (State, bool, error)
	Save(State) error
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger used for swallowed platform failures.
func WithLogger(l *log.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// Gateway tracks consent and forwards alerts to the platform. Platform
// support is checked once, at construction.
type Gateway struct {
	platform Platform
	consent  ConsentCache
	logger   *log.Logger

	// promptMu serializes prompts so concurrent callers do not stack
	// consent dialogs.
	promptMu sync.Mutex

	mu    sync.Mutex
	state State
}

// NewGateway creates a Gateway for p. A nil p or one that reports no
// support yields a permanently unsupported gateway. A previously cached
// answer in c is restored; c may be nil.
func NewGateway(p Platform, c ConsentCache, opts ...Option) *Gateway {
	g := &Gateway{
		platform: p,
		consent:  c,
		logger:   log.Default(),
		state:    StateDefault,
	}
	for _, opt := range opts {
		opt(g)
	}

	if p == nil || !p.Supported() {
		g.state = StateUnsupported
		return g
	}

	if c != nil {
		cached, ok, err := c.Load()
		switch {
		case err != nil:
			g.logger.Printf("failed to load cached notification consent: %v", err)
		case ok && (cached == StateGranted || cached == StateDenied):
			g.state = cached
		}
	}
	return g
}

// State returns the current consent state.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gateway) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()

	if g.consent == nil {
		return
	}
	if err := g.consent.Save(s); err != nil {
		g.logger.Printf("failed to cache notification consent: %v", err)
	}
}

// RequestPermission returns whether alerts may be shown. It never
// prompts on an unsupported platform or when consent was already
// granted; otherwise it prompts once and caches the answer. A failed
// prompt counts as not granted and leaves the state unchanged.
func (g *Gateway) RequestPermission(ctx context.Context) bool {
	switch g.State() {
	case StateUnsupported:
		return false
	case StateGranted:
		return true
	}

	g.promptMu.Lock()
	defer g.promptMu.Unlock()

	// Another caller may have been granted while we waited.
	if g.State() == StateGranted {
		return true
	}

	granted, err := g.platform.RequestConsent(ctx)
	if err != nil {
		g.logger.Printf("failed to request notification consent: %v", err)
		return false
	}

	if granted {
		g.setState(StateGranted)
	} else {
		g.setState(StateDenied)
	}
	return granted
}

// ShowNotification displays an alert when consent is granted and does
// nothing otherwise. Platform failures are logged, never returned.
func (g *Gateway) ShowNotification(title string, opts Options) {
	if g.State() != StateGranted {
		return
	}
	if err := g.platform.Display(title, opts); err != nil {
		g.logger.Printf("failed to show notification %q: %v", title, err)
	}
}
