package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/nhle/finance-dashboard/internal/permission"
)

// Alert is one call to FakePlatform.Display.
type Alert struct {
	Title   string
	Options permission.Options
}

// FakePlatform is a scriptable permission.Platform that records prompts
// and displayed alerts.
type FakePlatform struct {
	IsSupported bool
	Answer      bool
	PromptErr   error
	DisplayErr  error

	// Delay holds each consent prompt open for this long.
	Delay time.Duration

	mu      sync.Mutex
	prompts int
	alerts  []Alert
}

// NewFakePlatform returns a supported platform that answers prompts
// with answer.
func NewFakePlatform(answer bool) *FakePlatform {
	return &FakePlatform{IsSupported: true, Answer: answer}
}

func (p *FakePlatform) Supported() bool {
	return p.IsSupported
}

func (p *FakePlatform) RequestConsent(ctx context.Context) (bool, error) {
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.prompts++
	if p.PromptErr != nil {
		return false, p.PromptErr
	}
	return p.Answer, nil
}

func (p *FakePlatform) Display(title string, opts permission.Options) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.DisplayErr != nil {
		return p.DisplayErr
	}
	p.alerts = append(p.alerts, Alert{Title: title, Options: opts})
	return nil
}

// Prompts returns how many times consent was requested.
func (p *FakePlatform) Prompts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts
}

// Alerts returns a copy of the displayed alerts in order.
func (p *FakePlatform) Alerts() []Alert {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Alert(nil), p.alerts...)
}
