package permission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/nhle/finance-dashboard/internal/theme"
)

// ErrMalformedAlert is returned by TerminalPlatform.Display for alerts
// it cannot render.
var ErrMalformedAlert = errors.New("malformed alert")

// TerminalOption configures a TerminalPlatform.
type TerminalOption func(*TerminalPlatform)

// WithSupported overrides terminal detection.
func WithSupported(supported bool) TerminalOption {
	return func(t *TerminalPlatform) { t.supported = supported }
}

// WithConfirm replaces the interactive consent prompt.
func WithConfirm(fn func(ctx context.Context, title, description string) (bool, error)) TerminalOption {
	return func(t *TerminalPlatform) { t.confirm = fn }
}

// TerminalPlatform shows alerts as framed banners on a terminal and asks
// for consent with an interactive confirm prompt.
type TerminalPlatform struct {
	out       io.Writer
	appName   string
	supported bool
	confirm   func(ctx context.Context, title, description string) (bool, error)
}

// NewTerminalPlatform creates a platform writing to out. It is supported
// only when out is a terminal.
func NewTerminalPlatform(out io.Writer, appName string, opts ...TerminalOption) *TerminalPlatform {
	t := &TerminalPlatform{
		out:       out,
		appName:   appName,
		supported: isTerminal(out),
		confirm:   huhConfirm,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// huhConfirm runs a single confirm field as a form.
func huhConfirm(ctx context.Context, title, description string) (bool, error) {
	allow := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Allow").
				Negative("Block").
				Value(&allow),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return false, fmt.Errorf("running consent prompt: %w", err)
	}
	return allow, nil
}

// Supported reports whether the output is a terminal.
func (t *TerminalPlatform) Supported() bool {
	return t.supported
}

// RequestConsent asks the user whether alerts may be shown.
func (t *TerminalPlatform) RequestConsent(ctx context.Context) (bool, error) {
	return t.confirm(ctx,
		fmt.Sprintf("Allow %s to show alerts?", t.appName),
		"High-priority financial and budget alerts will pop up in this terminal.",
	)
}

// Display renders a banner for the alert and rings the terminal bell.
func (t *TerminalPlatform) Display(title string, opts Options) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: empty title", ErrMalformedAlert)
	}

	heading := lipgloss.NewStyle().Bold(true).Render(title)
	if opts.Icon != "" {
		heading = opts.Icon + " " + heading
	}

	lines := []string{heading}
	if opts.Body != "" {
		lines = append(lines, opts.Body)
	}
	if t.appName != "" {
		lines = append(lines, theme.HelpStyle.Render(t.appName))
	}

	banner := theme.AlertStyle(opts.RequireInteraction).Render(strings.Join(lines, "\n"))
	if _, err := fmt.Fprintf(t.out, "\a%s\n", banner); err != nil {
		return fmt.Errorf("writing alert: %w", err)
	}
	return nil
}
