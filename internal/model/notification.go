package model

import (
	"errors"
	"fmt"
	"time"
)

// Type is the category of a notification. It drives escalation policy
// and UI grouping.
type Type string

const (
	TypeFinancialAlert  Type = "financial_alert"
	TypeBudgetAlert     Type = "budget_alert"
	TypeApprovalRequest Type = "approval_request"
	TypeComment         Type = "comment"
	TypeSystem          Type = "system"
)

// Types lists every known notification type in display order.
var Types = []Type{
	TypeFinancialAlert,
	TypeBudgetAlert,
	TypeApprovalRequest,
	TypeComment,
	TypeSystem,
}

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Priority is the escalation weight of a notification, independent of
// its type.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Priorities lists the priorities from most to least urgent.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// ErrInvalidNotification is returned when an Input is missing a required
// field or names an unknown type or priority.
var ErrInvalidNotification = errors.New("invalid notification")

// Notification is a single alert record. Everything except IsRead is
// fixed at creation.
type Notification struct {
	// ID is unique within the store and never reused.
	ID string `json:"id"`

	// Title is the short display heading.
	Title string `json:"title"`

	// Message is the display body.
	Message string `json:"message"`

	// Type is the notification category.
	Type Type `json:"type"`

	// Priority is the escalation weight.
	Priority Priority `json:"priority"`

	// Timestamp is when the notification was created.
	Timestamp time.Time `json:"timestamp"`

	// IsRead indicates whether the user has seen this notification.
	// Once true it stays true.
	IsRead bool `json:"isRead"`

	// Data holds opaque caller values such as a deep-link target.
	Data map[string]any `json:"data,omitempty"`
}

// Clone returns a copy of n that shares no mutable state with it. Nested
// maps and slices inside Data are copied as well.
func (n Notification) Clone() Notification {
	if n.Data != nil {
		n.Data = cloneMap(n.Data)
	}
	return n
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		if v == nil {
			return v
		}
		return cloneMap(v)
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Input is the caller-supplied part of a new notification.
type Input struct {
	Title    string
	Message  string
	Type     Type
	Priority Priority
	Data     map[string]any
}

// Validate checks the required fields and fills the default priority.
func (in *Input) Validate() error {
	switch {
	case in.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidNotification)
	case in.Message == "":
		return fmt.Errorf("%w: message is required", ErrInvalidNotification)
	case in.Type == "":
		return fmt.Errorf("%w: type is required", ErrInvalidNotification)
	case !in.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, in.Type)
	}

	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !in.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidNotification, in.Priority)
	}
	return nil
}
