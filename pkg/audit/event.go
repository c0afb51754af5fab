// Package audit records what each reconciliation pass did to each device.
// The log is append-only; nothing reads it back as state.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Operations recorded by vtpsync.
const (
	OpReconcile = "reconcile"
	OpVLAN      = "vlan"
	OpPort      = "port"
	OpSave      = "save"
)

// Event is one audited device operation.
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	User      string        `json:"user"`
	Device    string        `json:"device"`
	Operation string        `json:"operation"`
	Changes   []string      `json:"changes"`
	Saved     bool          `json:"saved"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	DryRun    bool          `json:"dry_run"`
	Duration  time.Duration `json:"duration"`
}

// Filter selects events in Query. Zero fields match everything.
type Filter struct {
	Device      string
	Operation   string
	Since       time.Time
	Until       time.Time
	FailureOnly bool
	Limit       int
}

// Match reports whether e passes the filter.
func (f Filter) Match(e *Event) bool {
	switch {
	case f.Device != "" && e.Device != f.Device:
		return false
	case f.Operation != "" && e.Operation != f.Operation:
		return false
	case !f.Since.IsZero() && e.Timestamp.Before(f.Since):
		return false
	case !f.Until.IsZero() && e.Timestamp.After(f.Until):
		return false
	case f.FailureOnly && e.Success:
		return false
	}
	return true
}

// NewEvent creates an event stamped with a fresh ID and the current time.
func NewEvent(user, device, operation string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		User:      user,
		Device:    device,
		Operation: operation,
	}
}

// WithChanges sets the rendered changes.
func (e *Event) WithChanges(changes []string) *Event {
	e.Changes = changes
	return e
}

// WithResult marks the event successful when err is nil.
func (e *Event) WithResult(err error) *Event {
	e.Success = err == nil
	e.Error = ""
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDryRun marks the event as a preview.
func (e *Event) WithDryRun(dryRun bool) *Event {
	e.DryRun = dryRun
	return e
}

// WithSaved records whether the running config was persisted.
func (e *Event) WithSaved(saved bool) *Event {
	e.Saved = saved
	return e
}

// WithDuration sets how long the operation took.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}
