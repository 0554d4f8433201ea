package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventRunStart       EventType = "run_start"
	EventRunFinish      EventType = "run_finish"
	EventProgress       EventType = "progress"
	EventValuesChanged  EventType = "values_changed"
	EventCapabilityLoad EventType = "capability_load"
	EventSessionOpen    EventType = "session_open"
	EventSessionClose   EventType = "session_close"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	ToolID    string    `json:"tool_id"`
}

// RunEvent represents the start or the end of a run.
type RunEvent struct {
	EventBase
	Run *ExecutionRun `json:"run"`
}

// ProgressEvent represents one merged progress patch.
type ProgressEvent struct {
	EventBase
	Seq     uint64   `json:"seq"`
	Changed []string `json:"changed"`
}

// CapabilityEvent represents a settled capability load.
type CapabilityEvent struct {
	EventBase
	ModuleID string        `json:"module_id"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// LifecycleHooks defines callbacks for runtime observability.
// Any hook may be nil.
type LifecycleHooks struct {
	OnRunStart       func(context.Context, *RunEvent)
	OnRunFinish      func(context.Context, *RunEvent)
	OnProgress       func(context.Context, *ProgressEvent)
	OnCapabilityLoad func(context.Context, *CapabilityEvent)
	OnSessionOpen    func(context.Context, EventBase)
	OnSessionClose   func(context.Context, EventBase)
}

// Chain returns hooks that call h first and then next.
func (h LifecycleHooks) Chain(next LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnRunStart:       chain(h.OnRunStart, next.OnRunStart),
		OnRunFinish:      chain(h.OnRunFinish, next.OnRunFinish),
		OnProgress:       chain(h.OnProgress, next.OnProgress),
		OnCapabilityLoad: chain(h.OnCapabilityLoad, next.OnCapabilityLoad),
		OnSessionOpen:    chainValue(h.OnSessionOpen, next.OnSessionOpen),
		OnSessionClose:   chainValue(h.OnSessionClose, next.OnSessionClose),
	}
}

func chain[E any](a, b func(context.Context, *E)) func(context.Context, *E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *E) {
		a(ctx, e)
		b(ctx, e)
	}
}

func chainValue[E any](a, b func(context.Context, E)) func(context.Context, E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
