package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by a tool session.
var (
	// ErrHandlerThrew is returned when the handler throws or its promise rejects.
	ErrHandlerThrew = errors.New("handler threw")

	// ErrCapabilityLoad is returned when a capability cannot be resolved.
	ErrCapabilityLoad = errors.New("capability load failed")

	// ErrMergeContract is returned when a patch references an unknown widget
	// or carries a value that cannot be stored. It is treated as ErrHandlerThrew.
	ErrMergeContract = errors.New("merge contract violation")

	// ErrIsolation is returned when the isolation primitive fails or is torn
	// down mid-run. It is fatal for the session.
	ErrIsolation = errors.New("host isolation failure")
)

var (
	// ErrToolNotFound is returned when a tool ID cannot be found in a repository.
	ErrToolNotFound = errors.New("tool not found")

	// ErrSessionNotFound is returned when a session ID cannot be found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnknownWidget is returned when an id is not declared by the tool.
	ErrUnknownWidget = errors.New("unknown widget")

	// ErrSessionClosed is returned when operating on a torn-down session.
	ErrSessionClosed = errors.New("session closed")

	// ErrInvalidTool is returned when a tool definition fails validation.
	ErrInvalidTool = errors.New("invalid tool")
)

// HandlerError describes a failure raised by handler code.
type HandlerError struct {
	// Message is the thrown value rendered as text.
	Message string

	// Stack is the handler-side stack trace, if the isolate provides one.
	Stack string

	// Err is the underlying error, if any.
	Err error
}

func (e *HandlerError) Error() string {
	return "handler error: " + e.Message
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Is lets HandlerError match ErrHandlerThrew.
func (e *HandlerError) Is(target error) bool {
	return target == ErrHandlerThrew
}

// CapabilityError describes a failed capability resolution.
type CapabilityError struct {
	ID  string
	Err error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability %q: %v", e.ID, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// Is lets CapabilityError match ErrCapabilityLoad.
func (e *CapabilityError) Is(target error) bool {
	return target == ErrCapabilityLoad
}

// NoticeSource returns the notice bus key an error is reported under.
// A handler that fails because a capability could not be loaded is reported
// as a capability failure.
func NoticeSource(err error) string {
	switch {
	case errors.Is(err, ErrIsolation):
		return SourceIsolation
	case errors.Is(err, ErrCapabilityLoad):
		return SourceCapability
	default:
		return SourceExecution
	}
}
