package domain

import "time"

// Notice bus sources used by the runtime.
const (
	SourceExecution  = "tool.execution"
	SourceCapability = "tool.capability"
	SourceIsolation  = "tool.isolation"
)

// NoticeLevel is the severity of a notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// NoticeEntry is a user-facing message keyed by source.
type NoticeEntry struct {
	Source    string      `json:"source"`
	Level     NoticeLevel `json:"level"`
	Message   string      `json:"message"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// IndicatorState is the execution indicator shown to the user.
type IndicatorState string

const (
	IndicatorIdle    IndicatorState = "idle"
	IndicatorRunning IndicatorState = "running"
	IndicatorSuccess IndicatorState = "success"
	IndicatorError   IndicatorState = "error"
)
