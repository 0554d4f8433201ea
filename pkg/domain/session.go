package domain

import "time"

// SessionSnapshot is the persisted form of a session's widget values.
// It allows a session to be resumed after the process restarts.
type SessionSnapshot struct {
	SessionID string    `json:"session_id"`
	ToolID    string    `json:"tool_id"`
	ToolUID   string    `json:"tool_uid,omitempty"`
	Values    Values    `json:"values"`
	UpdatedAt time.Time `json:"updated_at"`
}
