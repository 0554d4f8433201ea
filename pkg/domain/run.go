package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunState is the lifecycle state of an ExecutionRun.
type RunState string

const (
	RunPending   RunState = "pending"
	RunRunning   RunState = "running"
	RunSucceeded RunState = "succeeded"
	RunFailed    RunState = "failed"
)

// DefaultRunLogLimit bounds the number of log lines kept per run.
const DefaultRunLogLimit = 100

// ExecutionRequest is one dispatched trigger.
type ExecutionRequest struct {
	Seq      uint64    `json:"seq"`
	Trigger  string    `json:"trigger,omitempty"` // NoTrigger for forced/initial runs
	Snapshot Values    `json:"-"`
	At       time.Time `json:"at"`
}

// Forced reports whether the request has no specific trigger.
func (r ExecutionRequest) Forced() bool {
	return r.Trigger == NoTrigger
}

// ExecutionRun records the outcome of one ExecutionRequest.
type ExecutionRun struct {
	ID         string     `json:"id"`
	Seq        uint64     `json:"seq"`
	Trigger    string     `json:"trigger,omitempty"`
	State      RunState   `json:"state"`
	Err        error      `json:"-"`
	Error      string     `json:"error,omitempty"`
	Progress   int        `json:"progress"` // number of progress patches merged
	Logs       []LogEntry `json:"logs,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`

	logLimit int
}

// NewRun creates a pending run for the request.
func NewRun(req ExecutionRequest) *ExecutionRun {
	return &ExecutionRun{
		ID:       uuid.NewString(),
		Seq:      req.Seq,
		Trigger:  req.Trigger,
		State:    RunPending,
		logLimit: DefaultRunLogLimit,
	}
}

// Start marks the run as running.
func (r *ExecutionRun) Start(now time.Time) {
	r.State = RunRunning
	r.StartedAt = now
}

// Finish settles the run. A nil error marks it succeeded.
func (r *ExecutionRun) Finish(now time.Time, err error) {
	r.FinishedAt = now
	if err != nil {
		r.State = RunFailed
		r.Err = err
		r.Error = err.Error()
		return
	}
	r.State = RunSucceeded
}

// AppendLog records a log line, dropping the oldest past the limit.
func (r *ExecutionRun) AppendLog(entry LogEntry) {
	limit := r.logLimit
	if limit <= 0 {
		limit = DefaultRunLogLimit
	}
	r.Logs = append(r.Logs, entry)
	if over := len(r.Logs) - limit; over > 0 {
		r.Logs = append(r.Logs[:0:0], r.Logs[over:]...)
	}
}

// Duration returns the elapsed run time, or zero if unsettled.
func (r *ExecutionRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Settled reports whether the run reached a terminal state.
func (r *ExecutionRun) Settled() bool {
	return r.State == RunSucceeded || r.State == RunFailed
}

// LogLevel is the severity of a log line.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEntry is one line of diagnostic output emitted inside the sandbox.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   LogLevel  `json:"level"`
	Message string    `json:"message"`
}
