package domain

import "time"

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusPaused    TaskStatus = "paused"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusPaused:
		return true
	}
	return false
}

// Terminal reports whether a task in this status is done until an explicit
// reset or delete.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Plan represents the subscription tier inferred from quota output
type Plan string

const (
	PlanUnknown Plan = ""
	PlanPro     Plan = "pro"
	PlanMax5    Plan = "max5"
	PlanMax20   Plan = "max20"
)

// TokenUsage is a snapshot of the external tool's quota. It is never
// persisted; each check produces a fresh one.
type TokenUsage struct {
	MessagesUsed   int
	MessagesLimit  int
	PercentageUsed float64
	TimeUntilReset time.Duration // zero when the output carried no countdown
	Plan           Plan
	RawOutput      string
	Timestamp      time.Time
}

// ExecutionResult captures one invocation of the external coding tool.
type ExecutionResult struct {
	Success       bool
	Stdout        string
	Stderr        string
	ExitCode      int
	Duration      time.Duration
	ChangedFiles  []string
	WorkspacePath string
	SessionID     string
	ErrorMessage  string
	QuotaExceeded bool
}
