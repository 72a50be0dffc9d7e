package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var taskIDRegex = regexp.MustCompile(`^task-(\d+)$`)

// Task is the unit of scheduled work. It is persisted in the task file and
// mutated only through the store's transition helpers.
type Task struct {
	ID             string     `yaml:"id"`
	Title          string     `yaml:"title"`
	Description    string     `yaml:"description"`
	PromptTemplate string     `yaml:"prompt_template"`
	Status         TaskStatus `yaml:"status"`
	CreatedAt      time.Time  `yaml:"created_at"`
	StartedAt      *time.Time `yaml:"started_at,omitempty"`
	CompletedAt    *time.Time `yaml:"completed_at,omitempty"`
	Attempts       int        `yaml:"attempts"`
	MaxAttempts    int        `yaml:"max_attempts"`
	LastError      string     `yaml:"last_error,omitempty"`
	SessionID      string     `yaml:"session_id,omitempty"`
	WorkspacePath  string     `yaml:"workspace_path,omitempty"`
}

// ParseTaskNum extracts the numeric suffix from an ID like "task-042".
func ParseTaskNum(id string) (int, bool) {
	matches := taskIDRegex.FindStringSubmatch(id)
	if matches == nil {
		return 0, false
	}
	n, _ := strconv.Atoi(matches[1]) // regex guarantees digits
	return n, true
}

// FormatTaskID returns the canonical ID for a task number.
func FormatTaskID(n int) string {
	return fmt.Sprintf("task-%03d", n)
}

// Resumable reports whether a paused task can be picked up again. Resume
// requires the session ID saved when the quota pause happened.
func (t *Task) Resumable() bool {
	return t.Status == StatusPaused && t.SessionID != ""
}

// AttemptsExhausted reports whether another retry is allowed.
func (t *Task) AttemptsExhausted() bool {
	return t.Attempts >= t.MaxAttempts
}
