// Package history provides SQLite-backed execution history.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/claudetask/scheduler/internal/domain"
)

// Store provides SQLite-backed persistence for execution records.
type Store struct {
	db *sql.DB
}

// Execution is one recorded invocation of the tool for a task.
type Execution struct {
	ID            string
	TaskID        string
	Success       bool
	ExitCode      int
	Duration      time.Duration
	ChangedFiles  []string
	SessionID     string
	QuotaExceeded bool
	ErrorMessage  string
	WorkspacePath string
	StartedAt     time.Time
}

// RunRecord summarizes one scheduler run over the task list.
type RunRecord struct {
	ID             int64
	StartedAt      time.Time
	FinishedAt     time.Time
	TasksProcessed int
	TasksCompleted int
	TasksFailed    int
	TasksPaused    int
	HaltedOnQuota  bool
}

// New creates a new Store with the given database path.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordExecution stores the outcome of one task execution and returns
// the record's ID.
func (s *Store) RecordExecution(taskID string, result *domain.ExecutionResult, startedAt time.Time) (string, error) {
	filesJSON, err := json.Marshal(result.ChangedFiles)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = s.db.Exec(`
		INSERT INTO executions (id, task_id, success, exit_code, duration_ms, changed_files, session_id, quota_exceeded, error_message, workspace_path, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		taskID,
		result.Success,
		result.ExitCode,
		result.Duration.Milliseconds(),
		string(filesJSON),
		result.SessionID,
		result.QuotaExceeded,
		result.ErrorMessage,
		result.WorkspacePath,
		startedAt,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListByTask returns all executions recorded for a task, newest first.
func (s *Store) ListByTask(taskID string) ([]*Execution, error) {
	rows, err := s.db.Query(`
		SELECT id, task_id, success, exit_code, duration_ms, changed_files, session_id, quota_exceeded, error_message, workspace_path, started_at
		FROM executions WHERE task_id = ? ORDER BY started_at DESC
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// Recent returns the most recent executions across all tasks.
func (s *Store) Recent(limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, task_id, success, exit_code, duration_ms, changed_files, session_id, quota_exceeded, error_message, workspace_path, started_at
		FROM executions ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// RecordRun stores the summary of a completed scheduler run.
func (s *Store) RecordRun(run RunRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (started_at, finished_at, tasks_processed, tasks_completed, tasks_failed, tasks_paused, halted_on_quota)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.StartedAt,
		run.FinishedAt,
		run.TasksProcessed,
		run.TasksCompleted,
		run.TasksFailed,
		run.TasksPaused,
		run.HaltedOnQuota,
	)
	return err
}

// RecentRuns returns the most recent run summaries, newest first.
func (s *Store) RecentRuns(limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, tasks_processed, tasks_completed, tasks_failed, tasks_paused, halted_on_quota
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.TasksProcessed, &r.TasksCompleted, &r.TasksFailed, &r.TasksPaused, &r.HaltedOnQuota); err != nil {
			return nil, err
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

func scanExecutions(rows *sql.Rows) ([]*Execution, error) {
	var execs []*Execution
	for rows.Next() {
		var e Execution
		var durationMs int64
		var filesJSON string
		var sessionID, errorMessage, workspacePath sql.NullString

		err := rows.Scan(&e.ID, &e.TaskID, &e.Success, &e.ExitCode, &durationMs, &filesJSON, &sessionID, &e.QuotaExceeded, &errorMessage, &workspacePath, &e.StartedAt)
		if err != nil {
			return nil, err
		}

		e.Duration = time.Duration(durationMs) * time.Millisecond
		e.SessionID = sessionID.String
		e.ErrorMessage = errorMessage.String
		e.WorkspacePath = workspacePath.String

		if filesJSON != "" && filesJSON != "null" {
			if err := json.Unmarshal([]byte(filesJSON), &e.ChangedFiles); err != nil {
				return nil, err
			}
		}

		execs = append(execs, &e)
	}
	return execs, rows.Err()
}
