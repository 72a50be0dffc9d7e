// Package taskstore persists the task collection in a single YAML file.
// Every mutation is a read-modify-write of the whole file; the design
// assumes one scheduler process at a time.
package taskstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/claudetask/scheduler/internal/domain"
)

// SchemaVersion is written into the file's meta block.
const SchemaVersion = "1.0"

// ErrTaskNotFound is returned when an operation names an unknown task ID.
var ErrTaskNotFound = errors.New("task not found")

// DefaultMaxAttempts is assigned to newly added tasks.
const DefaultMaxAttempts = 3

// Store provides file-backed task persistence
type Store struct {
	path string
}

type fileMeta struct {
	Version     string    `yaml:"version"`
	LastUpdated time.Time `yaml:"last_updated"`
}

type fileData struct {
	Meta  fileMeta       `yaml:"meta"`
	Tasks []*domain.Task `yaml:"tasks"`
}

// New creates a Store backed by the given file, initializing it if absent
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating tasks dir: %w", err)
	}

	s := &Store{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.save(nil); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Path returns the backing file path
func (s *Store) Path() string {
	return s.path
}

// load reads the whole file. A missing or corrupt file degrades to an
// empty collection with a warning; losing reads is recoverable, losing
// writes is not.
func (s *Store) load() (*fileData, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileData{Meta: fileMeta{Version: SchemaVersion}}, nil
		}
		return nil, err
	}

	var data fileData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not parse tasks file %s: %v\n", s.path, err)
		return &fileData{Meta: fileMeta{Version: SchemaVersion}}, nil
	}
	if data.Meta.Version == "" {
		data.Meta.Version = SchemaVersion
	}
	return &data, nil
}

func (s *Store) save(tasks []*domain.Task) error {
	data := fileData{
		Meta: fileMeta{
			Version:     SchemaVersion,
			LastUpdated: time.Now().UTC(),
		},
		Tasks: tasks,
	}

	raw, err := yaml.Marshal(&data)
	if err != nil {
		return fmt.Errorf("encoding tasks: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0644); err != nil {
		return fmt.Errorf("writing tasks file: %w", err)
	}
	return nil
}

// Load returns all tasks in file order
func (s *Store) Load() ([]*domain.Task, error) {
	data, err := s.load()
	if err != nil {
		return nil, err
	}
	return data.Tasks, nil
}

// Save replaces the whole persisted collection
func (s *Store) Save(tasks []*domain.Task) error {
	return s.save(tasks)
}

// Add creates a new pending task with a fresh task-NNN id
func (s *Store) Add(title, description, template string) (*domain.Task, error) {
	data, err := s.load()
	if err != nil {
		return nil, err
	}

	if template == "" {
		template = "default"
	}

	task := &domain.Task{
		ID:             nextID(data.Tasks),
		Title:          title,
		Description:    description,
		PromptTemplate: template,
		Status:         domain.StatusPending,
		CreatedAt:      time.Now().UTC(),
		MaxAttempts:    DefaultMaxAttempts,
	}

	data.Tasks = append(data.Tasks, task)
	if err := s.save(data.Tasks); err != nil {
		return nil, err
	}
	return task, nil
}

// nextID picks the next unused numeric suffix among existing task-NNN ids
func nextID(tasks []*domain.Task) string {
	max := 0
	for _, t := range tasks {
		if n, ok := domain.ParseTaskNum(t.ID); ok && n > max {
			max = n
		}
	}
	return domain.FormatTaskID(max + 1)
}

// Get retrieves a task by ID
func (s *Store) Get(id string) (*domain.Task, error) {
	data, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, t := range data.Tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, ErrTaskNotFound
}

// Update applies mutate to the task with the given ID and rewrites the file
func (s *Store) Update(id string, mutate func(*domain.Task)) error {
	data, err := s.load()
	if err != nil {
		return err
	}
	for _, t := range data.Tasks {
		if t.ID == id {
			mutate(t)
			return s.save(data.Tasks)
		}
	}
	return ErrTaskNotFound
}

// Delete removes a task by ID
func (s *Store) Delete(id string) error {
	data, err := s.load()
	if err != nil {
		return err
	}

	kept := data.Tasks[:0]
	found := false
	for _, t := range data.Tasks {
		if t.ID == id {
			found = true
			continue
		}
		kept = append(kept, t)
	}
	if !found {
		return ErrTaskNotFound
	}
	return s.save(kept)
}

// ListByStatus returns tasks with the given status, or all tasks when
// status is empty
func (s *Store) ListByStatus(status domain.TaskStatus) ([]*domain.Task, error) {
	data, err := s.load()
	if err != nil {
		return nil, err
	}
	if status == "" {
		return data.Tasks, nil
	}

	var out []*domain.Task
	for _, t := range data.Tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

// Statistics holds per-status task counts
type Statistics struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
	Paused    int
}

// Statistics counts tasks per status
func (s *Store) Statistics() (Statistics, error) {
	data, err := s.load()
	if err != nil {
		return Statistics{}, err
	}

	stats := Statistics{Total: len(data.Tasks)}
	for _, t := range data.Tasks {
		switch t.Status {
		case domain.StatusPending:
			stats.Pending++
		case domain.StatusRunning:
			stats.Running++
		case domain.StatusCompleted:
			stats.Completed++
		case domain.StatusFailed:
			stats.Failed++
		case domain.StatusPaused:
			stats.Paused++
		}
	}
	return stats, nil
}

// MarkRunning transitions a task into running. This is the only place
// attempts is incremented.
func (s *Store) MarkRunning(id, sessionID string) error {
	now := time.Now().UTC()
	return s.Update(id, func(t *domain.Task) {
		t.Status = domain.StatusRunning
		t.StartedAt = &now
		t.Attempts++
		if sessionID != "" {
			t.SessionID = sessionID
		}
	})
}

// MarkCompleted transitions a task into completed and clears its error
func (s *Store) MarkCompleted(id string) error {
	now := time.Now().UTC()
	return s.Update(id, func(t *domain.Task) {
		t.Status = domain.StatusCompleted
		t.CompletedAt = &now
		t.LastError = ""
	})
}

// MarkFailed transitions a task into failed with the given error message
func (s *Store) MarkFailed(id, errMsg string) error {
	now := time.Now().UTC()
	return s.Update(id, func(t *domain.Task) {
		t.Status = domain.StatusFailed
		t.CompletedAt = &now
		t.LastError = errMsg
	})
}

// MarkPaused transitions a task into paused, recording the reason
func (s *Store) MarkPaused(id, reason string) error {
	return s.Update(id, func(t *domain.Task) {
		t.Status = domain.StatusPaused
		t.LastError = reason
	})
}

// Reset returns a task to pending, clearing timestamps, error and session
func (s *Store) Reset(id string) error {
	return s.Update(id, func(t *domain.Task) {
		t.Status = domain.StatusPending
		t.StartedAt = nil
		t.CompletedAt = nil
		t.LastError = ""
		t.SessionID = ""
	})
}
