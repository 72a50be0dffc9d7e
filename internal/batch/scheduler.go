// Package batch schedules recurring task runs from cron expressions.
package batch

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/claudetask/scheduler/internal/config"
)

const defaultMaxTasks = 5

// Scheduler tracks configured batches and decides when they are due.
type Scheduler struct {
	configs map[string]config.BatchConfig
	parser  cron.Parser
	lastRun map[string]time.Time
	running map[string]bool
	mu      sync.RWMutex

	now func() time.Time
}

// NewScheduler creates a scheduler from batch configurations.
func NewScheduler(configs []config.BatchConfig) (*Scheduler, error) {
	s := &Scheduler{
		configs: make(map[string]config.BatchConfig),
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		lastRun: make(map[string]time.Time),
		running: make(map[string]bool),
		now:     time.Now,
	}

	for _, cfg := range configs {
		validated, err := Validate(cfg)
		if err != nil {
			return nil, err
		}
		s.configs[validated.Name] = validated
	}

	return s, nil
}

// Validate checks a batch configuration and fills in defaults.
func Validate(cfg config.BatchConfig) (config.BatchConfig, error) {
	if cfg.Name == "" {
		return cfg, fmt.Errorf("batch name is required")
	}
	if cfg.Cron == "" {
		return cfg, fmt.Errorf("batch %s: cron expression is required", cfg.Name)
	}
	if _, err := ParseCron(cfg.Cron); err != nil {
		return cfg, fmt.Errorf("batch %s: invalid cron expression: %w", cfg.Name, err)
	}
	if cfg.MaxTasks <= 0 {
		cfg.MaxTasks = defaultMaxTasks
	}
	return cfg, nil
}

// ParseCron parses a standard 5-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// NextRun returns the next scheduled run time for a batch.
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[name]
	if !ok {
		return time.Time{}
	}

	sched, err := s.parser.Parse(cfg.Cron)
	if err != nil {
		return time.Time{}
	}

	return sched.Next(s.now())
}

// ShouldRun returns true if a batch is due and not already running.
func (s *Scheduler) ShouldRun(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[name]
	if !ok {
		return false
	}

	if s.running[name] {
		return false
	}

	sched, err := s.parser.Parse(cfg.Cron)
	if err != nil {
		return false
	}

	lastRun := s.lastRun[name]
	if lastRun.IsZero() {
		lastRun = s.now().Add(-24 * time.Hour)
	}

	return s.now().After(sched.Next(lastRun))
}

// Due returns the names of all batches that should run now.
func (s *Scheduler) Due() []string {
	var due []string
	for _, name := range s.ListBatches() {
		if s.ShouldRun(name) {
			due = append(due, name)
		}
	}
	return due
}

// MarkRunning marks a batch as currently running.
func (s *Scheduler) MarkRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = true
}

// MarkComplete marks a batch as complete.
func (s *Scheduler) MarkComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = s.now()
}

// GetConfig returns the config for a batch.
func (s *Scheduler) GetConfig(name string) (config.BatchConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[name]
	return cfg, ok
}

// ListBatches returns all batch names.
func (s *Scheduler) ListBatches() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.configs))
	for name := range s.configs {
		names = append(names, name)
	}
	return names
}
