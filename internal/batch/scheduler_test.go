package batch

import (
	"testing"
	"time"

	"github.com/claudetask/scheduler/internal/config"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 22 * * *", false},   // 10 PM daily
		{"0 12 * * 1-5", false}, // noon weekdays
		{"*/5 * * * *", false},  // every 5 minutes
		{"invalid", true},
	}

	for _, tt := range tests {
		_, err := ParseCron(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := config.BatchConfig{
		Name:     "overnight",
		Cron:     "0 22 * * *",
		MaxTasks: 10,
	}

	if _, err := Validate(cfg); err != nil {
		t.Errorf("Valid config should not error: %v", err)
	}

	cfg.Name = ""
	if _, err := Validate(cfg); err == nil {
		t.Error("Empty name should error")
	}

	cfg = config.BatchConfig{Name: "defaults", Cron: "0 22 * * *"}
	validated, err := Validate(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if validated.MaxTasks != defaultMaxTasks {
		t.Errorf("MaxTasks default = %d, want %d", validated.MaxTasks, defaultMaxTasks)
	}

	cfg = config.BatchConfig{Name: "bad", Cron: "not a cron"}
	if _, err := Validate(cfg); err == nil {
		t.Error("Invalid cron should error")
	}
}

func TestSchedulerNextRun(t *testing.T) {
	cfg := config.BatchConfig{
		Name:     "test",
		Cron:     "0 22 * * *", // 10 PM daily
		MaxTasks: 5,
	}

	sched, err := NewScheduler([]config.BatchConfig{cfg})
	if err != nil {
		t.Fatal(err)
	}

	next := sched.NextRun("test")
	if next.IsZero() {
		t.Error("NextRun should return a time")
	}
	if !next.After(time.Now()) {
		t.Error("NextRun should be in the future")
	}

	if !sched.NextRun("missing").IsZero() {
		t.Error("NextRun for unknown batch should be zero")
	}
}

func TestSchedulerShouldRun(t *testing.T) {
	cfg := config.BatchConfig{
		Name:     "test",
		Cron:     "* * * * *", // Every minute
		MaxTasks: 5,
	}

	sched, err := NewScheduler([]config.BatchConfig{cfg})
	if err != nil {
		t.Fatal(err)
	}

	// Mark as last run two minutes ago
	sched.lastRun["test"] = time.Now().Add(-2 * time.Minute)

	if !sched.ShouldRun("test") {
		t.Error("Should run after cron interval passed")
	}

	// A running batch is never due
	sched.MarkRunning("test")
	if sched.ShouldRun("test") {
		t.Error("Running batch should not be due")
	}

	// Completing it records lastRun, so it is not due again immediately
	sched.MarkComplete("test")
	if sched.ShouldRun("test") {
		t.Error("Just-completed batch should not be due yet")
	}
}

func TestSchedulerDue(t *testing.T) {
	sched, err := NewScheduler([]config.BatchConfig{
		{Name: "every-minute", Cron: "* * * * *"},
		{Name: "far-future", Cron: "0 0 1 1 *"},
	})
	if err != nil {
		t.Fatal(err)
	}
	sched.lastRun["every-minute"] = time.Now().Add(-5 * time.Minute)
	sched.lastRun["far-future"] = time.Now()

	due := sched.Due()
	if len(due) != 1 || due[0] != "every-minute" {
		t.Errorf("Due() = %v, want [every-minute]", due)
	}
}
