// Package tokens monitors the external tool's message quota. The status
// output is unstructured text, so parsing is best effort: a snapshot the
// parser cannot understand is reported as unknown and callers treat
// unknown as "cannot run".
package tokens

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/claudetask/scheduler/internal/claudecli"
	"github.com/claudetask/scheduler/internal/domain"
)

const (
	// DefaultWarningThreshold is the usage fraction at which to warn.
	DefaultWarningThreshold = 0.8
	// DefaultCriticalThreshold is the usage fraction at which runs pause.
	DefaultCriticalThreshold = 0.95

	statusTimeout = 30 * time.Second
)

// messagePatterns are tried in order; first match wins.
var messagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+)/(\d+)\s+messages?`),
	regexp.MustCompile(`(?i)(\d+)\s+messages?\s+used.*?(\d+)\s+total`),
	regexp.MustCompile(`(?i)(\d+)\s+messages?.*?limit\s+(\d+)`),
}

var bareUsagePattern = regexp.MustCompile(`(?i)(\d+)\s+messages?`)

// resetPatterns are tried in order; the groups name hours/minutes.
var resetPatterns = []struct {
	re      *regexp.Regexp
	hours   bool
	minutes bool
}{
	{regexp.MustCompile(`(?i)(\d+)h\s*(\d+)m\s+remaining`), true, true},
	{regexp.MustCompile(`(?i)(\d+)\s*hours?\s*(\d+)\s*minutes?\s+remaining`), true, true},
	{regexp.MustCompile(`(?i)(\d+)h\s+remaining`), true, false},
	{regexp.MustCompile(`(?i)(\d+)\s*minutes?\s+remaining`), false, true},
}

// Monitor checks remaining quota before the scheduler spends it on tasks.
type Monitor struct {
	runner            claudecli.Runner
	WarningThreshold  float64
	CriticalThreshold float64
	MaxWait           time.Duration
	CheckInterval     time.Duration

	lastCheck *domain.TokenUsage

	// injectable for tests
	now   func() time.Time
	sleep func(time.Duration)
}

// NewMonitor creates a Monitor with default thresholds and wait policy.
func NewMonitor(runner claudecli.Runner) *Monitor {
	return &Monitor{
		runner:            runner,
		WarningThreshold:  DefaultWarningThreshold,
		CriticalThreshold: DefaultCriticalThreshold,
		MaxWait:           6 * time.Hour,
		CheckInterval:     5 * time.Minute,
		now:               time.Now,
		sleep:             time.Sleep,
	}
}

// Check queries the external tool's status output and parses a usage
// snapshot. Returns nil when the tool failed or the output was not
// parseable.
func (m *Monitor) Check(ctx context.Context) *domain.TokenUsage {
	res, err := m.runner.Run(ctx, "", statusTimeout, "-p", "/status")
	if err != nil {
		fmt.Printf("Warning: claude status check failed: %v\n", err)
		return nil
	}
	if res.TimedOut {
		fmt.Println("Warning: claude status check timed out")
		return nil
	}
	if res.ExitCode != 0 {
		fmt.Printf("Warning: claude status check exited %d\n", res.ExitCode)
		return nil
	}

	usage := ParseStatusOutput(res.Stdout)
	if usage == nil {
		return nil
	}
	usage.Timestamp = m.now().UTC()
	m.lastCheck = usage
	return usage
}

// ParseStatusOutput extracts a usage snapshot from status text. Returns
// nil when no usage figure can be found at all.
func ParseStatusOutput(output string) *domain.TokenUsage {
	var used, limit int
	matched := false

	for _, re := range messagePatterns {
		if groups := re.FindStringSubmatch(output); groups != nil {
			used, _ = strconv.Atoi(groups[1])
			limit, _ = strconv.Atoi(groups[2])
			matched = true
			break
		}
	}

	// No explicit limit: infer the plan from the bare usage count.
	// Placeholder policy with hard-coded tiers; see inferLimit.
	if !matched {
		if groups := bareUsagePattern.FindStringSubmatch(output); groups != nil {
			used, _ = strconv.Atoi(groups[1])
			limit = inferLimit(used)
			matched = true
		}
	}

	if !matched {
		return nil
	}

	var pct float64
	if limit > 0 {
		pct = float64(used) / float64(limit)
	}

	return &domain.TokenUsage{
		MessagesUsed:   used,
		MessagesLimit:  limit,
		PercentageUsed: pct,
		TimeUntilReset: parseReset(output),
		Plan:           planForLimit(limit),
		RawOutput:      output,
	}
}

// inferLimit guesses the plan limit from a bare usage count. The tiers
// misclassify usage outside the three assumed plans; callers only ever
// see the resulting percentage.
func inferLimit(used int) int {
	switch {
	case used <= 50:
		return 45 // pro
	case used <= 250:
		return 225 // max 5x
	default:
		return 900 // max 20x
	}
}

func planForLimit(limit int) domain.Plan {
	switch {
	case limit <= 0:
		return domain.PlanUnknown
	case limit <= 50:
		return domain.PlanPro
	case limit <= 250:
		return domain.PlanMax5
	case limit <= 1000:
		return domain.PlanMax20
	}
	return domain.PlanUnknown
}

func parseReset(output string) time.Duration {
	for _, p := range resetPatterns {
		groups := p.re.FindStringSubmatch(output)
		if groups == nil {
			continue
		}
		var d time.Duration
		idx := 1
		if p.hours {
			h, _ := strconv.Atoi(groups[idx])
			d += time.Duration(h) * time.Hour
			idx++
		}
		if p.minutes {
			min, _ := strconv.Atoi(groups[idx])
			d += time.Duration(min) * time.Minute
		}
		return d
	}
	return 0
}

// CanRun reports whether tasks may be started. An unknown status is
// conservatively a no.
func (m *Monitor) CanRun(ctx context.Context) (bool, string) {
	usage := m.Check(ctx)
	if usage == nil {
		return false, "could not determine Claude token status"
	}

	if usage.PercentageUsed >= m.CriticalThreshold {
		reason := fmt.Sprintf("token usage at %.1f%%, above critical threshold", usage.PercentageUsed*100)
		if usage.TimeUntilReset > 0 {
			h := int(usage.TimeUntilReset.Hours())
			min := int(usage.TimeUntilReset.Minutes()) % 60
			reason += fmt.Sprintf(" (resets in %dh %dm)", h, min)
		}
		return false, reason
	}

	return true, "token usage within acceptable limits"
}

// WaitForReset polls until quota is available again, up to MaxWait.
// Returns false on timeout.
func (m *Monitor) WaitForReset(ctx context.Context) bool {
	fmt.Println("Waiting for Claude token limits to reset...")

	start := m.now()
	for m.now().Sub(start) < m.MaxWait {
		canRun, reason := m.CanRun(ctx)
		if canRun {
			fmt.Println("Token limits have reset, tasks can resume")
			return true
		}
		fmt.Printf("Still waiting... %s\n", reason)

		interval := m.CheckInterval
		if m.lastCheck != nil && m.lastCheck.TimeUntilReset > 0 {
			if quarter := m.lastCheck.TimeUntilReset / 4; quarter < interval {
				interval = quarter
			}
		}
		if interval < time.Minute {
			interval = time.Minute
		}
		m.sleep(interval)
	}

	fmt.Println("Timeout waiting for token reset")
	return false
}

// Summary is the display form of a quota check for the tokens command.
type Summary struct {
	Status         string // ok, warning, critical, unknown
	MessagesUsed   int
	MessagesLimit  int
	PercentageUsed float64
	Plan           domain.Plan
	TimeUntilReset time.Duration
	CanRun         bool
	TasksRemaining int
	CheckedAt      time.Time
}

// Summarize runs a check and folds it into display form.
func (m *Monitor) Summarize(ctx context.Context) Summary {
	usage := m.Check(ctx)
	if usage == nil {
		return Summary{Status: "unknown"}
	}

	status := "ok"
	switch {
	case usage.PercentageUsed >= m.CriticalThreshold:
		status = "critical"
	case usage.PercentageUsed >= m.WarningThreshold:
		status = "warning"
	}

	return Summary{
		Status:         status,
		MessagesUsed:   usage.MessagesUsed,
		MessagesLimit:  usage.MessagesLimit,
		PercentageUsed: usage.PercentageUsed,
		Plan:           usage.Plan,
		TimeUntilReset: usage.TimeUntilReset,
		CanRun:         usage.PercentageUsed < m.CriticalThreshold,
		TasksRemaining: estimateTasks(usage),
		CheckedAt:      usage.Timestamp,
	}
}

// estimateTasks roughly converts remaining messages into runnable tasks,
// at a conservative ten messages per task.
func estimateTasks(usage *domain.TokenUsage) int {
	remaining := usage.MessagesLimit - usage.MessagesUsed
	if remaining < 0 {
		return 0
	}
	return remaining / 10
}
