// Package flow orchestrates sequential task processing over the task
// list: availability and token gates, per-task execution with the
// status state machine, and workspace cleanup.
package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/claudetask/scheduler/internal/domain"
	"github.com/claudetask/scheduler/internal/executor"
	"github.com/claudetask/scheduler/internal/history"
	"github.com/claudetask/scheduler/internal/notify"
	"github.com/claudetask/scheduler/internal/prompts"
	"github.com/claudetask/scheduler/internal/taskstore"
	"github.com/claudetask/scheduler/internal/tokens"
	"github.com/claudetask/scheduler/internal/workspace"
)

// Options controls a single processing run.
type Options struct {
	MaxTasks    int
	CheckTokens bool
	Timeout     time.Duration
	Verbose     bool
}

// TaskResult is the outcome of processing one task.
type TaskResult struct {
	TaskID       string
	Status       domain.TaskStatus
	Success      bool
	Error        string
	Duration     time.Duration
	ChangedFiles []string
}

// RunReport summarizes a processing run.
type RunReport struct {
	Success           bool
	Error             string
	Processed         int
	Completed         int
	Failed            int
	Paused            int
	Results           []TaskResult
	CleanedWorkspaces int
	HaltedOnQuota     bool
	StartedAt         time.Time
	FinishedAt        time.Time
}

// Deps bundles the collaborators a Processor needs.
type Deps struct {
	Store      *taskstore.Store
	Monitor    *tokens.Monitor
	Workspaces *workspace.Manager
	Executor   *executor.Executor
	Prompts    *prompts.Loader
	History    *history.Store // optional
	Notifier   notify.Notifier
	TaskDelay  time.Duration
}

// Processor runs pending tasks one at a time.
type Processor struct {
	store      *taskstore.Store
	monitor    *tokens.Monitor
	workspaces *workspace.Manager
	executor   *executor.Executor
	prompts    *prompts.Loader
	history    *history.Store
	notifier   notify.Notifier
	taskDelay  time.Duration

	sleep func(time.Duration)
	now   func() time.Time
}

// NewProcessor creates a processor from its dependencies.
func NewProcessor(deps Deps) *Processor {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Processor{
		store:      deps.Store,
		monitor:    deps.Monitor,
		workspaces: deps.Workspaces,
		executor:   deps.Executor,
		prompts:    deps.Prompts,
		history:    deps.History,
		notifier:   notifier,
		taskDelay:  deps.TaskDelay,
		sleep:      time.Sleep,
		now:        time.Now,
	}
}

// Run processes up to opts.MaxTasks tasks sequentially and returns a
// report. A quota pause stops the run; a single failing task does not.
func (p *Processor) Run(ctx context.Context, opts Options) *RunReport {
	report := &RunReport{StartedAt: p.now()}

	if opts.MaxTasks <= 0 {
		opts.MaxTasks = 5
	}

	if ok, msg := p.executor.CheckAvailability(ctx); !ok {
		report.Error = msg
		report.FinishedAt = p.now()
		return report
	}

	if opts.CheckTokens {
		if !p.tokenGate(ctx, opts.Verbose) {
			report.Error = "token limits reached and reset wait failed"
			report.FinishedAt = p.now()
			return report
		}
	}

	tasks, err := p.selectTasks(opts.MaxTasks)
	if err != nil {
		report.Error = fmt.Sprintf("loading tasks: %v", err)
		report.FinishedAt = p.now()
		return report
	}
	if len(tasks) == 0 {
		report.Success = true
		report.FinishedAt = p.now()
		return report
	}

	if opts.Verbose {
		fmt.Printf("Processing %d task(s)\n", len(tasks))
	}

	for i, task := range tasks {
		result := p.processTask(ctx, task, opts)
		report.Results = append(report.Results, result)
		report.Processed++

		switch result.Status {
		case domain.StatusCompleted:
			report.Completed++
		case domain.StatusFailed:
			report.Failed++
		case domain.StatusPaused:
			report.Paused++
		}

		if result.Status == domain.StatusPaused {
			report.HaltedOnQuota = true
			p.notifier.Send(notify.QuotaPause(task.ID, result.Error))
			break
		}

		if i < len(tasks)-1 && p.taskDelay > 0 {
			p.sleep(p.taskDelay)
		}
	}

	report.CleanedWorkspaces = p.workspaces.CleanupAllTemporary()
	report.Success = true
	report.FinishedAt = p.now()

	p.recordRun(report)
	p.notifier.Send(notify.RunSummary(report.Processed, report.Completed, report.Failed, report.Paused))

	return report
}

// tokenGate reports whether processing may start. When usage is
// critical it blocks until the quota resets or the wait gives up.
func (p *Processor) tokenGate(ctx context.Context, verbose bool) bool {
	canRun, reason := p.monitor.CanRun(ctx)
	if canRun {
		return true
	}

	fmt.Printf("Warning: %s\n", reason)

	summary := p.monitor.Summarize(ctx)
	if summary.Status != "critical" {
		// Unknown state: do not block, the per-task check will catch it.
		return true
	}

	if verbose {
		fmt.Println("Waiting for token limits to reset...")
	}
	return p.monitor.WaitForReset(ctx)
}

// selectTasks returns pending tasks plus paused tasks with a saved
// session, capped at max.
func (p *Processor) selectTasks(max int) ([]*domain.Task, error) {
	pending, err := p.store.ListByStatus(domain.StatusPending)
	if err != nil {
		return nil, err
	}

	paused, err := p.store.ListByStatus(domain.StatusPaused)
	if err != nil {
		return nil, err
	}
	for _, task := range paused {
		if task.Resumable() {
			pending = append(pending, task)
		}
	}

	if len(pending) > max {
		pending = pending[:max]
	}
	return pending, nil
}

func (p *Processor) processTask(ctx context.Context, task *domain.Task, opts Options) TaskResult {
	result := TaskResult{TaskID: task.ID}

	if err := p.store.MarkRunning(task.ID, task.SessionID); err != nil {
		result.Status = domain.StatusFailed
		result.Error = fmt.Sprintf("marking running: %v", err)
		p.store.MarkFailed(task.ID, result.Error)
		return result
	}

	if opts.CheckTokens {
		if canRun, reason := p.monitor.CanRun(ctx); !canRun {
			p.store.MarkPaused(task.ID, reason)
			result.Status = domain.StatusPaused
			result.Error = reason
			return result
		}
	}

	wsPath, err := p.workspaces.Create(task.ID, "", true)
	if err != nil {
		result.Status = domain.StatusFailed
		result.Error = fmt.Sprintf("creating workspace: %v", err)
		p.store.MarkFailed(task.ID, result.Error)
		return result
	}
	p.store.Update(task.ID, func(t *domain.Task) { t.WorkspacePath = wsPath })

	prompt, err := p.prompts.BuildTaskPrompt(task.PromptTemplate, prompts.TaskData{
		Title:       task.Title,
		Description: task.Description,
	})
	if err != nil {
		result.Status = domain.StatusFailed
		result.Error = fmt.Sprintf("building prompt: %v", err)
		p.store.MarkFailed(task.ID, result.Error)
		return result
	}

	startedAt := p.now()
	execResult := p.executor.Execute(ctx, executor.Options{
		Workspace:  wsPath,
		Prompt:     prompt,
		AutoAccept: true,
		SessionID:  task.SessionID,
		Timeout:    opts.Timeout,
	})

	result.Duration = execResult.Duration
	result.ChangedFiles = execResult.ChangedFiles

	if p.history != nil {
		if _, err := p.history.RecordExecution(task.ID, execResult, startedAt); err != nil {
			fmt.Printf("Warning: failed to record execution for %s: %v\n", task.ID, err)
		}
	}

	switch {
	case execResult.Success:
		p.store.MarkCompleted(task.ID)
		result.Status = domain.StatusCompleted
		result.Success = true

	case execResult.QuotaExceeded:
		if execResult.SessionID != "" {
			p.store.Update(task.ID, func(t *domain.Task) { t.SessionID = execResult.SessionID })
		}
		reason := "token limit reached during execution"
		p.store.MarkPaused(task.ID, reason)
		result.Status = domain.StatusPaused
		result.Error = reason

	default:
		errMsg := execResult.ErrorMessage
		if errMsg == "" {
			errMsg = "execution failed"
		}
		result.Error = errMsg

		// MarkRunning already counted this attempt.
		current, err := p.store.Get(task.ID)
		if err == nil && !current.AttemptsExhausted() {
			p.store.Reset(task.ID)
			result.Status = domain.StatusPending
		} else {
			p.store.MarkFailed(task.ID, errMsg)
			result.Status = domain.StatusFailed
		}
	}

	return result
}

func (p *Processor) recordRun(report *RunReport) {
	if p.history == nil {
		return
	}
	err := p.history.RecordRun(history.RunRecord{
		StartedAt:      report.StartedAt,
		FinishedAt:     report.FinishedAt,
		TasksProcessed: report.Processed,
		TasksCompleted: report.Completed,
		TasksFailed:    report.Failed,
		TasksPaused:    report.Paused,
		HaltedOnQuota:  report.HaltedOnQuota,
	})
	if err != nil {
		fmt.Printf("Warning: failed to record run: %v\n", err)
	}
}
