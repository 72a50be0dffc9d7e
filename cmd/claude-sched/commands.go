package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/claudetask/scheduler/internal/batch"
	"github.com/claudetask/scheduler/internal/claudecli"
	"github.com/claudetask/scheduler/internal/config"
	"github.com/claudetask/scheduler/internal/domain"
	"github.com/claudetask/scheduler/internal/executor"
	"github.com/claudetask/scheduler/internal/flow"
	"github.com/claudetask/scheduler/internal/history"
	"github.com/claudetask/scheduler/internal/notify"
	"github.com/claudetask/scheduler/internal/observer"
	"github.com/claudetask/scheduler/internal/prompts"
	"github.com/claudetask/scheduler/internal/taskstore"
	"github.com/claudetask/scheduler/internal/tokens"
	"github.com/claudetask/scheduler/internal/workspace"
)

var (
	okMark   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("✓")
	failMark = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("✗")
	warnText = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

var (
	runMaxTasks  int
	runTimeout   int
	runNoTokens  bool
	runVerbose   bool
	listStatus   string
	listDetailed bool
	addTemplate  string
	skipConfirm  bool
	historyLimit int

	cleanWorkspaces bool
	cleanFailed     bool
	cleanCompleted  bool
)

func init() {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Process pending tasks",
		RunE:  runRun,
	}
	runCmd.Flags().IntVar(&runMaxTasks, "max-tasks", 0, "maximum tasks to process (default from config)")
	runCmd.Flags().IntVar(&runTimeout, "timeout", 0, "per-task timeout in seconds (default from config)")
	runCmd.Flags().BoolVar(&runNoTokens, "no-token-check", false, "skip token limit checks")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "verbose output")
	rootCmd.AddCommand(runCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE:  runList,
	}
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	listCmd.Flags().BoolVar(&listDetailed, "detailed", false, "show timestamps and errors")
	rootCmd.AddCommand(listCmd)

	addCmd := &cobra.Command{
		Use:   "add TITLE DESCRIPTION",
		Short: "Add a new task",
		Args:  cobra.ExactArgs(2),
		RunE:  runAdd,
	}
	addCmd.Flags().StringVarP(&addTemplate, "template", "t", "default", "prompt template to use")
	rootCmd.AddCommand(addCmd)

	showCmd := &cobra.Command{
		Use:   "show TASK_ID",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	rootCmd.AddCommand(showCmd)

	resetCmd := &cobra.Command{
		Use:   "reset TASK_ID",
		Short: "Reset a task to pending",
		Args:  cobra.ExactArgs(1),
		RunE:  runReset,
	}
	resetCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "skip confirmation")
	rootCmd.AddCommand(resetCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete TASK_ID",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}
	deleteCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "skip confirmation")
	rootCmd.AddCommand(deleteCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show scheduler status",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "Show token usage",
		RunE:  runTokens,
	}
	rootCmd.AddCommand(tokensCmd)

	historyCmd := &cobra.Command{
		Use:   "history [TASK_ID]",
		Short: "Show execution history",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum records to show")
	rootCmd.AddCommand(historyCmd)

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Clean up workspaces and finished tasks",
		RunE:  runCleanup,
	}
	cleanupCmd.Flags().BoolVar(&cleanWorkspaces, "workspaces", true, "remove temporary workspaces")
	cleanupCmd.Flags().BoolVar(&cleanFailed, "failed-tasks", false, "reset failed tasks to pending")
	cleanupCmd.Flags().BoolVar(&cleanCompleted, "completed-tasks", false, "delete completed tasks")
	cleanupCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "skip confirmation")
	rootCmd.AddCommand(cleanupCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the tasks file and run on changes or batch schedules",
		RunE:  runWatch,
	}
	rootCmd.AddCommand(watchCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (*taskstore.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.General.TasksFile), 0755); err != nil {
		return nil, err
	}
	return taskstore.New(cfg.General.TasksFile)
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	var notifiers []notify.Notifier
	if cfg.Notifications.Desktop {
		notifiers = append(notifiers, notify.NewDesktopNotifier(true))
	}
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}
	if len(notifiers) == 0 {
		return notify.NoopNotifier{}
	}
	return notify.NewMultiNotifier(notifiers...)
}

func buildMonitor(cfg *config.Config, runner claudecli.Runner) *tokens.Monitor {
	m := tokens.NewMonitor(runner)
	if cfg.Tokens.WarningThreshold > 0 {
		m.WarningThreshold = cfg.Tokens.WarningThreshold
	}
	if cfg.Tokens.CriticalThreshold > 0 {
		m.CriticalThreshold = cfg.Tokens.CriticalThreshold
	}
	if cfg.Tokens.MaxWaitMinutes > 0 {
		m.MaxWait = time.Duration(cfg.Tokens.MaxWaitMinutes) * time.Minute
	}
	if cfg.Tokens.CheckIntervalSec > 0 {
		m.CheckInterval = time.Duration(cfg.Tokens.CheckIntervalSec) * time.Second
	}
	return m
}

// buildProcessor wires everything a run needs. The returned cleanup
// closes the history database.
func buildProcessor(cfg *config.Config) (*flow.Processor, *taskstore.Store, func(), error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	workspaces, err := workspace.NewManager(cfg.General.WorkspaceDir, cfg.General.TemplatesDir)
	if err != nil {
		return nil, nil, nil, err
	}

	runner := claudecli.New(cfg.Claude.Binary)

	hist, err := history.New(cfg.General.HistoryPath)
	if err != nil {
		fmt.Printf("Warning: execution history unavailable: %v\n", err)
		hist = nil
	}
	cleanup := func() {
		if hist != nil {
			hist.Close()
		}
	}

	p := flow.NewProcessor(flow.Deps{
		Store:      store,
		Monitor:    buildMonitor(cfg, runner),
		Workspaces: workspaces,
		Executor:   executor.New(runner),
		Prompts:    prompts.DefaultLoader(cfg.General.TemplatesDir),
		History:    hist,
		Notifier:   buildNotifier(cfg),
		TaskDelay:  cfg.TaskDelay(),
	})
	return p, store, cleanup, nil
}

func confirm(prompt string) bool {
	if skipConfirm {
		return true
	}
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	processor, _, cleanup, err := buildProcessor(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	maxTasks := runMaxTasks
	if maxTasks <= 0 {
		maxTasks = cfg.General.MaxTasks
	}
	timeout := cfg.TaskTimeout()
	if runTimeout > 0 {
		timeout = time.Duration(runTimeout) * time.Second
	}

	report := processor.Run(cmd.Context(), flow.Options{
		MaxTasks:    maxTasks,
		CheckTokens: !runNoTokens,
		Timeout:     timeout,
		Verbose:     runVerbose,
	})

	printReport(report)

	if !report.Success {
		return fmt.Errorf("run failed: %s", report.Error)
	}
	return nil
}

func printReport(report *flow.RunReport) {
	if report.Processed == 0 {
		if report.Error != "" {
			fmt.Printf("%s %s\n", failMark, report.Error)
		} else {
			fmt.Println("No pending tasks")
		}
		return
	}

	for _, r := range report.Results {
		switch r.Status {
		case domain.StatusCompleted:
			fmt.Printf("%s %s completed in %s (%d file(s) changed)\n",
				okMark, r.TaskID, r.Duration.Round(time.Second), len(r.ChangedFiles))
		case domain.StatusPaused:
			fmt.Printf("%s %s\n", warnText.Render("⏸"), warnText.Render(r.TaskID+" paused: "+r.Error))
		case domain.StatusPending:
			fmt.Printf("%s %s failed, queued for retry: %s\n", failMark, r.TaskID, r.Error)
		default:
			fmt.Printf("%s %s failed: %s\n", failMark, r.TaskID, r.Error)
		}
	}

	fmt.Printf("\nProcessed %d task(s): %d completed, %d failed, %d paused\n",
		report.Processed, report.Completed, report.Failed, report.Paused)
	if report.CleanedWorkspaces > 0 {
		fmt.Printf("Cleaned up %d temporary workspace(s)\n", report.CleanedWorkspaces)
	}
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	status := domain.TaskStatus(listStatus)
	if listStatus != "" && !status.Valid() {
		return fmt.Errorf("invalid status %q", listStatus)
	}

	tasks, err := store.ListByStatus(status)
	if err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if listDetailed {
		fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tATTEMPTS\tCREATED\tLAST ERROR")
		for _, t := range tasks {
			lastError := t.LastError
			if lastError == "" {
				lastError = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
				t.ID, t.Title, t.Status, t.Attempts, t.MaxAttempts,
				humanize.Time(t.CreatedAt), lastError)
		}
	} else {
		fmt.Fprintln(w, "ID\tTITLE\tSTATUS")
		for _, t := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Title, t.Status)
		}
	}
	w.Flush()

	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	task, err := store.Add(args[0], args[1], addTemplate)
	if err != nil {
		return err
	}

	fmt.Printf("%s Added task: %s - %s\n", okMark, task.ID, task.Title)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	task, err := store.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("ID:          %s\n", task.ID)
	fmt.Printf("Title:       %s\n", task.Title)
	fmt.Printf("Description: %s\n", task.Description)
	fmt.Printf("Template:    %s\n", task.PromptTemplate)
	fmt.Printf("Status:      %s\n", task.Status)
	fmt.Printf("Attempts:    %d/%d\n", task.Attempts, task.MaxAttempts)
	fmt.Printf("Created:     %s (%s)\n", task.CreatedAt.Format(time.RFC3339), humanize.Time(task.CreatedAt))
	if task.StartedAt != nil {
		fmt.Printf("Started:     %s\n", task.StartedAt.Format(time.RFC3339))
	}
	if task.CompletedAt != nil {
		fmt.Printf("Completed:   %s\n", task.CompletedAt.Format(time.RFC3339))
	}
	if task.SessionID != "" {
		fmt.Printf("Session:     %s\n", task.SessionID)
	}
	if task.WorkspacePath != "" {
		fmt.Printf("Workspace:   %s\n", task.WorkspacePath)
	}
	if task.LastError != "" {
		fmt.Printf("Last error:  %s\n", task.LastError)
	}

	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	taskID := args[0]
	if _, err := store.Get(taskID); err != nil {
		return err
	}

	if !confirm(fmt.Sprintf("Reset task %s to pending?", taskID)) {
		fmt.Println("Cancelled")
		return nil
	}

	if err := store.Reset(taskID); err != nil {
		return err
	}

	fmt.Printf("%s Reset task: %s\n", okMark, taskID)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	taskID := args[0]
	if _, err := store.Get(taskID); err != nil {
		return err
	}

	if !confirm(fmt.Sprintf("Delete task %s?", taskID)) {
		fmt.Println("Cancelled")
		return nil
	}

	if err := store.Delete(taskID); err != nil {
		return err
	}

	fmt.Printf("%s Deleted task: %s\n", okMark, taskID)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	stats, err := store.Statistics()
	if err != nil {
		return err
	}

	fmt.Printf("Tasks: %d total | %d pending | %d running | %d completed | %d failed | %d paused\n",
		stats.Total, stats.Pending, stats.Running, stats.Completed, stats.Failed, stats.Paused)

	workspaces, err := workspace.NewManager(cfg.General.WorkspaceDir, cfg.General.TemplatesDir)
	if err == nil {
		fmt.Printf("Active workspaces: %d\n", len(workspaces.List()))
	}

	if len(cfg.Batches) > 0 {
		sched, err := batch.NewScheduler(cfg.Batches)
		if err != nil {
			return err
		}
		fmt.Println("\nScheduled batches:")
		for _, name := range sched.ListBatches() {
			next := sched.NextRun(name)
			fmt.Printf("  %s: next run %s (%s)\n", name, next.Format("2006-01-02 15:04"), humanize.Time(next))
		}
	}

	return nil
}

func runTokens(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	monitor := buildMonitor(cfg, claudecli.New(cfg.Claude.Binary))
	summary := monitor.Summarize(cmd.Context())

	if summary.Status == "unknown" {
		fmt.Printf("%s Token status unknown (could not query the Claude CLI)\n", failMark)
		return nil
	}

	mark := okMark
	if summary.Status == "critical" {
		mark = failMark
	} else if summary.Status == "warning" {
		mark = warnText.Render("!")
	}

	fmt.Printf("%s Status: %s\n", mark, summary.Status)
	fmt.Printf("Plan: %s\n", summary.Plan)
	fmt.Printf("Usage: %d/%d messages (%.0f%%)\n",
		summary.MessagesUsed, summary.MessagesLimit, summary.PercentageUsed*100)
	if summary.TimeUntilReset > 0 {
		fmt.Printf("Resets in: %s\n", summary.TimeUntilReset.Round(time.Minute))
	}
	fmt.Printf("Estimated tasks remaining: %d\n", summary.TasksRemaining)

	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hist, err := history.New(cfg.General.HistoryPath)
	if err != nil {
		return err
	}
	defer hist.Close()

	var execs []*history.Execution
	if len(args) == 1 {
		execs, err = hist.ListByTask(args[0])
	} else {
		execs, err = hist.Recent(historyLimit)
	}
	if err != nil {
		return err
	}

	if len(execs) == 0 {
		fmt.Println("No execution history")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tWHEN\tRESULT\tDURATION\tFILES\tERROR")
	for _, e := range execs {
		result := okMark
		if !e.Success {
			result = failMark
		}
		errMsg := e.ErrorMessage
		if errMsg == "" {
			errMsg = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			e.TaskID, humanize.Time(e.StartedAt), result,
			e.Duration.Round(time.Second), len(e.ChangedFiles), errMsg)
	}
	w.Flush()

	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	if cleanWorkspaces {
		workspaces, err := workspace.NewManager(cfg.General.WorkspaceDir, cfg.General.TemplatesDir)
		if err != nil {
			return err
		}
		count := workspaces.CleanupAllTemporary()
		fmt.Printf("%s Cleaned up %d temporary workspace(s)\n", okMark, count)
	}

	if cleanFailed {
		failed, err := store.ListByStatus(domain.StatusFailed)
		if err != nil {
			return err
		}
		for _, t := range failed {
			if err := store.Reset(t.ID); err != nil {
				return err
			}
		}
		fmt.Printf("%s Reset %d failed task(s) to pending\n", okMark, len(failed))
	}

	if cleanCompleted {
		completed, err := store.ListByStatus(domain.StatusCompleted)
		if err != nil {
			return err
		}
		if len(completed) > 0 && !confirm(fmt.Sprintf("Delete %d completed task(s)?", len(completed))) {
			fmt.Println("Cancelled")
			return nil
		}
		for _, t := range completed {
			if err := store.Delete(t.ID); err != nil {
				return err
			}
		}
		fmt.Printf("%s Deleted %d completed task(s)\n", okMark, len(completed))
	}

	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	processor, store, cleanup, err := buildProcessor(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	sched, err := batch.NewScheduler(cfg.Batches)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	trigger := make(chan string, 1)
	watcher, err := observer.NewTasksWatcher(store.Path(), func() {
		select {
		case trigger <- "tasks file changed":
		default:
		}
	})
	if err != nil {
		return err
	}
	watcher.Start(ctx)
	defer watcher.Stop()

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", store.Path())

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	runOnce := func(reason string, maxTasks int) {
		fmt.Printf("Run triggered: %s\n", reason)
		report := processor.Run(ctx, flow.Options{
			MaxTasks:    maxTasks,
			CheckTokens: true,
			Timeout:     cfg.TaskTimeout(),
		})
		printReport(report)
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nStopped")
			return nil
		case reason := <-trigger:
			runOnce(reason, cfg.General.MaxTasks)
		case <-ticker.C:
			for _, name := range sched.Due() {
				bcfg, _ := sched.GetConfig(name)
				sched.MarkRunning(name)
				runOnce("batch "+name, bcfg.MaxTasks)
				sched.MarkComplete(name)
			}
		}
	}
}
