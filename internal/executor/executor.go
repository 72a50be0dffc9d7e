// Package executor runs the external Claude CLI for a single task and
// interprets its outcome: exit status, changed files, session identifier
// and quota-exhaustion signals scraped from the output text.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/claudetask/scheduler/internal/claudecli"
	"github.com/claudetask/scheduler/internal/domain"
)

// DefaultTimeout bounds a task execution when the caller passes none.
const DefaultTimeout = 5 * time.Minute

const availabilityTimeout = 10 * time.Second

// quotaPhrases mark quota exhaustion in combined output, matched
// case-insensitively. Text scraping, not a contract; keep the list in
// sync with what the CLI actually prints.
var quotaPhrases = []string{
	"rate limit",
	"usage limit",
	"token limit",
	"quota exceeded",
	"limit reached",
	"too many requests",
	"capacity limit",
}

// sessionPatterns are tried in order against the output; first match
// wins. The JSON form comes first since print mode emits structured
// lines.
var sessionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"session_id"\s*:\s*"([a-f0-9-]{36})"`),
	regexp.MustCompile(`(?i)session[_\-\s]+id[:\s]+([a-f0-9-]{36})`),
	regexp.MustCompile(`Session:\s+([a-f0-9-]{36})`),
	regexp.MustCompile(`ID:\s+([a-f0-9-]{36})`),
}

// ignoredNames are skipped during change detection. The .claude directory
// holds the prompt file this package writes, so it must never count as a
// task change.
var ignoredNames = map[string]bool{
	".git":         true,
	".claude":      true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	".DS_Store":    true,
}

// Options configures one execution.
type Options struct {
	Workspace  string
	Prompt     string
	AutoAccept bool
	SessionID  string // resume this session when set
	Timeout    time.Duration
}

// Executor invokes the external tool through an injected runner.
type Executor struct {
	runner claudecli.Runner
}

// New creates an Executor.
func New(runner claudecli.Runner) *Executor {
	return &Executor{runner: runner}
}

// Execute runs the tool in the workspace and reports the outcome.
// Failures, including timeouts, come back as a failed result rather than
// an error; the caller decides what the transition is.
func (e *Executor) Execute(ctx context.Context, opts Options) *domain.ExecutionResult {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	start := time.Now()
	before := snapshotFiles(opts.Workspace)

	if err := writePromptFile(opts.Workspace, opts.Prompt); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not write prompt file: %v\n", err)
	}

	args := buildArgs(opts)
	res, err := e.runner.Run(ctx, opts.Workspace, timeout, args...)
	duration := time.Since(start)

	if err != nil {
		return &domain.ExecutionResult{
			Success:       false,
			ExitCode:      -1,
			Duration:      duration,
			WorkspacePath: opts.Workspace,
			ErrorMessage:  fmt.Sprintf("starting claude: %v", err),
		}
	}

	if res.TimedOut {
		return &domain.ExecutionResult{
			Success:       false,
			Stdout:        res.Stdout,
			Stderr:        res.Stderr,
			ExitCode:      -1,
			Duration:      duration,
			WorkspacePath: opts.Workspace,
			ErrorMessage:  fmt.Sprintf("execution timed out after %s", timeout),
		}
	}

	after := snapshotFiles(opts.Workspace)
	combined := res.Stdout + res.Stderr
	quotaHit := detectQuotaExhaustion(combined)

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = ExtractSessionID(combined)
	}

	result := &domain.ExecutionResult{
		Success:       res.ExitCode == 0 && !quotaHit,
		Stdout:        res.Stdout,
		Stderr:        res.Stderr,
		ExitCode:      res.ExitCode,
		Duration:      duration,
		ChangedFiles:  diffSnapshots(before, after),
		WorkspacePath: opts.Workspace,
		SessionID:     sessionID,
		QuotaExceeded: quotaHit,
	}
	if !result.Success {
		switch {
		case quotaHit:
			result.ErrorMessage = "quota exhausted during execution"
		case strings.TrimSpace(res.Stderr) != "":
			result.ErrorMessage = strings.TrimSpace(res.Stderr)
		default:
			result.ErrorMessage = fmt.Sprintf("claude exited with code %d", res.ExitCode)
		}
	}
	return result
}

// buildArgs assembles the CLI invocation: a fresh print-mode session, or
// a resume of a known session.
func buildArgs(opts Options) []string {
	var args []string
	if opts.SessionID != "" {
		args = append(args, "--resume", opts.SessionID)
	}
	if opts.AutoAccept {
		args = append(args, "--dangerously-skip-permissions")
	}
	args = append(args, "-p", opts.Prompt)
	return args
}

// writePromptFile places the formatted prompt in the workspace's .claude
// directory so the session has a durable copy of its instructions.
func writePromptFile(workspace, prompt string) error {
	dir := filepath.Join(workspace, ".claude")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	content := fmt.Sprintf(`# Task Execution Request

**Generated:** %s

## Task Description
%s
`, time.Now().Format("2006-01-02 15:04:05"), prompt)

	return os.WriteFile(filepath.Join(dir, "prompt.md"), []byte(content), 0644)
}

// snapshotFiles records each file's modification time, keyed by path
// relative to the workspace root.
func snapshotFiles(workspace string) map[string]time.Time {
	files := make(map[string]time.Time)
	filepath.Walk(workspace, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		name := filepath.Base(p)
		if info.IsDir() {
			if ignoredNames[name] {
				return filepath.SkipDir
			}
			return nil
		}
		if ignoredNames[name] {
			return nil
		}
		rel, err := filepath.Rel(workspace, p)
		if err != nil {
			return nil
		}
		files[rel] = info.ModTime()
		return nil
	})
	return files
}

// diffSnapshots lists files that are new or whose mtime increased.
// Deletions are not reported.
func diffSnapshots(before, after map[string]time.Time) []string {
	var changed []string
	for path, mtime := range after {
		prev, existed := before[path]
		if !existed || mtime.After(prev) {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed
}

// detectQuotaExhaustion scans combined output for quota signals.
func detectQuotaExhaustion(output string) bool {
	lower := strings.ToLower(output)
	for _, phrase := range quotaPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// ExtractSessionID pulls a session identifier out of tool output, or
// returns empty when none is present.
func ExtractSessionID(output string) string {
	for _, re := range sessionPatterns {
		if groups := re.FindStringSubmatch(output); groups != nil {
			return groups[1]
		}
	}
	return ""
}

// CheckAvailability probes the external tool with a short version check,
// distinguishing a missing binary, a hang, and a broken install.
func (e *Executor) CheckAvailability(ctx context.Context) (bool, string) {
	res, err := e.runner.Run(ctx, "", availabilityTimeout, "--version")
	if err != nil {
		if err == claudecli.ErrNotFound {
			return false, "claude not found in PATH"
		}
		return false, fmt.Sprintf("error checking claude: %v", err)
	}
	if res.TimedOut {
		return false, "claude version check timed out"
	}
	if res.ExitCode != 0 {
		return false, fmt.Sprintf("claude not working: %s", strings.TrimSpace(res.Stderr))
	}
	return true, fmt.Sprintf("claude available: %s", strings.TrimSpace(res.Stdout))
}
