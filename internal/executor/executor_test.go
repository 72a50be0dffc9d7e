package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/claudetask/scheduler/internal/claudecli"
)

// fakeRunner records its invocation and can mutate the workspace to
// simulate the tool editing files.
type fakeRunner struct {
	result claudecli.Result
	err    error
	onRun  func(dir string)
	args   []string
	dir    string
}

func (f *fakeRunner) Run(ctx context.Context, dir string, timeout time.Duration, args ...string) (claudecli.Result, error) {
	f.args = args
	f.dir = dir
	if f.onRun != nil {
		f.onRun(dir)
	}
	return f.result, f.err
}

func TestExecute_NoChanges(t *testing.T) {
	ws := t.TempDir()
	os.WriteFile(filepath.Join(ws, "existing.go"), []byte("package x"), 0644)

	runner := &fakeRunner{result: claudecli.Result{Stdout: "done"}}
	result := New(runner).Execute(context.Background(), Options{Workspace: ws, Prompt: "noop"})

	if !result.Success {
		t.Fatalf("Success = false: %s", result.ErrorMessage)
	}
	if len(result.ChangedFiles) != 0 {
		t.Errorf("ChangedFiles = %v, want empty", result.ChangedFiles)
	}
}

func TestExecute_DetectsNewFile(t *testing.T) {
	ws := t.TempDir()

	runner := &fakeRunner{
		result: claudecli.Result{Stdout: "created a file"},
		onRun: func(dir string) {
			os.WriteFile(filepath.Join(dir, "new.go"), []byte("package new"), 0644)
		},
	}
	result := New(runner).Execute(context.Background(), Options{Workspace: ws, Prompt: "add file"})

	if len(result.ChangedFiles) != 1 || result.ChangedFiles[0] != "new.go" {
		t.Errorf("ChangedFiles = %v, want [new.go]", result.ChangedFiles)
	}
}

func TestExecute_DetectsModifiedFile(t *testing.T) {
	ws := t.TempDir()
	target := filepath.Join(ws, "touched.go")
	os.WriteFile(target, []byte("package old"), 0644)

	runner := &fakeRunner{
		result: claudecli.Result{},
		onRun: func(dir string) {
			// Push the mtime forward past filesystem granularity.
			future := time.Now().Add(2 * time.Second)
			os.Chtimes(target, future, future)
		},
	}
	result := New(runner).Execute(context.Background(), Options{Workspace: ws, Prompt: "edit"})

	if len(result.ChangedFiles) != 1 || result.ChangedFiles[0] != "touched.go" {
		t.Errorf("ChangedFiles = %v, want [touched.go]", result.ChangedFiles)
	}
}

func TestExecute_PromptFileIgnoredInDiff(t *testing.T) {
	ws := t.TempDir()

	runner := &fakeRunner{result: claudecli.Result{}}
	result := New(runner).Execute(context.Background(), Options{Workspace: ws, Prompt: "hi"})

	if len(result.ChangedFiles) != 0 {
		t.Errorf("prompt file leaked into diff: %v", result.ChangedFiles)
	}
	if _, err := os.Stat(filepath.Join(ws, ".claude", "prompt.md")); err != nil {
		t.Errorf("prompt file not written: %v", err)
	}
}

func TestExecute_ArgsNewSession(t *testing.T) {
	runner := &fakeRunner{result: claudecli.Result{}}
	New(runner).Execute(context.Background(), Options{
		Workspace:  t.TempDir(),
		Prompt:     "do the thing",
		AutoAccept: true,
	})

	want := []string{"--dangerously-skip-permissions", "-p", "do the thing"}
	if len(runner.args) != len(want) {
		t.Fatalf("args = %v, want %v", runner.args, want)
	}
	for i := range want {
		if runner.args[i] != want[i] {
			t.Fatalf("args = %v, want %v", runner.args, want)
		}
	}
}

func TestExecute_ArgsResume(t *testing.T) {
	runner := &fakeRunner{result: claudecli.Result{}}
	result := New(runner).Execute(context.Background(), Options{
		Workspace: t.TempDir(),
		Prompt:    "continue",
		SessionID: "11111111-2222-3333-4444-555555555555",
	})

	if runner.args[0] != "--resume" || runner.args[1] != "11111111-2222-3333-4444-555555555555" {
		t.Errorf("resume args = %v", runner.args)
	}
	// The known session ID is carried through on the result.
	if result.SessionID != "11111111-2222-3333-4444-555555555555" {
		t.Errorf("SessionID = %q", result.SessionID)
	}
}

func TestExecute_QuotaExhaustion(t *testing.T) {
	runner := &fakeRunner{result: claudecli.Result{
		Stdout:   "Sorry, usage limit reached for your plan",
		ExitCode: 0,
	}}
	result := New(runner).Execute(context.Background(), Options{Workspace: t.TempDir(), Prompt: "x"})

	if result.Success {
		t.Error("quota-exhausted run must not be a success even at exit 0")
	}
	if !result.QuotaExceeded {
		t.Error("QuotaExceeded should be set")
	}
}

func TestExecute_Timeout(t *testing.T) {
	runner := &fakeRunner{result: claudecli.Result{TimedOut: true}}
	result := New(runner).Execute(context.Background(), Options{
		Workspace: t.TempDir(),
		Prompt:    "slow",
		Timeout:   30 * time.Second,
	})

	if result.Success {
		t.Error("timed-out run must fail")
	}
	if result.ErrorMessage == "" || result.ExitCode != -1 {
		t.Errorf("timeout result = %+v, want descriptive failure", result)
	}
}

func TestExecute_NonZeroExit(t *testing.T) {
	runner := &fakeRunner{result: claudecli.Result{ExitCode: 2, Stderr: "something broke"}}
	result := New(runner).Execute(context.Background(), Options{Workspace: t.TempDir(), Prompt: "x"})

	if result.Success {
		t.Error("non-zero exit must fail")
	}
	if result.ErrorMessage != "something broke" {
		t.Errorf("ErrorMessage = %q, want stderr text", result.ErrorMessage)
	}
}

func TestExtractSessionID(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{`{"type":"result","session_id":"aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"}`, "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"},
		{"Session ID: aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee", "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"},
		{"Session: aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee", "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"},
		{"no id here", ""},
	}
	for _, tt := range tests {
		if got := ExtractSessionID(tt.output); got != tt.want {
			t.Errorf("ExtractSessionID(%q) = %q, want %q", tt.output, got, tt.want)
		}
	}
}

func TestCheckAvailability(t *testing.T) {
	runner := &fakeRunner{result: claudecli.Result{Stdout: "1.2.3\n"}}
	ok, msg := New(runner).CheckAvailability(context.Background())
	if !ok {
		t.Fatalf("available tool reported unavailable: %s", msg)
	}

	runner = &fakeRunner{err: claudecli.ErrNotFound}
	ok, msg = New(runner).CheckAvailability(context.Background())
	if ok || msg != "claude not found in PATH" {
		t.Errorf("not-found probe = (%v, %q)", ok, msg)
	}

	runner = &fakeRunner{result: claudecli.Result{TimedOut: true}}
	ok, msg = New(runner).CheckAvailability(context.Background())
	if ok || msg != "claude version check timed out" {
		t.Errorf("timeout probe = (%v, %q)", ok, msg)
	}

	runner = &fakeRunner{result: claudecli.Result{ExitCode: 1, Stderr: "broken install"}}
	ok, msg = New(runner).CheckAvailability(context.Background())
	if ok || msg != "claude not working: broken install" {
		t.Errorf("failing probe = (%v, %q)", ok, msg)
	}
}
