//go:build integration

package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// binaryPath returns the path to the built CLI binary
func binaryPath(t *testing.T) string {
	t.Helper()
	paths := []string{
		"../claude-sched",
		"./claude-sched",
		filepath.Join(os.Getenv("GOPATH"), "bin", "claude-sched"),
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			abs, _ := filepath.Abs(p)
			return abs
		}
	}

	t.Log("Binary not found, building...")
	cmd := exec.Command("go", "build", "-o", "../claude-sched", "../cmd/claude-sched")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, out)
	}

	abs, _ := filepath.Abs("../claude-sched")
	return abs
}

func run(t *testing.T, binary, configPath string, args ...string) string {
	t.Helper()
	args = append(args, "--config", configPath)
	cmd := exec.Command(binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("%s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return string(out)
}

func TestCLI_AddAndList(t *testing.T) {
	binary := binaryPath(t)
	configPath := createTestConfig(t, t.TempDir())

	out := run(t, binary, configPath, "add", "Write tests", "Add unit tests for the parser")
	if !strings.Contains(out, "task-001") {
		t.Errorf("Expected 'task-001' in output, got: %s", out)
	}

	out = run(t, binary, configPath, "add", "Fix bug", "Crash on empty input")
	if !strings.Contains(out, "task-002") {
		t.Errorf("Expected 'task-002' in output, got: %s", out)
	}

	out = run(t, binary, configPath, "list")
	for _, want := range []string{"task-001", "Write tests", "task-002", "pending"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in list output, got: %s", want, out)
		}
	}

	// Filtered list excludes non-matching statuses
	out = run(t, binary, configPath, "list", "--status", "completed")
	if strings.Contains(out, "task-001") {
		t.Errorf("Completed filter should hide pending tasks, got: %s", out)
	}
}

func TestCLI_Show(t *testing.T) {
	binary := binaryPath(t)
	configPath := createTestConfig(t, t.TempDir())

	run(t, binary, configPath, "add", "Document API", "Write the endpoint docs")

	out := run(t, binary, configPath, "show", "task-001")
	for _, want := range []string{"Document API", "Write the endpoint docs", "pending", "0/3"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in show output, got: %s", want, out)
		}
	}
}

func TestCLI_Status(t *testing.T) {
	binary := binaryPath(t)
	configPath := createTestConfig(t, t.TempDir())

	run(t, binary, configPath, "add", "One", "first")
	run(t, binary, configPath, "add", "Two", "second")

	out := run(t, binary, configPath, "status")
	if !strings.Contains(out, "2 total") {
		t.Errorf("Expected '2 total' in output, got: %s", out)
	}
	if !strings.Contains(out, "2 pending") {
		t.Errorf("Expected '2 pending' in output, got: %s", out)
	}
}

func TestCLI_Delete(t *testing.T) {
	binary := binaryPath(t)
	configPath := createTestConfig(t, t.TempDir())

	run(t, binary, configPath, "add", "Doomed", "will be deleted")

	out := run(t, binary, configPath, "delete", "task-001", "--yes")
	if !strings.Contains(out, "Deleted task: task-001") {
		t.Errorf("Expected deletion confirmation, got: %s", out)
	}

	out = run(t, binary, configPath, "list")
	if strings.Contains(out, "task-001") {
		t.Errorf("Deleted task still listed: %s", out)
	}
}

func TestCLI_UnknownTaskFails(t *testing.T) {
	binary := binaryPath(t)
	configPath := createTestConfig(t, t.TempDir())

	cmd := exec.Command(binary, "show", "task-999", "--config", configPath)
	if err := cmd.Run(); err == nil {
		t.Error("show for missing task should exit non-zero")
	}
}
