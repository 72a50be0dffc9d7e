//go:build integration

package integration

import (
	"os"
	"path/filepath"
	"testing"
)

// TempConfigPath returns a path for a throwaway config file
func TempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.toml")
}

// createTestConfig writes a config pointing all state at tmpDir
func createTestConfig(t *testing.T, tmpDir string) string {
	t.Helper()
	configPath := TempConfigPath(t)

	config := `[general]
tasks_file = "` + filepath.Join(tmpDir, "tasks.yaml") + `"
workspace_dir = "` + filepath.Join(tmpDir, "workspaces") + `"
history_path = "` + filepath.Join(tmpDir, "history.db") + `"
max_tasks = 3

[notifications]
desktop = false
`

	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	return configPath
}
