// Package workspace manages isolated per-task directories and their
// registry file. The registry is rewritten wholesale on every mutation,
// same single-process assumption as the task store.
package workspace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const registryFileName = ".workspace-registry.json"

// Info describes one registered workspace.
type Info struct {
	TaskID    string    `json:"task_id"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	Temporary bool      `json:"temporary"`
	Template  string    `json:"template,omitempty"`
}

// Manager creates and destroys task workspaces under a base directory.
type Manager struct {
	baseDir      string
	templatesDir string
	active       map[string]*Info
}

// NewManager creates a Manager rooted at baseDir, loading any existing
// registry. Registry entries whose directory has vanished are dropped.
func NewManager(baseDir, templatesDir string) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("creating workspace dir: %w", err)
	}

	m := &Manager{
		baseDir:      baseDir,
		templatesDir: templatesDir,
		active:       make(map[string]*Info),
	}
	m.loadRegistry()
	return m, nil
}

func (m *Manager) registryPath() string {
	return filepath.Join(m.baseDir, registryFileName)
}

func (m *Manager) loadRegistry() {
	raw, err := os.ReadFile(m.registryPath())
	if err != nil {
		return // no registry yet
	}

	var entries map[string]*Info
	if err := json.Unmarshal(raw, &entries); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load workspace registry: %v\n", err)
		return
	}

	for taskID, info := range entries {
		if _, err := os.Stat(info.Path); err == nil {
			info.TaskID = taskID
			m.active[taskID] = info
		}
	}
}

func (m *Manager) saveRegistry() error {
	raw, err := json.MarshalIndent(m.active, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.registryPath(), raw, 0644); err != nil {
		return fmt.Errorf("writing workspace registry: %w", err)
	}
	return nil
}

// Create returns a workspace for the task, creating one if needed.
// Calling it again for the same task returns the existing path.
func (m *Manager) Create(taskID, template string, temporary bool) (string, error) {
	if info, ok := m.active[taskID]; ok {
		return info.Path, nil
	}

	var path string
	if temporary {
		// Unique scratch directory so repeated task runs never collide.
		suffix := uuid.NewString()[:8]
		path = filepath.Join(m.baseDir, fmt.Sprintf("task_%s_%s", taskID, suffix))
	} else {
		path = filepath.Join(m.baseDir, taskID)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("creating workspace: %w", err)
	}

	if template != "" {
		if err := m.applyTemplate(path, template); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not apply template %q: %v\n", template, err)
			if err := scaffold(path); err != nil {
				return "", err
			}
		}
	} else {
		if err := scaffold(path); err != nil {
			return "", err
		}
	}

	m.active[taskID] = &Info{
		TaskID:    taskID,
		Path:      path,
		CreatedAt: time.Now().UTC(),
		Temporary: temporary,
		Template:  template,
	}
	if err := m.saveRegistry(); err != nil {
		return "", err
	}
	return path, nil
}

// scaffold writes the minimal workspace layout for tasks without a template
func scaffold(path string) error {
	for _, dir := range []string{"src", "docs", ".claude"} {
		if err := os.MkdirAll(filepath.Join(path, dir), 0755); err != nil {
			return err
		}
	}

	readme := fmt.Sprintf(`# Task Workspace

This workspace was created for automated task execution.

Created: %s

## Structure
- src/    source files
- docs/   documentation
- .claude/ tool configuration and prompts

The workspace is isolated and safe to modify during execution.
`, time.Now().Format("2006-01-02 15:04:05"))

	return os.WriteFile(filepath.Join(path, "README.md"), []byte(readme), 0644)
}

// applyTemplate copies the named template directory's contents into path
func (m *Manager) applyTemplate(path, template string) error {
	src := filepath.Join(m.templatesDir, template)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("template not found: %w", err)
	}
	return copyTree(src, path)
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}

		in, err := os.Open(p)
		if err != nil {
			return err
		}
		defer in.Close()

		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
		if err != nil {
			return err
		}
		defer out.Close()

		_, err = io.Copy(out, in)
		return err
	})
}

// Get returns the workspace path for a task, or empty when none exists.
func (m *Manager) Get(taskID string) string {
	info, ok := m.active[taskID]
	if !ok {
		return ""
	}
	if _, err := os.Stat(info.Path); err != nil {
		return ""
	}
	return info.Path
}

// Cleanup removes a task's workspace. Persistent workspaces are kept
// unless force is set. Returns true when the workspace is gone.
func (m *Manager) Cleanup(taskID string, force bool) bool {
	info, ok := m.active[taskID]
	if !ok {
		return true // already cleaned up
	}

	if !info.Temporary && !force {
		fmt.Printf("Skipping cleanup of persistent workspace for task %s\n", taskID)
		return false
	}

	if err := os.RemoveAll(info.Path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not remove workspace for task %s: %v\n", taskID, err)
		return false
	}

	delete(m.active, taskID)
	if err := m.saveRegistry(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	return true
}

// CleanupAllTemporary removes every temporary workspace and returns the
// count removed.
func (m *Manager) CleanupAllTemporary() int {
	var ids []string
	for id, info := range m.active {
		if info.Temporary {
			ids = append(ids, id)
		}
	}

	cleaned := 0
	for _, id := range ids {
		if m.Cleanup(id, false) {
			cleaned++
		}
	}
	return cleaned
}

// Backup copies the workspace tree to a timestamped location before a
// destructive cleanup. Best effort: returns empty on failure.
func (m *Manager) Backup(taskID, destDir string) string {
	path := m.Get(taskID)
	if path == "" {
		return ""
	}

	if destDir == "" {
		destDir = filepath.Join(m.baseDir, "backups")
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create backup dir: %v\n", err)
		return ""
	}

	backup := filepath.Join(destDir, fmt.Sprintf("%s_%s", taskID, time.Now().Format("20060102_150405")))
	if err := copyTree(path, backup); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: backup failed for task %s: %v\n", taskID, err)
		return ""
	}
	return backup
}

// List returns all registered workspaces.
func (m *Manager) List() []*Info {
	out := make([]*Info, 0, len(m.active))
	for _, info := range m.active {
		out = append(out, info)
	}
	return out
}

// Files returns the non-hidden files in a workspace, relative to its root.
func (m *Manager) Files(taskID string) []string {
	path := m.Get(taskID)
	if path == "" {
		return nil
	}

	var files []string
	filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		name := filepath.Base(p)
		if info.IsDir() {
			if strings.HasPrefix(name, ".") && p != path {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		rel, _ := filepath.Rel(path, p)
		files = append(files, rel)
		return nil
	})
	return files
}

// Size returns the total size of a workspace in bytes.
func (m *Manager) Size(taskID string) int64 {
	path := m.Get(taskID)
	if path == "" {
		return 0
	}

	var total int64
	filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
