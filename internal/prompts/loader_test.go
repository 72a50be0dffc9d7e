package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoaderLoadEmbedded(t *testing.T) {
	loader := NewLoader() // No override dirs

	tmpl, meta, err := loader.LoadTemplate("default")
	if err != nil {
		t.Fatalf("failed to load default template: %v", err)
	}
	if tmpl == nil {
		t.Fatal("template should not be nil")
	}
	if meta == nil || meta.ID != "default" {
		t.Fatalf("default template should carry frontmatter metadata, got %+v", meta)
	}
}

func TestBuildTaskPromptSubstitution(t *testing.T) {
	loader := NewLoader()

	result, err := loader.BuildTaskPrompt("default", TaskData{
		Title:       "Implement User Auth",
		Description: "Create login and logout endpoints",
		Timestamp:   "2025-01-15T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("failed to build prompt: %v", err)
	}

	checks := []string{
		"# Task: Implement User Auth",
		"Create login and logout endpoints",
		"2025-01-15T10:00:00Z",
	}
	for _, check := range checks {
		if !strings.Contains(result, check) {
			t.Errorf("expected result to contain %q, got: %s", check, result)
		}
	}
	// Frontmatter must be stripped from the rendered prompt.
	if strings.Contains(result, "id: default") {
		t.Error("frontmatter leaked into rendered prompt")
	}
}

func TestBuildTaskPromptUnknownTemplateFallsBack(t *testing.T) {
	loader := NewLoader()

	result, err := loader.BuildTaskPrompt("no-such-template", TaskData{
		Title:       "Fallback",
		Description: "desc",
	})
	if err != nil {
		t.Fatalf("fallback failed: %v", err)
	}
	if !strings.Contains(result, "# Task: Fallback") {
		t.Errorf("default template not used for unknown name, got: %s", result)
	}
}

func TestLoaderOverride(t *testing.T) {
	tmpDir := t.TempDir()

	customContent := `CUSTOM PROMPT for {{.Title}}

{{.Description}}
`
	if err := os.WriteFile(filepath.Join(tmpDir, "default.md"), []byte(customContent), 0644); err != nil {
		t.Fatalf("failed to write override file: %v", err)
	}

	loader := NewLoader(tmpDir)

	result, err := loader.BuildTaskPrompt("default", TaskData{
		Title:       "Test Feature",
		Description: "Implement something",
	})
	if err != nil {
		t.Fatalf("failed to build prompt: %v", err)
	}

	if !strings.Contains(result, "CUSTOM PROMPT") {
		t.Errorf("override was not used, got: %s", result)
	}
	if !strings.Contains(result, "Test Feature") {
		t.Errorf("template substitution failed, got: %s", result)
	}
}

func TestLoaderOverridePrecedence(t *testing.T) {
	projectDir := t.TempDir()
	userDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(projectDir, "default.md"), []byte(`PROJECT OVERRIDE: {{.Title}}`), 0644); err != nil {
		t.Fatalf("failed to write project override: %v", err)
	}
	if err := os.WriteFile(filepath.Join(userDir, "default.md"), []byte(`USER OVERRIDE: {{.Title}}`), 0644); err != nil {
		t.Fatalf("failed to write user override: %v", err)
	}

	loader := NewLoader(projectDir, userDir)

	result, err := loader.BuildTaskPrompt("default", TaskData{Title: "Test"})
	if err != nil {
		t.Fatalf("failed to build prompt: %v", err)
	}

	if !strings.Contains(result, "PROJECT OVERRIDE") {
		t.Errorf("first override dir should take precedence, got: %s", result)
	}
}

func TestLoaderFallbackToEmbedded(t *testing.T) {
	// Empty override dir, should fall back to the embedded default.
	loader := NewLoader(t.TempDir())

	result, err := loader.BuildTaskPrompt("default", TaskData{
		Title:       "Test Feature",
		Description: "Content here",
	})
	if err != nil {
		t.Fatalf("failed to build prompt: %v", err)
	}

	if !strings.Contains(result, "## Deliverables") {
		t.Errorf("should fall back to embedded template, got: %s", result)
	}
}

func TestLoaderNamedTemplateOverride(t *testing.T) {
	tmpDir := t.TempDir()

	customContent := `---
id: bugfix
name: Bug Fix
description: Focused bug fix prompt
---
Fix the bug: {{.Title}}

Details: {{.Description}}
`
	if err := os.WriteFile(filepath.Join(tmpDir, "bugfix.md"), []byte(customContent), 0644); err != nil {
		t.Fatalf("failed to write override: %v", err)
	}

	loader := NewLoader(tmpDir)

	_, meta, err := loader.LoadTemplate("bugfix")
	if err != nil {
		t.Fatalf("failed to load template: %v", err)
	}
	if meta == nil || meta.Name != "Bug Fix" {
		t.Errorf("expected 'Bug Fix' metadata, got %+v", meta)
	}

	result, err := loader.BuildTaskPrompt("bugfix", TaskData{Title: "Crash on empty input"})
	if err != nil {
		t.Fatalf("failed to build prompt: %v", err)
	}
	if !strings.Contains(result, "Fix the bug: Crash on empty input") {
		t.Errorf("named template not rendered, got: %s", result)
	}
}

func TestLoaderCaching(t *testing.T) {
	loader := NewLoader()

	tmpl1, _, err := loader.LoadTemplate("default")
	if err != nil {
		t.Fatalf("first load failed: %v", err)
	}

	tmpl2, _, err := loader.LoadTemplate("default")
	if err != nil {
		t.Fatalf("second load failed: %v", err)
	}

	if tmpl1 != tmpl2 {
		t.Error("template should be cached and return same pointer")
	}

	loader.ClearCache()

	tmpl3, _, err := loader.LoadTemplate("default")
	if err != nil {
		t.Fatalf("third load failed: %v", err)
	}

	if tmpl1 == tmpl3 {
		t.Error("template should be reloaded after cache clear")
	}
}
