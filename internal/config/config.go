package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Tokens        TokensConfig        `toml:"tokens"`
	Claude        ClaudeConfig        `toml:"claude"`
	Notifications NotificationsConfig `toml:"notifications"`
	Batches       []BatchConfig       `toml:"batch"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	TasksFile      string `toml:"tasks_file"`
	WorkspaceDir   string `toml:"workspace_dir"`
	TemplatesDir   string `toml:"templates_dir"`
	HistoryPath    string `toml:"history_path"`
	MaxTasks       int    `toml:"max_tasks"`
	TaskTimeoutSec int    `toml:"task_timeout_seconds"`
	TaskDelaySec   int    `toml:"task_delay_seconds"`
}

// TokensConfig holds quota monitor settings
type TokensConfig struct {
	WarningThreshold  float64 `toml:"warning_threshold"`
	CriticalThreshold float64 `toml:"critical_threshold"`
	MaxWaitMinutes    int     `toml:"max_wait_minutes"`
	CheckIntervalSec  int     `toml:"check_interval_seconds"`
}

// ClaudeConfig holds settings for the external Claude CLI
type ClaudeConfig struct {
	Binary string `toml:"binary"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// BatchConfig represents one scheduled batch run
type BatchConfig struct {
	Name     string `toml:"name"`
	Cron     string `toml:"cron"`
	MaxTasks int    `toml:"max_tasks"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".claude-sched")
	return &Config{
		General: GeneralConfig{
			TasksFile:      filepath.Join(base, "tasks.yaml"),
			WorkspaceDir:   filepath.Join(base, "workspaces"),
			TemplatesDir:   filepath.Join(base, "templates"),
			HistoryPath:    filepath.Join(base, "history.db"),
			MaxTasks:       5,
			TaskTimeoutSec: 300,
			TaskDelaySec:   2,
		},
		Tokens: TokensConfig{
			WarningThreshold:  0.8,
			CriticalThreshold: 0.95,
			MaxWaitMinutes:    360,
			CheckIntervalSec:  300,
		},
		Claude: ClaudeConfig{
			Binary: "claude",
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
	}
}

// TaskTimeout returns the per-task execution timeout
func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.General.TaskTimeoutSec) * time.Second
}

// TaskDelay returns the pause between sequential tasks
func (c *Config) TaskDelay() time.Duration {
	return time.Duration(c.General.TaskDelaySec) * time.Second
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.TasksFile = ExpandPath(cfg.General.TasksFile)
	cfg.General.WorkspaceDir = ExpandPath(cfg.General.WorkspaceDir)
	cfg.General.TemplatesDir = ExpandPath(cfg.General.TemplatesDir)
	cfg.General.HistoryPath = ExpandPath(cfg.General.HistoryPath)

	return cfg, nil
}

// Save writes the configuration to a TOML file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "claude-sched", "config.toml")
}
