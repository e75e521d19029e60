// Package config provides configuration loading for the engine.
//
// # Configuration Loading Priority
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Explicit --config flag path
//  2. MCP_GIT_CONFIG environment variable
//  3. Default search paths (in order):
//     - ./config.yaml (current directory)
//     - ~/.mcp-git/config.yaml
//     - ~/.config/mcp-git/config.yaml
//
// When an explicit config path is provided via --config flag or
// MCP_GIT_CONFIG environment variable, the file must exist or loading will
// fail. Default search paths are optional - if no config file is found,
// defaults are used.
//
// Environment variables with the MCP_GIT_ prefix override configuration
// values, per spec.md §6.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	cerrors "github.com/mcp-git/engine/internal/errors"
)

// CleanupStrategy selects which workspaces are evicted first when the
// aggregate quota is exceeded.
type CleanupStrategy string

const (
	CleanupStrategyLRU  CleanupStrategy = "lru"
	CleanupStrategyFIFO CleanupStrategy = "fifo"
)

// GitRetrySettings holds the YAML/env representation of retry timing. This
// is the config-file shape; internal/retry.Config is the runtime shape.
type GitRetrySettings struct {
	MaxAttempts  int     `mapstructure:"max_attempts"`
	InitialDelay string  `mapstructure:"initial_delay"`
	MaxDelay     string  `mapstructure:"max_delay"`
	Multiplier   float64 `mapstructure:"multiplier"`
	JitterFactor float64 `mapstructure:"jitter_factor"`
}

// ParsedRetryConfig is GitRetrySettings with durations parsed.
type ParsedRetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

// Parse converts GitRetrySettings into ParsedRetryConfig.
func (r GitRetrySettings) Parse() (ParsedRetryConfig, error) {
	initialDelay, err := time.ParseDuration(r.InitialDelay)
	if err != nil {
		return ParsedRetryConfig{}, cerrors.NewConfigValidation("git.retry.initial_delay", fmt.Sprintf("invalid duration %q: %v", r.InitialDelay, err))
	}
	maxDelay, err := time.ParseDuration(r.MaxDelay)
	if err != nil {
		return ParsedRetryConfig{}, cerrors.NewConfigValidation("git.retry.max_delay", fmt.Sprintf("invalid duration %q: %v", r.MaxDelay, err))
	}
	return ParsedRetryConfig{
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
		Multiplier:   r.Multiplier,
		JitterFactor: r.JitterFactor,
	}, nil
}

// Config is the engine's full runtime configuration, populated by Load.
type Config struct {
	WorkspacePath string `mapstructure:"workspace_path"`
	DatabasePath  string `mapstructure:"database_path"`

	ServerHost string `mapstructure:"server_host"`
	ServerPort int    `mapstructure:"server_port"`

	LogLevel string `mapstructure:"log_level"`

	MaxConcurrentTasks     int64 `mapstructure:"max_concurrent_tasks"`
	TaskTimeoutSeconds     int64 `mapstructure:"task_timeout_seconds"`
	ResultRetentionSeconds int64 `mapstructure:"result_retention_seconds"`
	CleanupIntervalSeconds int64 `mapstructure:"cleanup_interval_seconds"`

	WorkerCount int `mapstructure:"worker_count"`

	DefaultCloneDepth int `mapstructure:"default_clone_depth"`

	MaxWorkspaceSizeBytes   int64           `mapstructure:"max_workspace_size_bytes"`
	WorkspaceRetentionSecs  int64           `mapstructure:"workspace_retention_seconds"`
	WorkspaceCleanupStrat   CleanupStrategy `mapstructure:"workspace_cleanup_strategy"`
	MaxWorkspaces           int             `mapstructure:"max_workspaces"`
	MaxPerWorkspaceBytes    int64           `mapstructure:"max_per_workspace_bytes"`

	GitRetry GitRetrySettings `mapstructure:"git_retry"`

	GitBinaryPath string `mapstructure:"git_binary_path"`
	UseNativeGit  bool   `mapstructure:"use_native_git"`

	Warnings []string `mapstructure:"-"`
}

func checkDeprecatedKeys(allSettings map[string]interface{}) []string {
	known := map[string]bool{
		"workspace_path": true, "database_path": true, "server_host": true,
		"server_port": true, "log_level": true, "max_concurrent_tasks": true,
		"task_timeout_seconds": true, "result_retention_seconds": true,
		"cleanup_interval_seconds": true, "worker_count": true,
		"default_clone_depth": true, "max_workspace_size_bytes": true,
		"workspace_retention_seconds": true, "workspace_cleanup_strategy": true,
		"max_workspaces": true, "max_per_workspace_bytes": true,
		"git_retry": true, "git_binary_path": true, "use_native_git": true,
	}
	var warnings []string
	for key := range allSettings {
		if !known[key] {
			warnings = append(warnings, fmt.Sprintf("unknown configuration key %q is ignored", key))
		}
	}
	return warnings
}

// Load reads configuration from configPath (if non-empty), the
// MCP_GIT_CONFIG environment variable, or the default search paths, then
// layers MCP_GIT_* environment variable overrides on top.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	viper.SetConfigType("yaml")

	explicit := configPath
	if explicit == "" {
		explicit = os.Getenv("MCP_GIT_CONFIG")
	}
	if explicit != "" {
		expanded := expandPath(explicit, home)
		viper.SetConfigFile(expanded)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath(filepath.Join(home, ".mcp-git"))
		viper.AddConfigPath(filepath.Join(home, ".config", "mcp-git"))
	}

	viper.SetDefault("workspace_path", filepath.Join(home, ".mcp-git", "workspaces"))
	viper.SetDefault("database_path", filepath.Join(home, ".mcp-git", "engine.db"))
	viper.SetDefault("server_host", "127.0.0.1")
	viper.SetDefault("server_port", 0)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("max_concurrent_tasks", 4)
	viper.SetDefault("task_timeout_seconds", 300)
	viper.SetDefault("result_retention_seconds", 3600)
	viper.SetDefault("cleanup_interval_seconds", 60)
	viper.SetDefault("worker_count", 4)
	viper.SetDefault("default_clone_depth", 0)
	viper.SetDefault("max_workspace_size_bytes", int64(10)<<30)
	viper.SetDefault("workspace_retention_seconds", 86400)
	viper.SetDefault("workspace_cleanup_strategy", string(CleanupStrategyLRU))
	viper.SetDefault("max_workspaces", 0)
	viper.SetDefault("max_per_workspace_bytes", 0)
	viper.SetDefault("git_binary_path", "git")
	viper.SetDefault("use_native_git", true)

	viper.SetDefault("git_retry.max_attempts", 3)
	viper.SetDefault("git_retry.initial_delay", "1s")
	viper.SetDefault("git_retry.max_delay", "30s")
	viper.SetDefault("git_retry.multiplier", 2.0)
	viper.SetDefault("git_retry.jitter_factor", 0.25)

	viper.SetEnvPrefix("MCP_GIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if explicit != "" {
				return nil, cerrors.NewIOFailed("read config file", fmt.Errorf("config file not found: %s", viper.ConfigFileUsed()))
			}
		} else {
			return nil, cerrors.NewIOFailed("read config file", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = false
	}); err != nil {
		return nil, handleUnmarshalError(err)
	}

	cfg.WorkspacePath = expandPath(cfg.WorkspacePath, home)
	cfg.DatabasePath = expandPath(cfg.DatabasePath, home)

	cfg.Warnings = checkDeprecatedKeys(viper.AllSettings())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func handleUnmarshalError(err error) error {
	return cerrors.NewConfigValidation("config", fmt.Sprintf("failed to parse configuration: %v", err))
}

func expandPath(path, home string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// Validate checks the fully-loaded configuration for internal consistency.
func (c *Config) Validate() error {
	if err := validateRequiredField("workspace_path", c.WorkspacePath); err != nil {
		return err
	}
	if err := validateRequiredField("database_path", c.DatabasePath); err != nil {
		return err
	}
	if c.MaxConcurrentTasks <= 0 {
		return cerrors.NewConfigValidation("max_concurrent_tasks", "must be positive")
	}
	if c.TaskTimeoutSeconds <= 0 {
		return cerrors.NewConfigValidation("task_timeout_seconds", "must be positive")
	}
	if c.WorkspaceCleanupStrat != CleanupStrategyLRU && c.WorkspaceCleanupStrat != CleanupStrategyFIFO {
		return cerrors.NewConfigValidation("workspace_cleanup_strategy", fmt.Sprintf("must be %q or %q", CleanupStrategyLRU, CleanupStrategyFIFO))
	}
	if c.MaxWorkspaceSizeBytes <= 0 {
		return cerrors.NewConfigValidation("max_workspace_size_bytes", "must be positive")
	}
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return cerrors.NewConfigValidation("server_port", "must be between 0 and 65535")
	}
	switch c.LogLevel {
	case "debug", "info", "warning", "error":
	default:
		return cerrors.NewConfigValidation("log_level", "must be one of debug, info, warning, error")
	}
	if _, err := c.GitRetry.Parse(); err != nil {
		return err
	}
	return nil
}

func validateRequiredField(label, value string) error {
	if strings.TrimSpace(value) == "" {
		return cerrors.NewConfigValidation(label, "must not be empty")
	}
	return nil
}

// GetGitRetryConfig parses the configured retry timing. A parse error is
// discarded and a zero ParsedRetryConfig is returned in that case; Load
// always calls Validate, so configs obtained that way parse cleanly.
func (c *Config) GetGitRetryConfig() ParsedRetryConfig {
	parsed, _ := c.GitRetry.Parse()
	return parsed
}

func (c *Config) HasWarnings() bool {
	return len(c.Warnings) > 0
}
