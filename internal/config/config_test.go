package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	t.Cleanup(viper.Reset)
}

func TestLoadAppliesDefaults(t *testing.T) {
	resetViper(t)
	t.Setenv("MCP_GIT_CONFIG", "")

	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, int64(4), cfg.MaxConcurrentTasks)
	require.Equal(t, int64(300), cfg.TaskTimeoutSeconds)
	require.Equal(t, CleanupStrategyLRU, cfg.WorkspaceCleanupStrat)
	require.Equal(t, "git", cfg.GitBinaryPath)
	require.True(t, cfg.UseNativeGit)
}

func TestLoadReadsExplicitConfigFile(t *testing.T) {
	resetViper(t)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "custom-config.yaml")
	content := `
workspace_path: /tmp/ws
database_path: /tmp/ws/engine.db
max_concurrent_tasks: 8
workspace_cleanup_strategy: fifo
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.Equal(t, "/tmp/ws", cfg.WorkspacePath)
	require.Equal(t, int64(8), cfg.MaxConcurrentTasks)
	require.Equal(t, CleanupStrategyFIFO, cfg.WorkspaceCleanupStrat)
}

func TestLoadMissingExplicitConfigFails(t *testing.T) {
	resetViper(t)

	_, err := Load("/nonexistent/path/to/config.yaml")
	require.Error(t, err)
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	resetViper(t)
	t.Setenv("MCP_GIT_CONFIG", "")
	t.Setenv("MCP_GIT_MAX_CONCURRENT_TASKS", "16")
	t.Setenv("MCP_GIT_LOG_LEVEL", "debug")

	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, int64(16), cfg.MaxConcurrentTasks)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestValidateRejectsBadCleanupStrategy(t *testing.T) {
	cfg := &Config{
		WorkspacePath:          "/tmp/ws",
		DatabasePath:           "/tmp/ws/engine.db",
		MaxConcurrentTasks:     1,
		TaskTimeoutSeconds:     1,
		WorkspaceCleanupStrat:  "bogus",
		MaxWorkspaceSizeBytes:  1,
		LogLevel:               "info",
		GitRetry: GitRetrySettings{
			MaxAttempts: 1, InitialDelay: "1s", MaxDelay: "1s", Multiplier: 1, JitterFactor: 0,
		},
	}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := &Config{
		WorkspacePath:         "/tmp/ws",
		DatabasePath:          "/tmp/ws/engine.db",
		MaxConcurrentTasks:    1,
		TaskTimeoutSeconds:    1,
		WorkspaceCleanupStrat: CleanupStrategyLRU,
		MaxWorkspaceSizeBytes: 1,
		LogLevel:              "verbose",
		GitRetry: GitRetrySettings{
			MaxAttempts: 1, InitialDelay: "1s", MaxDelay: "1s", Multiplier: 1, JitterFactor: 0,
		},
	}
	require.Error(t, cfg.Validate())
}

func TestGitRetrySettingsParse(t *testing.T) {
	s := GitRetrySettings{MaxAttempts: 3, InitialDelay: "1s", MaxDelay: "30s", Multiplier: 2, JitterFactor: 0.25}
	parsed, err := s.Parse()
	require.NoError(t, err)
	require.Equal(t, 3, parsed.MaxAttempts)

	bad := GitRetrySettings{InitialDelay: "not-a-duration"}
	_, err = bad.Parse()
	require.Error(t, err)
}
