// Package app provides the shared composition root: it wires the store,
// vault, Git capability, workspace manager, and task manager into a single
// service.Facade for the command layer.
package app

import (
	"context"
	"encoding/json"

	"github.com/mcp-git/engine/internal/config"
	"github.com/mcp-git/engine/internal/gitx"
	"github.com/mcp-git/engine/internal/logging"
	"github.com/mcp-git/engine/internal/ports"
	"github.com/mcp-git/engine/internal/service"
	"github.com/mcp-git/engine/internal/store"
	"github.com/mcp-git/engine/internal/tasks"
	"github.com/mcp-git/engine/internal/vault"
	"github.com/mcp-git/engine/internal/workspace"
)

// App holds the fully wired engine and its background loops.
type App struct {
	Config *config.Config
	Logger *logging.Logger
	Facade *service.Facade

	store     *store.Store
	workspace *workspace.Manager
	tasks     *tasks.Manager
}

// Option is a functional option for overriding a default dependency,
// primarily for tests.
type Option func(*appOptions)

type appOptions struct {
	configPath string
	git        ports.GitOperations
}

// WithConfigPath overrides the config file search, taking precedence over
// MCP_GIT_CONFIG and the default search paths.
func WithConfigPath(path string) Option {
	return func(o *appOptions) { o.configPath = path }
}

// WithGitOperations overrides the Git capability (used by tests to inject
// internal/mocks.MockGitOperations).
func WithGitOperations(g ports.GitOperations) Option {
	return func(o *appOptions) { o.git = g }
}

// New loads configuration, opens the store, and wires every collaborator
// into a service.Facade.
func New(debug bool, opts ...Option) (*App, error) {
	options := &appOptions{}
	for _, opt := range opts {
		opt(options)
	}

	cfg, err := config.Load(options.configPath)
	if err != nil {
		return nil, err
	}

	logger := logging.NewWithLevel(cfg.LogLevel)
	if debug {
		logger = logging.New(true)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	v := vault.New(logger)

	gitEngine := options.git
	if gitEngine == nil {
		if cfg.UseNativeGit {
			gitEngine = gitx.NewNativeEngine(v)
		} else {
			gitEngine = gitx.NewShellEngine(cfg.GitBinaryPath)
		}
	}

	wsManager, err := workspace.New(st, logger, workspace.Config{
		RootPath:             cfg.WorkspacePath,
		MaxSizeBytes:         cfg.MaxWorkspaceSizeBytes,
		RetentionSeconds:     cfg.WorkspaceRetentionSecs,
		CleanupStrategy:      workspace.CleanupStrategy(cfg.WorkspaceCleanupStrat),
		MaxWorkspaces:        cfg.MaxWorkspaces,
		MaxPerWorkspaceBytes: cfg.MaxPerWorkspaceBytes,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	taskManager := tasks.New(st, logger, tasks.Config{
		MaxConcurrentTasks:     cfg.MaxConcurrentTasks,
		TaskTimeoutSeconds:     cfg.TaskTimeoutSeconds,
		ResultRetentionSeconds: cfg.ResultRetentionSeconds,
		CleanupIntervalSeconds: cfg.CleanupIntervalSeconds,
	}, tasks.Callbacks{
		OnStart:    func(id string) { logger.Debug("task started", "task_id", id) },
		OnComplete: func(id string, _ json.RawMessage) { logger.Debug("task completed", "task_id", id) },
		OnError:    func(id string, err error) { logger.Warn("task failed", "task_id", id, "error", err) },
	})

	facade := service.New(st, v, wsManager, taskManager, gitEngine, nil)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Facade:    facade,
		store:     st,
		workspace: wsManager,
		tasks:     taskManager,
	}, nil
}

// Start launches the workspace and task manager background loops. It
// returns immediately; the loops run until ctx is cancelled or Shutdown
// is called.
func (a *App) Start(ctx context.Context) {
	a.workspace.Start(ctx)
	a.tasks.Start(ctx)
}

// Shutdown stops background loops and closes the store.
func (a *App) Shutdown() error {
	a.tasks.Stop()
	a.workspace.Stop()
	return a.store.Close()
}
