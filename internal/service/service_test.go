package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcp-git/engine/internal/logging"
	"github.com/mcp-git/engine/internal/mocks"
	"github.com/mcp-git/engine/internal/ports"
	"github.com/mcp-git/engine/internal/service"
	"github.com/mcp-git/engine/internal/store"
	"github.com/mcp-git/engine/internal/tasks"
	"github.com/mcp-git/engine/internal/vault"
	"github.com/mcp-git/engine/internal/workspace"
)

func newTestFacade(t *testing.T, git *mocks.MockGitOperations, invalidate service.CacheInvalidator) (*service.Facade, func()) {
	t.Helper()
	logger := logging.New(false)

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	wsMgr, err := workspace.New(st, logger, workspace.Config{
		RootPath:         t.TempDir(),
		MaxSizeBytes:     1 << 30,
		RetentionSeconds: 3600,
		CleanupStrategy:  workspace.StrategyLRU,
	})
	require.NoError(t, err)

	taskMgr := tasks.New(st, logger, tasks.Config{
		MaxConcurrentTasks:     2,
		TaskTimeoutSeconds:     5,
		ResultRetentionSeconds: 60,
		CleanupIntervalSeconds: 1,
	}, tasks.Callbacks{})

	ctx, cancel := context.WithCancel(context.Background())
	wsMgr.Start(ctx)
	taskMgr.Start(ctx)

	v := vault.New(logger)
	facade := service.New(st, v, wsMgr, taskMgr, git, invalidate)

	return facade, func() {
		taskMgr.Stop()
		wsMgr.Stop()
		cancel()
		st.Close()
	}
}

func waitForTask(t *testing.T, f *service.Facade, id string, want store.TaskStatus, timeout time.Duration) *store.Task {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		task, err := f.GetTask(context.Background(), id)
		require.NoError(t, err)
		if task != nil && task.Status == want {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach status %s in time", id, want)
	return nil
}

func TestAllocateAndGetWorkspace(t *testing.T) {
	f, cleanup := newTestFacade(t, mocks.NewMockGitOperations(), nil)
	defer cleanup()

	ws, err := f.AllocateWorkspace(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, ws.ID)

	got, err := f.GetWorkspace(context.Background(), ws.ID)
	require.NoError(t, err)
	require.Equal(t, ws.Path, got.Path)
}

func TestGetWorkspaceUnknownReturnsNotFound(t *testing.T) {
	f, cleanup := newTestFacade(t, mocks.NewMockGitOperations(), nil)
	defer cleanup()

	_, err := f.GetWorkspace(context.Background(), "00000000-0000-0000-0000-000000000000")
	require.Error(t, err)
}

func TestStatusDelegatesToGitCapability(t *testing.T) {
	git := mocks.NewMockGitOperations()
	git.StatusFunc = func(ctx context.Context, path string) (bool, int, int, string, error) {
		return true, 2, 1, "main", nil
	}
	f, cleanup := newTestFacade(t, git, nil)
	defer cleanup()

	ws, err := f.AllocateWorkspace(context.Background())
	require.NoError(t, err)

	status, err := f.Status(context.Background(), ws.ID)
	require.NoError(t, err)
	require.True(t, status.IsDirty)
	require.Equal(t, 2, status.Unpushed)
	require.Equal(t, 1, status.Behind)
	require.Equal(t, "main", status.Branch)
}

func TestCreateGitTaskRejectsUnknownOperation(t *testing.T) {
	f, cleanup := newTestFacade(t, mocks.NewMockGitOperations(), nil)
	defer cleanup()

	ws, err := f.AllocateWorkspace(context.Background())
	require.NoError(t, err)

	_, err = f.CreateGitTask(context.Background(), "not-a-real-operation", ws.ID, nil, 0)
	require.Error(t, err)
}

func TestCreateGitTaskRejectsUnknownWorkspace(t *testing.T) {
	f, cleanup := newTestFacade(t, mocks.NewMockGitOperations(), nil)
	defer cleanup()

	_, err := f.CreateGitTask(context.Background(), "commit", "00000000-0000-0000-0000-000000000000", nil, 0)
	require.Error(t, err)
}

func TestCreateGitTaskCommitCompletesAndInvalidatesCache(t *testing.T) {
	git := mocks.NewMockGitOperations()
	git.CommitFunc = func(ctx context.Context, path, message, authorName, authorEmail string) (string, error) {
		return "abc123", nil
	}

	var invalidated string
	f, cleanup := newTestFacade(t, git, func(workspaceID string) { invalidated = workspaceID })
	defer cleanup()

	ws, err := f.AllocateWorkspace(context.Background())
	require.NoError(t, err)

	params, err := json.Marshal(service.CommitOptions{Message: "a change"})
	require.NoError(t, err)

	task, err := f.CreateGitTask(context.Background(), "commit", ws.ID, params, 0)
	require.NoError(t, err)

	completed := waitForTask(t, f, task.ID, store.TaskStatusCompleted, 2*time.Second)
	require.JSONEq(t, `{"hash":"abc123"}`, string(completed.Result))
	require.Equal(t, ws.ID, invalidated)
}

func TestCreateGitTaskCloneFailurePropagatesToTask(t *testing.T) {
	// "repository not found" is classified non-retryable, so the retry
	// engine returns on the first attempt instead of exhausting its
	// backoff schedule.
	git := mocks.NewMockGitOperations()
	git.CloneFunc = func(ctx context.Context, url, path string, depth int) error {
		return errors.New("repository not found")
	}

	f, cleanup := newTestFacade(t, git, nil)
	defer cleanup()

	ws, err := f.AllocateWorkspace(context.Background())
	require.NoError(t, err)

	params, err := json.Marshal(service.CloneOptions{URL: "https://example.com/repo.git"})
	require.NoError(t, err)

	task, err := f.CreateGitTask(context.Background(), "clone", ws.ID, params, 0)
	require.NoError(t, err)

	failed := waitForTask(t, f, task.ID, store.TaskStatusFailed, 2*time.Second)
	require.NotEmpty(t, failed.ErrorMessage)
}

func TestListBranchesDelegates(t *testing.T) {
	git := mocks.NewMockGitOperations()
	git.ListBranchesFunc = func(ctx context.Context, path string) ([]string, error) {
		return []string{"main", "dev"}, nil
	}
	f, cleanup := newTestFacade(t, git, nil)
	defer cleanup()

	ws, err := f.AllocateWorkspace(context.Background())
	require.NoError(t, err)

	branches, err := f.ListBranches(context.Background(), ws.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"main", "dev"}, branches)
}

func TestCancelTaskBeforeAdmission(t *testing.T) {
	f, cleanup := newTestFacade(t, mocks.NewMockGitOperations(), nil)
	defer cleanup()

	ws, err := f.AllocateWorkspace(context.Background())
	require.NoError(t, err)

	task, err := f.CreateGitTask(context.Background(), "fetch", ws.ID, nil, 0)
	require.NoError(t, err)

	found, err := f.CancelTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.True(t, found)
}

func TestGitTaskCompletionAppendsOperationLogs(t *testing.T) {
	git := mocks.NewMockGitOperations()
	git.CommitFunc = func(ctx context.Context, path, message, authorName, authorEmail string) (string, error) {
		return "abc123", nil
	}
	f, cleanup := newTestFacade(t, git, nil)
	defer cleanup()

	ws, err := f.AllocateWorkspace(context.Background())
	require.NoError(t, err)

	params, err := json.Marshal(service.CommitOptions{Message: "a change"})
	require.NoError(t, err)

	task, err := f.CreateGitTask(context.Background(), "commit", ws.ID, params, 0)
	require.NoError(t, err)
	waitForTask(t, f, task.ID, store.TaskStatusCompleted, 2*time.Second)

	logs, err := f.GetOperationLogs(context.Background(), task.ID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
}

func TestDeleteTaskRemovesTaskAndLogs(t *testing.T) {
	f, cleanup := newTestFacade(t, mocks.NewMockGitOperations(), nil)
	defer cleanup()

	ws, err := f.AllocateWorkspace(context.Background())
	require.NoError(t, err)

	task, err := f.CreateGitTask(context.Background(), "fetch", ws.ID, nil, 0)
	require.NoError(t, err)

	deleted, err := f.DeleteTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	got, err := f.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Nil(t, got)

	logs, err := f.GetOperationLogs(context.Background(), task.ID, 0)
	require.NoError(t, err)
	require.Empty(t, logs)
}

func TestGetFleetSummaryBatchesTasksAndWorkspaces(t *testing.T) {
	f, cleanup := newTestFacade(t, mocks.NewMockGitOperations(), nil)
	defer cleanup()

	ws, err := f.AllocateWorkspace(context.Background())
	require.NoError(t, err)

	task, err := f.CreateGitTask(context.Background(), "fetch", ws.ID, nil, 0)
	require.NoError(t, err)

	summary, err := f.GetFleetSummary(context.Background(), []string{task.ID}, []string{ws.ID})
	require.NoError(t, err)
	require.Len(t, summary.Tasks, 1)
	require.Len(t, summary.Workspaces, 1)
	require.Equal(t, task.ID, summary.Tasks[0].ID)
	require.Equal(t, ws.ID, summary.Workspaces[0].ID)
}

var _ ports.GitOperations = (*mocks.MockGitOperations)(nil)
