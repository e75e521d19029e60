package tasks_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcp-git/engine/internal/logging"
	"github.com/mcp-git/engine/internal/store"
	"github.com/mcp-git/engine/internal/tasks"
)

func newTestManager(t *testing.T, cfg tasks.Config, cb tasks.Callbacks) (*tasks.Manager, func()) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	mgr := tasks.New(st, logging.New(false), cfg, cb)
	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)

	return mgr, func() {
		mgr.Stop()
		cancel()
		st.Close()
	}
}

func waitForStatus(t *testing.T, mgr *tasks.Manager, id string, want store.TaskStatus, timeout time.Duration) *store.Task {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		task, err := mgr.GetTask(context.Background(), id)
		require.NoError(t, err)
		if task != nil && task.Status == want {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach status %s in time", id, want)
	return nil
}

func TestSubmitRunsTaskToCompletion(t *testing.T) {
	mgr, cleanup := newTestManager(t, tasks.Config{
		MaxConcurrentTasks:     2,
		TaskTimeoutSeconds:     5,
		ResultRetentionSeconds: 60,
		CleanupIntervalSeconds: 1,
	}, tasks.Callbacks{})
	defer cleanup()

	task, err := mgr.CreateTask(context.Background(), "clone", nil, "/tmp/ws", 0)
	require.NoError(t, err)

	mgr.Submit(task.ID, func(ctx context.Context, progress func(int)) (json.RawMessage, error) {
		progress(50)
		return json.RawMessage(`{"ok":true}`), nil
	})

	completed := waitForStatus(t, mgr, task.ID, store.TaskStatusCompleted, 2*time.Second)
	require.Equal(t, 100, completed.Progress)
	require.JSONEq(t, `{"ok":true}`, string(completed.Result))
}

func TestSubmitRespectsConcurrencyCap(t *testing.T) {
	mgr, cleanup := newTestManager(t, tasks.Config{
		MaxConcurrentTasks:     1,
		TaskTimeoutSeconds:     5,
		ResultRetentionSeconds: 60,
		CleanupIntervalSeconds: 1,
	}, tasks.Callbacks{})
	defer cleanup()

	release := make(chan struct{})
	first, err := mgr.CreateTask(context.Background(), "clone", nil, "", 0)
	require.NoError(t, err)
	second, err := mgr.CreateTask(context.Background(), "clone", nil, "", 0)
	require.NoError(t, err)

	mgr.Submit(first.ID, func(ctx context.Context, progress func(int)) (json.RawMessage, error) {
		<-release
		return json.RawMessage(`{}`), nil
	})
	mgr.Submit(second.ID, func(ctx context.Context, progress func(int)) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})

	time.Sleep(50 * time.Millisecond)
	stillQueued, err := mgr.GetTask(context.Background(), second.ID)
	require.NoError(t, err)
	require.Equal(t, store.TaskStatusQueued, stillQueued.Status)

	close(release)
	waitForStatus(t, mgr, first.ID, store.TaskStatusCompleted, 2*time.Second)
	waitForStatus(t, mgr, second.ID, store.TaskStatusCompleted, 2*time.Second)
}

func TestCancelQueuedTaskMarksCancelled(t *testing.T) {
	mgr, cleanup := newTestManager(t, tasks.Config{
		MaxConcurrentTasks:     1,
		TaskTimeoutSeconds:     5,
		ResultRetentionSeconds: 60,
		CleanupIntervalSeconds: 1,
	}, tasks.Callbacks{})
	defer cleanup()

	task, err := mgr.CreateTask(context.Background(), "clone", nil, "", 0)
	require.NoError(t, err)

	found, err := mgr.Cancel(context.Background(), task.ID)
	require.NoError(t, err)
	require.True(t, found)

	cancelled, err := mgr.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, store.TaskStatusCancelled, cancelled.Status)
}

func TestCancelUnknownTaskReturnsNotFound(t *testing.T) {
	mgr, cleanup := newTestManager(t, tasks.Config{MaxConcurrentTasks: 1, TaskTimeoutSeconds: 5}, tasks.Callbacks{})
	defer cleanup()

	found, err := mgr.Cancel(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.False(t, found)
}

func TestCancelRunningTaskTransitionsToCancelled(t *testing.T) {
	mgr, cleanup := newTestManager(t, tasks.Config{
		MaxConcurrentTasks:     1,
		TaskTimeoutSeconds:     5,
		ResultRetentionSeconds: 60,
		CleanupIntervalSeconds: 1,
	}, tasks.Callbacks{})
	defer cleanup()

	task, err := mgr.CreateTask(context.Background(), "clone", nil, "", 0)
	require.NoError(t, err)

	mgr.Submit(task.ID, func(ctx context.Context, progress func(int)) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	waitForStatus(t, mgr, task.ID, store.TaskStatusRunning, time.Second)

	found, err := mgr.Cancel(context.Background(), task.ID)
	require.NoError(t, err)
	require.True(t, found)

	waitForStatus(t, mgr, task.ID, store.TaskStatusCancelled, 2*time.Second)
}

func TestFailedWorkTransitionsToFailed(t *testing.T) {
	mgr, cleanup := newTestManager(t, tasks.Config{
		MaxConcurrentTasks:     1,
		TaskTimeoutSeconds:     5,
		ResultRetentionSeconds: 60,
		CleanupIntervalSeconds: 1,
	}, tasks.Callbacks{})
	defer cleanup()

	task, err := mgr.CreateTask(context.Background(), "clone", nil, "", 0)
	require.NoError(t, err)

	mgr.Submit(task.ID, func(ctx context.Context, progress func(int)) (json.RawMessage, error) {
		return nil, require.AnError
	})

	failed := waitForStatus(t, mgr, task.ID, store.TaskStatusFailed, 2*time.Second)
	require.NotEmpty(t, failed.ErrorMessage)
}
