package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-git/engine/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := &store.Task{
		ID:        "task-1",
		Operation: "clone",
		Status:    store.TaskStatusQueued,
		Params:    []byte(`{"url":"https://example.com/repo.git"}`),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateTask(ctx, task))

	got, err := s.GetTask(ctx, "task-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "clone", got.Operation)
	assert.Equal(t, store.TaskStatusQueued, got.Status)
}

func TestGetTaskMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetTask(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateTaskStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := &store.Task{ID: "t", Operation: "fetch", Status: store.TaskStatusQueued, Params: []byte(`{}`), CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateTask(ctx, task))

	running := store.TaskStatusRunning
	now := time.Now().UTC()
	require.NoError(t, s.UpdateTask(ctx, "t", store.TaskUpdate{Status: &running, StartedAt: &now}))

	got, err := s.GetTask(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, store.TaskStatusRunning, got.Status)
	require.NotNil(t, got.StartedAt)
}

func TestPendingTasksOrderedByPriorityThenFIFO(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	low := &store.Task{ID: "low", Operation: "x", Status: store.TaskStatusQueued, Priority: 0, Params: []byte(`{}`), CreatedAt: base}
	high := &store.Task{ID: "high", Operation: "x", Status: store.TaskStatusQueued, Priority: 10, Params: []byte(`{}`), CreatedAt: base.Add(time.Second)}
	require.NoError(t, s.CreateTask(ctx, low))
	require.NoError(t, s.CreateTask(ctx, high))

	pending, err := s.PendingTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "high", pending[0].ID)
}

func TestWorkspaceLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ws := &store.Workspace{ID: "w1", Path: "/tmp/w1", LastAccessedAt: time.Now().UTC(), CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateWorkspace(ctx, ws))

	got, err := s.GetWorkspaceByPath(ctx, "/tmp/w1")
	require.NoError(t, err)
	require.NotNil(t, got)

	size := int64(1024)
	require.NoError(t, s.UpdateWorkspace(ctx, "w1", store.WorkspaceUpdate{SizeBytes: &size}))

	total, err := s.WorkspaceTotalSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), total)

	require.NoError(t, s.DeleteWorkspace(ctx, "w1"))
	got, err = s.GetWorkspace(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCleanupExpiredTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-2 * time.Hour)
	task := &store.Task{ID: "old", Operation: "x", Status: store.TaskStatusCompleted, Params: []byte(`{}`), CreatedAt: old, CompletedAt: &old}
	require.NoError(t, s.CreateTask(ctx, task))

	n, err := s.CleanupExpiredTasks(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLogOperationAndOperationLogs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := &store.Task{ID: "t", Operation: "clone", Status: store.TaskStatusQueued, Params: []byte(`{}`), CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateTask(ctx, task))

	require.NoError(t, s.LogOperation(ctx, "t", "clone", "info", "task created"))
	require.NoError(t, s.LogOperation(ctx, "t", "clone", "info", "task started"))
	require.NoError(t, s.LogOperation(ctx, "t", "clone", "error", "task failed"))

	logs, err := s.OperationLogs(ctx, "t", 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "error", logs[0].Level)
	assert.Equal(t, "task failed", logs[0].Message)

	all, err := s.OperationLogs(ctx, "t", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDeleteTaskCascadesOperationLogs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := &store.Task{ID: "t", Operation: "fetch", Status: store.TaskStatusQueued, Params: []byte(`{}`), CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateTask(ctx, task))
	require.NoError(t, s.LogOperation(ctx, "t", "fetch", "info", "task created"))

	deleted, err := s.DeleteTask(ctx, "t")
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := s.GetTask(ctx, "t")
	require.NoError(t, err)
	assert.Nil(t, got)

	logs, err := s.OperationLogs(ctx, "t", 0)
	require.NoError(t, err)
	assert.Empty(t, logs)

	deletedAgain, err := s.DeleteTask(ctx, "t")
	require.NoError(t, err)
	assert.False(t, deletedAgain)
}

func TestGetTasksBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		task := &store.Task{ID: id, Operation: "x", Status: store.TaskStatusQueued, Params: []byte(`{}`), CreatedAt: time.Now().UTC()}
		require.NoError(t, s.CreateTask(ctx, task))
	}

	got, err := s.GetTasksBatch(ctx, []string{"a", "c", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestGetWorkspaceInfoBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"w1", "w2"} {
		ws := &store.Workspace{ID: id, Path: "/tmp/" + id, LastAccessedAt: time.Now().UTC(), CreatedAt: time.Now().UTC()}
		require.NoError(t, s.CreateWorkspace(ctx, ws))
	}

	got, err := s.GetWorkspaceInfoBatch(ctx, []string{"w1", "w2", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
