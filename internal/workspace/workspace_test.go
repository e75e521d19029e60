package workspace_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcp-git/engine/internal/logging"
	"github.com/mcp-git/engine/internal/store"
	"github.com/mcp-git/engine/internal/workspace"
)

func newTestManager(t *testing.T, cfg workspace.Config) (*workspace.Manager, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	if cfg.RootPath == "" {
		cfg.RootPath = t.TempDir()
	}
	mgr, err := workspace.New(st, logging.New(false), cfg)
	require.NoError(t, err)
	return mgr, st
}

func TestAllocateCreatesDirectoryAndRecord(t *testing.T) {
	mgr, _ := newTestManager(t, workspace.Config{})
	ctx := context.Background()

	ws, err := mgr.Allocate(ctx)
	require.NoError(t, err)
	require.DirExists(t, ws.Path)

	fetched, err := mgr.Get(ctx, ws.ID)
	require.NoError(t, err)
	require.Equal(t, ws.Path, fetched.Path)
}

func TestAllocateRejectsBeyondMaxWorkspaces(t *testing.T) {
	mgr, _ := newTestManager(t, workspace.Config{MaxWorkspaces: 1})
	ctx := context.Background()

	_, err := mgr.Allocate(ctx)
	require.NoError(t, err)

	_, err = mgr.Allocate(ctx)
	require.Error(t, err)
}

func TestReleaseRemovesDirectoryAndRecord(t *testing.T) {
	mgr, _ := newTestManager(t, workspace.Config{})
	ctx := context.Background()

	ws, err := mgr.Allocate(ctx)
	require.NoError(t, err)

	ok, err := mgr.Release(ctx, ws.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoDirExists(t, ws.Path)

	fetched, err := mgr.Get(ctx, ws.ID)
	require.NoError(t, err)
	require.Nil(t, fetched)
}

func TestReleaseUnknownIDReturnsFalse(t *testing.T) {
	mgr, _ := newTestManager(t, workspace.Config{})
	ok, err := mgr.Release(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCleanupExpiredReleasesIdleWorkspaces(t *testing.T) {
	mgr, st := newTestManager(t, workspace.Config{RetentionSeconds: 1})
	ctx := context.Background()

	ws, err := mgr.Allocate(ctx)
	require.NoError(t, err)

	stale := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, st.UpdateWorkspace(ctx, ws.ID, store.WorkspaceUpdate{LastAccessedAt: &stale}))

	count, _, err := mgr.CleanupExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.NoDirExists(t, ws.Path)
}

func TestValidateWorkspacePathRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	mgr, _ := newTestManager(t, workspace.Config{RootPath: root})

	require.True(t, mgr.ValidateWorkspacePath(filepath.Join(root, "abc")))
	require.False(t, mgr.ValidateWorkspacePath(filepath.Join(root, "..", "escape")))
}

func TestUpdateSizeComputesDirectoryTotal(t *testing.T) {
	mgr, st := newTestManager(t, workspace.Config{})
	ctx := context.Background()

	ws, err := mgr.Allocate(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(ws.Path, "file.txt"), []byte("hello world"), 0o644))
	require.NoError(t, mgr.UpdateSize(ctx, ws.ID))

	updated, err := st.GetWorkspace(ctx, ws.ID)
	require.NoError(t, err)
	require.Equal(t, int64(len("hello world")), updated.SizeBytes)
}
