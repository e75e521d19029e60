// Package service implements the facade: the single entry point an (out
// of scope) MCP transport layer calls into. It composes the store, the
// credential vault, the retry engine, a Git capability, the workspace
// manager, and the task manager, following the teacher's app+workspaces
// service composition pattern.
package service

import (
	"context"
	"encoding/json"
	"fmt"

	engerr "github.com/mcp-git/engine/internal/errors"
	"github.com/mcp-git/engine/internal/ports"
	"github.com/mcp-git/engine/internal/store"
	"github.com/mcp-git/engine/internal/tasks"
	"github.com/mcp-git/engine/internal/validation"
	"github.com/mcp-git/engine/internal/vault"
	"github.com/mcp-git/engine/internal/workspace"
)

// CacheInvalidator is the metadata cache's invalidation hook. The cache
// service itself is an external collaborator out of scope for this repo;
// the facade only needs somewhere to call when a mutation makes a
// workspace's cached metadata stale. A nil func is a no-op.
type CacheInvalidator func(workspaceID string)

// Facade is the engine's single external entry point.
type Facade struct {
	store     *store.Store
	vault     *vault.Vault
	workspace *workspace.Manager
	tasks     *tasks.Manager
	git       ports.GitOperations

	invalidateCache CacheInvalidator
}

// New constructs a Facade. invalidateCache may be nil.
func New(st *store.Store, v *vault.Vault, ws *workspace.Manager, tm *tasks.Manager, git ports.GitOperations, invalidateCache CacheInvalidator) *Facade {
	if invalidateCache == nil {
		invalidateCache = func(string) {}
	}
	return &Facade{store: st, vault: v, workspace: ws, tasks: tm, git: git, invalidateCache: invalidateCache}
}

// IsAuthenticated reports whether the vault can resolve Git credentials
// from the current environment.
func (f *Facade) IsAuthenticated() bool {
	return f.vault.IsAuthenticated()
}

func (f *Facade) resolveWorkspace(ctx context.Context, workspaceID string) (*store.Workspace, error) {
	if err := validation.ValidateWorkspaceID(workspaceID); err != nil {
		return nil, err
	}
	ws, err := f.workspace.Get(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, engerr.NewWorkspaceNotFound(workspaceID)
	}
	return ws, nil
}

// --- Workspace lifecycle (synchronous) ---

func (f *Facade) AllocateWorkspace(ctx context.Context) (*store.Workspace, error) {
	return f.workspace.Allocate(ctx)
}

func (f *Facade) GetWorkspace(ctx context.Context, id string) (*store.Workspace, error) {
	return f.resolveWorkspace(ctx, id)
}

func (f *Facade) GetWorkspaceByPath(ctx context.Context, path string) (*store.Workspace, error) {
	return f.workspace.GetByPath(ctx, path)
}

func (f *Facade) TouchWorkspace(ctx context.Context, id string) error {
	if _, err := f.resolveWorkspace(ctx, id); err != nil {
		return err
	}
	return f.workspace.Touch(ctx, id)
}

func (f *Facade) ReleaseWorkspace(ctx context.Context, id string) (bool, error) {
	return f.workspace.Release(ctx, id)
}

func (f *Facade) ListWorkspaces(ctx context.Context, limit int) ([]*store.Workspace, error) {
	return f.workspace.List(ctx, limit)
}

func (f *Facade) GetWorkspaceUsage(ctx context.Context) (*UsageResult, error) {
	u, err := f.workspace.GetUsage(ctx)
	if err != nil {
		return nil, err
	}
	return &UsageResult{Total: u.Total, TotalSizeBytes: u.TotalSizeBytes, MaxSizeBytes: u.MaxSizeBytes, UsagePercent: u.UsagePercent}, nil
}

func (f *Facade) GetDiskSpaceInfo() (*DiskSpaceResult, error) {
	d, err := f.workspace.GetDiskSpaceInfo()
	if err != nil {
		return nil, err
	}
	return &DiskSpaceResult{Total: d.Total, Used: d.Used, Free: d.Free, UsagePercent: d.UsagePercent}, nil
}

func (f *Facade) ValidateWorkspacePath(p string) bool {
	return f.workspace.ValidateWorkspacePath(p)
}

// --- Git read-only operations (synchronous, per spec.md §4.9 step 5) ---

func (f *Facade) Status(ctx context.Context, workspaceID string) (*StatusResult, error) {
	ws, err := f.resolveWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	isDirty, unpushed, behind, branch, err := f.git.Status(ctx, ws.Path)
	if err != nil {
		return nil, err
	}
	return &StatusResult{IsDirty: isDirty, Unpushed: unpushed, Behind: behind, Branch: branch}, nil
}

func (f *Facade) ListBranches(ctx context.Context, workspaceID string) ([]string, error) {
	ws, err := f.resolveWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return f.git.ListBranches(ctx, ws.Path)
}

func (f *Facade) ListTags(ctx context.Context, workspaceID string) ([]string, error) {
	ws, err := f.resolveWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return f.git.ListTags(ctx, ws.Path)
}

func (f *Facade) ListRemotes(ctx context.Context, workspaceID string) ([]ports.RemoteInfo, error) {
	ws, err := f.resolveWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return f.git.ListRemotes(ctx, ws.Path)
}

func (f *Facade) Log(ctx context.Context, workspaceID string, limit int) ([]ports.CommitInfo, error) {
	ws, err := f.resolveWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return f.git.Log(ctx, ws.Path, limit)
}

func (f *Facade) Diff(ctx context.Context, workspaceID, from, to string) (string, error) {
	ws, err := f.resolveWorkspace(ctx, workspaceID)
	if err != nil {
		return "", err
	}
	return f.git.Diff(ctx, ws.Path, from, to)
}

func (f *Facade) Show(ctx context.Context, workspaceID, ref string) (string, error) {
	ws, err := f.resolveWorkspace(ctx, workspaceID)
	if err != nil {
		return "", err
	}
	return f.git.Show(ctx, ws.Path, ref)
}

func (f *Facade) Blame(ctx context.Context, workspaceID, file string) (string, error) {
	ws, err := f.resolveWorkspace(ctx, workspaceID)
	if err != nil {
		return "", err
	}
	return f.git.Blame(ctx, ws.Path, file)
}

func (f *Facade) StashList(ctx context.Context, workspaceID string) ([]string, error) {
	ws, err := f.resolveWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return f.git.StashList(ctx, ws.Path)
}

// --- Mutating Git operations (asynchronous, via the task manager) ---

// CreateGitTask submits a Git operation for asynchronous execution under
// the task manager, returning a handle the caller polls via GetTask.
func (f *Facade) CreateGitTask(ctx context.Context, operation, workspaceID string, params json.RawMessage, priority int) (*store.Task, error) {
	handler, ok := gitOperations[operation]
	if !ok {
		return nil, engerr.NewInvalidArgument(fmt.Sprintf("unsupported git operation %q", operation))
	}

	ws, err := f.resolveWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	workspacePath := ws.Path

	task, err := f.tasks.CreateTask(ctx, operation, params, workspacePath, priority)
	if err != nil {
		return nil, err
	}

	invalidates := mutatesTree[operation]
	grows := growsTree[operation]

	f.tasks.Submit(task.ID, func(taskCtx context.Context, progress func(int)) (json.RawMessage, error) {
		progress(10)
		result, err := handler(taskCtx, f.git, workspacePath, params)
		if err != nil {
			return nil, err
		}
		progress(90)

		if invalidates {
			f.invalidateCache(workspaceID)
		}
		if grows {
			go func() {
				if uerr := f.workspace.UpdateSize(context.Background(), workspaceID); uerr != nil {
					// best effort; size accounting catches up on the next cleanup pass
					_ = uerr
				}
			}()
		}
		return result, nil
	})

	return task, nil
}

// GetTask, GetTaskResult, ListTasks, Cancel, and the task-manager
// observation surface (§4.8) are exposed directly.

func (f *Facade) GetTask(ctx context.Context, id string) (*store.Task, error) {
	return f.tasks.GetTask(ctx, id)
}

func (f *Facade) GetTaskResult(ctx context.Context, id string) (json.RawMessage, error) {
	return f.tasks.GetTaskResult(ctx, id)
}

func (f *Facade) ListTasks(ctx context.Context, status *store.TaskStatus, limit, offset int) ([]*store.Task, error) {
	return f.tasks.ListTasks(ctx, status, limit, offset)
}

func (f *Facade) CancelTask(ctx context.Context, id string) (bool, error) {
	return f.tasks.Cancel(ctx, id)
}

func (f *Facade) GetActiveTasks(ctx context.Context) ([]*store.Task, error) {
	return f.tasks.GetActiveTasks(ctx)
}

func (f *Facade) GetQueuedTasks(ctx context.Context, limit int) ([]*store.Task, error) {
	return f.tasks.GetQueuedTasks(ctx, limit)
}

func (f *Facade) GetTaskStats(ctx context.Context) (*tasks.Stats, error) {
	return f.tasks.GetStats(ctx)
}

// GetOperationLogs returns up to limit audit log entries for a task, most
// recent first.
func (f *Facade) GetOperationLogs(ctx context.Context, taskID string, limit int) ([]*store.OperationLogEntry, error) {
	return f.store.OperationLogs(ctx, taskID, limit)
}

// DeleteTask removes a task and its operation log entries. Reports whether
// a task existed to delete.
func (f *Facade) DeleteTask(ctx context.Context, id string) (bool, error) {
	return f.store.DeleteTask(ctx, id)
}

// --- Fleet summaries (batch accessors, §4.2/§8) ---

// GetTasksBatch fetches multiple tasks in a single round trip, the way a
// fleet status summary wants to avoid one query per task.
func (f *Facade) GetTasksBatch(ctx context.Context, ids []string) ([]*store.Task, error) {
	return f.store.GetTasksBatch(ctx, ids)
}

// GetWorkspaceInfoBatch fetches summary info for multiple workspaces in a
// single round trip.
func (f *Facade) GetWorkspaceInfoBatch(ctx context.Context, ids []string) ([]*store.WorkspaceInfo, error) {
	return f.store.GetWorkspaceInfoBatch(ctx, ids)
}

// FleetSummary reports aggregate task and workspace state in one call,
// using the batch accessors so a caller polling many IDs at once pays for
// one query per table rather than one per ID.
type FleetSummary struct {
	Tasks      []*store.Task
	Workspaces []*store.WorkspaceInfo
}

// GetFleetSummary returns a combined batch snapshot of the given task and
// workspace IDs.
func (f *Facade) GetFleetSummary(ctx context.Context, taskIDs, workspaceIDs []string) (*FleetSummary, error) {
	tasks, err := f.store.GetTasksBatch(ctx, taskIDs)
	if err != nil {
		return nil, err
	}
	workspaces, err := f.store.GetWorkspaceInfoBatch(ctx, workspaceIDs)
	if err != nil {
		return nil, err
	}
	return &FleetSummary{Tasks: tasks, Workspaces: workspaces}, nil
}
