package store

import (
	"encoding/json"
	"time"
)

// TaskStatus is the task state machine's set of states.
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether s is a state the task manager never
// transitions out of.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Task is the persisted record of a unit of work submitted to the task
// manager.
type Task struct {
	ID            string
	Operation     string
	Status        TaskStatus
	WorkspacePath string
	Params        json.RawMessage
	Result        json.RawMessage
	ErrorMessage  string
	Progress      int
	Priority      int
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// Workspace is the persisted record of an allocated workspace directory.
type Workspace struct {
	ID             string
	Path           string
	SizeBytes      int64
	LastAccessedAt time.Time
	CreatedAt      time.Time
	Metadata       json.RawMessage
}

// OperationLogEntry records a single task lifecycle or progress event for
// auditing and diagnostics.
type OperationLogEntry struct {
	ID        int64
	TaskID    string
	Operation string
	Level     string
	Message   string
	Timestamp time.Time
}

// WorkspaceInfo is the summary projection returned by
// Store.GetWorkspaceInfoBatch — the same fields the original's
// get_workspace_info_batch dict carries, avoiding a full Workspace fetch
// (metadata included) when only fleet-summary fields are needed.
type WorkspaceInfo struct {
	ID             string
	Path           string
	SizeBytes      int64
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// TaskUpdate is a partial update to a Task row; only non-nil fields are
// written, matching the store's whitelisted-column update methods.
type TaskUpdate struct {
	Status       *TaskStatus
	Result       json.RawMessage
	ErrorMessage *string
	Progress     *int
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// WorkspaceUpdate is a partial update to a Workspace row.
type WorkspaceUpdate struct {
	SizeBytes      *int64
	LastAccessedAt *time.Time
	Metadata       json.RawMessage
}
