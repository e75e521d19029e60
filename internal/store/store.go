// Package store implements the engine's durable record of tasks,
// workspaces, and operation log entries on top of an embedded SQLite
// database (modernc.org/sqlite — a pure Go driver requiring no cgo).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	engerr "github.com/mcp-git/engine/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	operation TEXT NOT NULL,
	status TEXT NOT NULL,
	workspace_path TEXT,
	params TEXT NOT NULL,
	result TEXT,
	error_message TEXT,
	progress INTEGER DEFAULT 0,
	priority INTEGER DEFAULT 0,
	created_at INTEGER NOT NULL,
	started_at INTEGER,
	completed_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_status_created ON tasks(status, created_at);
CREATE INDEX IF NOT EXISTS idx_tasks_operation_status ON tasks(operation, status);
CREATE INDEX IF NOT EXISTS idx_tasks_status_priority_created
	ON tasks(status, priority DESC, created_at ASC);

CREATE TABLE IF NOT EXISTS workspaces (
	id TEXT PRIMARY KEY,
	path TEXT UNIQUE NOT NULL,
	size_bytes INTEGER DEFAULT 0,
	last_accessed_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_workspaces_last_accessed ON workspaces(last_accessed_at);
CREATE INDEX IF NOT EXISTS idx_workspaces_size_last_accessed ON workspaces(size_bytes, last_accessed_at);

CREATE TABLE IF NOT EXISTS operation_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	operation TEXT NOT NULL,
	level TEXT NOT NULL,
	message TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	FOREIGN KEY (task_id) REFERENCES tasks(id)
);

CREATE INDEX IF NOT EXISTS idx_operation_logs_task_id ON operation_logs(task_id);
CREATE INDEX IF NOT EXISTS idx_operation_logs_timestamp ON operation_logs(timestamp);
`

// Store is the SQLite-backed persistent store. Writes are serialized
// through a mutex; reads use the connection pool directly. WAL mode lets
// SQLite serve concurrent readers alongside the single writer, so this
// matches the engine's own single-writer concurrency model rather than
// working around it.
type Store struct {
	db       *sql.DB
	writeMu  sync.Mutex
}

// Open opens (creating if necessary) the SQLite database at path with WAL
// mode, foreign keys, and a busy timeout configured via the DSN.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, engerr.NewIOFailed("failed to open database", err)
	}

	s := &Store{db: db}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, engerr.NewIOFailed("failed to initialize schema", err)
	}

	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func unixSeconds(t time.Time) int64 {
	return t.Unix()
}

func fromSeconds(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func nullableSeconds(t *time.Time) any {
	if t == nil {
		return nil
	}
	return unixSeconds(*t)
}

// CreateTask inserts a new task row.
func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	params := t.Params
	if params == nil {
		params = json.RawMessage("{}")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, operation, status, workspace_path, params, result, error_message, progress, priority, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Operation, string(t.Status), t.WorkspacePath, string(params), nullableString(t.Result), t.ErrorMessage, t.Progress, t.Priority,
		unixSeconds(t.CreatedAt), nullableSeconds(t.StartedAt), nullableSeconds(t.CompletedAt),
	)
	if err != nil {
		return engerr.NewIOFailed("failed to create task", err)
	}
	return nil
}

func nullableString(raw json.RawMessage) any {
	if raw == nil {
		return nil
	}
	return string(raw)
}

// GetTask fetches a task by id, returning nil if it does not exist.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, operation, status, workspace_path, params, result, error_message, progress, priority, created_at, started_at, completed_at
		FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		t                                   Task
		status                              string
		workspacePath, result, errorMessage sql.NullString
		params                              string
		createdAt                           int64
		startedAt, completedAt              sql.NullInt64
	)

	err := row.Scan(&t.ID, &t.Operation, &status, &workspacePath, &params, &result, &errorMessage, &t.Progress, &t.Priority, &createdAt, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, engerr.NewIOFailed("failed to scan task", err)
	}

	t.Status = TaskStatus(status)
	t.WorkspacePath = workspacePath.String
	t.Params = json.RawMessage(params)
	if result.Valid {
		t.Result = json.RawMessage(result.String)
	}
	t.ErrorMessage = errorMessage.String
	t.CreatedAt = fromSeconds(createdAt)
	if startedAt.Valid {
		v := fromSeconds(startedAt.Int64)
		t.StartedAt = &v
	}
	if completedAt.Valid {
		v := fromSeconds(completedAt.Int64)
		t.CompletedAt = &v
	}

	return &t, nil
}

// UpdateTask applies a partial update to an existing task row.
func (s *Store) UpdateTask(ctx context.Context, id string, upd TaskUpdate) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sets := make([]string, 0, 6)
	args := make([]any, 0, 6)

	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.Result != nil {
		sets = append(sets, "result = ?")
		args = append(args, string(upd.Result))
	}
	if upd.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *upd.ErrorMessage)
	}
	if upd.Progress != nil {
		sets = append(sets, "progress = ?")
		args = append(args, *upd.Progress)
	}
	if upd.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, unixSeconds(*upd.StartedAt))
	}
	if upd.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, unixSeconds(*upd.CompletedAt))
	}

	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE tasks SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE id = ?"
	args = append(args, id)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return engerr.NewIOFailed("failed to update task", err)
	}
	return nil
}

// ListTasks returns tasks, optionally filtered by status, newest first.
// A limit of 0 means all matching rows.
func (s *Store) ListTasks(ctx context.Context, status *TaskStatus, limit int) ([]*Task, error) {
	limit = sqlLimit(limit)
	var rows *sql.Rows
	var err error

	if status != nil {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, operation, status, workspace_path, params, result, error_message, progress, priority, created_at, started_at, completed_at
			FROM tasks WHERE status = ? ORDER BY created_at DESC LIMIT ?`, string(*status), limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, operation, status, workspace_path, params, result, error_message, progress, priority, created_at, started_at, completed_at
			FROM tasks ORDER BY created_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, engerr.NewIOFailed("failed to list tasks", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// PendingTasks returns queued tasks ordered by admission priority (highest
// priority first, then FIFO by creation time).
func (s *Store) PendingTasks(ctx context.Context, limit int) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation, status, workspace_path, params, result, error_message, progress, priority, created_at, started_at, completed_at
		FROM tasks WHERE status = ? ORDER BY priority DESC, created_at ASC LIMIT ?`,
		string(TaskStatusQueued), limit)
	if err != nil {
		return nil, engerr.NewIOFailed("failed to list pending tasks", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CleanupExpiredTasks deletes terminal tasks whose completed_at is older
// than retention, together with their operation log entries.
func (s *Store) CleanupExpiredTasks(ctx context.Context, retention time.Duration) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cutoff := unixSeconds(time.Now().Add(-retention))
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM operation_logs WHERE task_id IN (
			SELECT id FROM tasks WHERE completed_at IS NOT NULL AND completed_at < ?
				AND status IN (?, ?, ?))`,
		cutoff, string(TaskStatusCompleted), string(TaskStatusFailed), string(TaskStatusCancelled)); err != nil {
		return 0, engerr.NewIOFailed("failed to clean up expired task logs", err)
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM tasks WHERE completed_at IS NOT NULL AND completed_at < ?
			AND status IN (?, ?, ?)`,
		cutoff, string(TaskStatusCompleted), string(TaskStatusFailed), string(TaskStatusCancelled))
	if err != nil {
		return 0, engerr.NewIOFailed("failed to clean up expired tasks", err)
	}
	return res.RowsAffected()
}

// CreateWorkspace inserts a new workspace row.
func (s *Store) CreateWorkspace(ctx context.Context, w *Workspace) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	metadata := w.Metadata
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, path, size_bytes, last_accessed_at, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.Path, w.SizeBytes, unixSeconds(w.LastAccessedAt), unixSeconds(w.CreatedAt), string(metadata))
	if err != nil {
		return engerr.NewIOFailed("failed to create workspace", err)
	}
	return nil
}

func scanWorkspace(row rowScanner) (*Workspace, error) {
	var (
		w          Workspace
		metadata   sql.NullString
		lastAccess int64
		createdAt  int64
	)
	err := row.Scan(&w.ID, &w.Path, &w.SizeBytes, &lastAccess, &createdAt, &metadata)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, engerr.NewIOFailed("failed to scan workspace", err)
	}
	w.LastAccessedAt = fromSeconds(lastAccess)
	w.CreatedAt = fromSeconds(createdAt)
	if metadata.Valid {
		w.Metadata = json.RawMessage(metadata.String)
	}
	return &w, nil
}

// GetWorkspace fetches a workspace by id.
func (s *Store) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, size_bytes, last_accessed_at, created_at, metadata FROM workspaces WHERE id = ?`, id)
	return scanWorkspace(row)
}

// GetWorkspaceByPath fetches a workspace by its filesystem path.
func (s *Store) GetWorkspaceByPath(ctx context.Context, path string) (*Workspace, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, size_bytes, last_accessed_at, created_at, metadata FROM workspaces WHERE path = ?`, path)
	return scanWorkspace(row)
}

// UpdateWorkspace applies a partial update to an existing workspace row.
func (s *Store) UpdateWorkspace(ctx context.Context, id string, upd WorkspaceUpdate) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sets := make([]string, 0, 3)
	args := make([]any, 0, 3)

	if upd.SizeBytes != nil {
		sets = append(sets, "size_bytes = ?")
		args = append(args, *upd.SizeBytes)
	}
	if upd.LastAccessedAt != nil {
		sets = append(sets, "last_accessed_at = ?")
		args = append(args, unixSeconds(*upd.LastAccessedAt))
	}
	if upd.Metadata != nil {
		sets = append(sets, "metadata = ?")
		args = append(args, string(upd.Metadata))
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE workspaces SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE id = ?"
	args = append(args, id)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return engerr.NewIOFailed("failed to update workspace", err)
	}
	return nil
}

// DeleteWorkspace removes a workspace row.
func (s *Store) DeleteWorkspace(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id = ?`, id); err != nil {
		return engerr.NewIOFailed("failed to delete workspace", err)
	}
	return nil
}

// sqlLimit maps a non-positive limit to SQLite's "no limit" sentinel (-1)
// so callers can pass 0 to mean "all rows" instead of "zero rows".
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// ListWorkspaces returns up to limit workspaces (0 means all).
func (s *Store) ListWorkspaces(ctx context.Context, limit int) ([]*Workspace, error) {
	limit = sqlLimit(limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, size_bytes, last_accessed_at, created_at, metadata FROM workspaces
		ORDER BY last_accessed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, engerr.NewIOFailed("failed to list workspaces", err)
	}
	defer rows.Close()

	var out []*Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// OldestWorkspaces returns up to limit workspaces (0 means all) ordered by
// least recently accessed first — the eviction candidate order for LRU
// cleanup.
func (s *Store) OldestWorkspaces(ctx context.Context, limit int) ([]*Workspace, error) {
	limit = sqlLimit(limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, size_bytes, last_accessed_at, created_at, metadata FROM workspaces
		ORDER BY last_accessed_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, engerr.NewIOFailed("failed to list oldest workspaces", err)
	}
	defer rows.Close()

	var out []*Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// WorkspaceTotalSize sums size_bytes across all workspaces.
func (s *Store) WorkspaceTotalSize(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT SUM(size_bytes) FROM workspaces`).Scan(&total)
	if err != nil {
		return 0, engerr.NewIOFailed("failed to sum workspace size", err)
	}
	return total.Int64, nil
}

// WorkspaceCount returns the total number of workspace rows.
func (s *Store) WorkspaceCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workspaces`).Scan(&count)
	if err != nil {
		return 0, engerr.NewIOFailed("failed to count workspaces", err)
	}
	return count, nil
}

// LogOperation appends a single operation log entry for a task.
func (s *Store) LogOperation(ctx context.Context, taskID, operation, level, message string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operation_logs (task_id, operation, level, message, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		taskID, operation, level, message, unixSeconds(time.Now().UTC()))
	if err != nil {
		return engerr.NewIOFailed("failed to append operation log", err)
	}
	return nil
}

// OperationLogs returns up to limit operation log entries for a task,
// newest first. A limit of 0 means all matching rows.
func (s *Store) OperationLogs(ctx context.Context, taskID string, limit int) ([]*OperationLogEntry, error) {
	limit = sqlLimit(limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, operation, level, message, timestamp
		FROM operation_logs WHERE task_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, engerr.NewIOFailed("failed to query operation logs", err)
	}
	defer rows.Close()

	var out []*OperationLogEntry
	for rows.Next() {
		var (
			e         OperationLogEntry
			timestamp int64
		)
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Operation, &e.Level, &e.Message, &timestamp); err != nil {
			return nil, engerr.NewIOFailed("failed to scan operation log", err)
		}
		e.Timestamp = fromSeconds(timestamp)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// DeleteTask removes a task row and cascades the delete to its owning
// operation log entries, which carry a FOREIGN KEY on task_id. Returns
// whether a row existed.
func (s *Store) DeleteTask(ctx context.Context, id string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM operation_logs WHERE task_id = ?`, id); err != nil {
		return false, engerr.NewIOFailed("failed to delete task's operation logs", err)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, engerr.NewIOFailed("failed to delete task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, engerr.NewIOFailed("failed to delete task", err)
	}
	return n > 0, nil
}

// GetTasksBatch fetches multiple tasks by id in one round trip, newest
// first, avoiding the N+1 query pattern a per-id loop would incur when the
// facade summarizes a fleet of tasks.
func (s *Store) GetTasksBatch(ctx context.Context, ids []string) ([]*Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := `SELECT id, operation, status, workspace_path, params, result, error_message, progress, priority, created_at, started_at, completed_at
		FROM tasks WHERE id IN (` + strings.Join(placeholders, ",") + `) ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, engerr.NewIOFailed("failed to batch-get tasks", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetWorkspaceInfoBatch fetches summary information for multiple
// workspaces by id in one round trip.
func (s *Store) GetWorkspaceInfoBatch(ctx context.Context, ids []string) ([]*WorkspaceInfo, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := `SELECT id, path, size_bytes, created_at, last_accessed_at
		FROM workspaces WHERE id IN (` + strings.Join(placeholders, ",") + `) ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, engerr.NewIOFailed("failed to batch-get workspace info", err)
	}
	defer rows.Close()

	var out []*WorkspaceInfo
	for rows.Next() {
		var (
			info       WorkspaceInfo
			createdAt  int64
			lastAccess int64
		)
		if err := rows.Scan(&info.ID, &info.Path, &info.SizeBytes, &createdAt, &lastAccess); err != nil {
			return nil, engerr.NewIOFailed("failed to scan workspace info", err)
		}
		info.CreatedAt = fromSeconds(createdAt)
		info.LastAccessedAt = fromSeconds(lastAccess)
		out = append(out, &info)
	}
	return out, rows.Err()
}
