// Package tasks implements the engine's task manager: bounded-concurrency
// admission, a monotone state machine, a timeout watchdog, and lifecycle
// callbacks, translated from the Python original's asyncio.Semaphore /
// asyncio.Task model into goroutines, context.Context, and
// golang.org/x/sync/semaphore.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	engerr "github.com/mcp-git/engine/internal/errors"
	"github.com/mcp-git/engine/internal/logging"
	"github.com/mcp-git/engine/internal/store"
)

// WorkFunc is the body of a submitted task. It must observe ctx.Done() at
// its suspension points and return promptly on cancellation or timeout.
// progress reports monotonically non-decreasing completion percentage.
type WorkFunc func(ctx context.Context, progress func(int)) (json.RawMessage, error)

// Config holds the task manager's tunables, all sourced from
// internal/config.
type Config struct {
	MaxConcurrentTasks     int64
	TaskTimeoutSeconds     int64
	ResultRetentionSeconds int64
	CleanupIntervalSeconds int64
}

// Callbacks are fired on state transitions. A nil callback is skipped.
// Callback errors (via recover) are logged, never propagated.
type Callbacks struct {
	OnStart    func(taskID string)
	OnComplete func(taskID string, result json.RawMessage)
	OnError    func(taskID string, err error)
}

// Stats is a snapshot of the task manager's admission state.
type Stats struct {
	ActiveTasks            int64
	MaxConcurrent          int64
	AvailableSlots         int64
	TimeoutSeconds         int64
	ResultRetentionSeconds int64
}

// Manager is the engine's task manager.
type Manager struct {
	store  *store.Store
	logger *logging.Logger
	cfg    Config
	cb     Callbacks

	sem *semaphore.Weighted

	mu       sync.Mutex
	active   map[string]context.CancelFunc // taskID -> cancel, running tasks only
	work     map[string]WorkFunc           // taskID -> work, queued but not yet admitted
	admitCh  chan struct{}
	loopStop context.CancelFunc
	loopDone chan struct{}
}

// New constructs a task Manager.
func New(st *store.Store, logger *logging.Logger, cfg Config, cb Callbacks) *Manager {
	return &Manager{
		store:   st,
		logger:  logger,
		cfg:     cfg,
		cb:      cb,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrentTasks),
		active:  make(map[string]context.CancelFunc),
		work:    make(map[string]WorkFunc),
		admitCh: make(chan struct{}, 1),
	}
}

// Start launches the admission loop and the cleanup/watchdog loop.
func (m *Manager) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	m.loopStop = cancel
	m.loopDone = make(chan struct{})

	go func() {
		defer close(m.loopDone)
		interval := time.Duration(m.cfg.CleanupIntervalSeconds) * time.Second
		if interval <= 0 {
			interval = time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-m.admitCh:
				m.admit(loopCtx)
			case <-ticker.C:
				m.admit(loopCtx)
				m.runCleanup(loopCtx)
			}
		}
	}()
}

// Stop ends the admission and cleanup loops and waits for them to exit.
func (m *Manager) Stop() {
	if m.loopStop == nil {
		return
	}
	m.loopStop()
	<-m.loopDone
}

func (m *Manager) wakeAdmission() {
	select {
	case m.admitCh <- struct{}{}:
	default:
	}
}

// CreateTask persists a new task record in the queued state and returns
// the handle. It does not schedule execution; call Submit with the same
// id to register the work function.
func (m *Manager) CreateTask(ctx context.Context, operation string, params json.RawMessage, workspacePath string, priority int) (*store.Task, error) {
	if params == nil {
		params = json.RawMessage("{}")
	}
	t := &store.Task{
		ID:            newTaskID(),
		Operation:     operation,
		Status:        store.TaskStatusQueued,
		WorkspacePath: workspacePath,
		Params:        params,
		Priority:      priority,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	m.logOperation(ctx, t.ID, t.Operation, "info", "task created")
	return t, nil
}

// Submit registers work for a queued task and wakes the admission loop.
// Admission itself happens asynchronously once a concurrency permit is
// available, in priority-desc/created-at-asc order.
func (m *Manager) Submit(id string, work WorkFunc) {
	m.mu.Lock()
	m.work[id] = work
	m.mu.Unlock()
	m.wakeAdmission()
}

// admit pulls queued tasks in admission order and starts as many as the
// semaphore currently allows.
func (m *Manager) admit(ctx context.Context) {
	pending, err := m.store.PendingTasks(ctx, 256)
	if err != nil {
		m.logger.Error("failed to list pending tasks", "error", err)
		return
	}

	for _, t := range pending {
		m.mu.Lock()
		work, ok := m.work[t.ID]
		m.mu.Unlock()
		if !ok {
			continue // created but not yet submitted
		}
		if !m.sem.TryAcquire(1) {
			return // no free slots; remaining candidates wait for the next tick
		}

		m.mu.Lock()
		delete(m.work, t.ID)
		m.mu.Unlock()

		go m.run(t, work)
	}
}

func (m *Manager) run(t *store.Task, work WorkFunc) {
	defer m.sem.Release(1)

	timeout := time.Duration(m.cfg.TaskTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	m.mu.Lock()
	m.active[t.ID] = cancel
	m.mu.Unlock()
	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.active, t.ID)
		m.mu.Unlock()
		m.wakeAdmission()
	}()

	if err := m.startTask(ctx, t.ID); err != nil {
		m.logger.Error("failed to mark task running", "task_id", t.ID, "error", err)
		return
	}
	m.logOperation(ctx, t.ID, t.Operation, "info", "task started")
	m.fireOnStart(t.ID)

	progress := func(pct int) {
		if uerr := m.store.UpdateTask(context.Background(), t.ID, store.TaskUpdate{Progress: &pct}); uerr != nil {
			m.logger.Error("failed to persist task progress", "task_id", t.ID, "error", uerr)
		}
	}

	result, err := work(ctx, progress)

	if m.isTerminal(t.ID) {
		return // a watchdog or explicit cancel already finalized this task
	}

	switch {
	case err == nil:
		m.completeTask(t.ID, t.Operation, result)
	case ctx.Err() == context.DeadlineExceeded:
		m.failTask(t.ID, t.Operation, fmt.Sprintf("Task timed out after %d seconds", int64(timeout.Seconds())))
	case ctx.Err() == context.Canceled:
		m.markCancelled(t.ID, t.Operation)
	default:
		m.failTask(t.ID, t.Operation, err.Error())
	}
}

func (m *Manager) isTerminal(id string) bool {
	t, err := m.store.GetTask(context.Background(), id)
	if err != nil || t == nil {
		return false
	}
	return t.Status.IsTerminal()
}

func (m *Manager) startTask(ctx context.Context, id string) error {
	now := time.Now().UTC()
	running := store.TaskStatusRunning
	return m.store.UpdateTask(ctx, id, store.TaskUpdate{Status: &running, StartedAt: &now})
}

func (m *Manager) completeTask(id, operation string, result json.RawMessage) {
	completed := store.TaskStatusCompleted
	now := time.Now().UTC()
	progress := 100
	if result == nil {
		result = json.RawMessage("{}")
	}
	err := m.store.UpdateTask(context.Background(), id, store.TaskUpdate{
		Status: &completed, Result: result, Progress: &progress, CompletedAt: &now,
	})
	if err != nil {
		m.logger.Error("failed to persist task completion", "task_id", id, "error", err)
		return
	}
	m.logOperation(context.Background(), id, operation, "info", "task completed")
	m.fireOnComplete(id, result)
}

func (m *Manager) failTask(id, operation, message string) {
	failed := store.TaskStatusFailed
	now := time.Now().UTC()
	err := m.store.UpdateTask(context.Background(), id, store.TaskUpdate{
		Status: &failed, ErrorMessage: &message, CompletedAt: &now,
	})
	if err != nil {
		m.logger.Error("failed to persist task failure", "task_id", id, "error", err)
		return
	}
	m.logOperation(context.Background(), id, operation, "error", message)
	m.fireOnError(id, engerr.New(engerr.KindGitCommandFailed, message))
}

func (m *Manager) markCancelled(id, operation string) {
	cancelled := store.TaskStatusCancelled
	now := time.Now().UTC()
	if err := m.store.UpdateTask(context.Background(), id, store.TaskUpdate{Status: &cancelled, CompletedAt: &now}); err != nil {
		m.logger.Error("failed to persist task cancellation", "task_id", id, "error", err)
		return
	}
	m.logOperation(context.Background(), id, operation, "warn", "task cancelled")
}

// logOperation appends an operation log entry, logging but not
// propagating a failure: the audit trail must never block a task
// transition that has already been persisted.
func (m *Manager) logOperation(ctx context.Context, taskID, operation, level, message string) {
	if err := m.store.LogOperation(ctx, taskID, operation, level, message); err != nil {
		m.logger.Error("failed to append operation log", "task_id", taskID, "error", err)
	}
}

func (m *Manager) fireOnStart(id string) {
	if m.cb.OnStart == nil {
		return
	}
	defer m.recoverCallback("on_start", id)
	m.cb.OnStart(id)
}

func (m *Manager) fireOnComplete(id string, result json.RawMessage) {
	if m.cb.OnComplete == nil {
		return
	}
	defer m.recoverCallback("on_complete", id)
	m.cb.OnComplete(id, result)
}

func (m *Manager) fireOnError(id string, cause error) {
	if m.cb.OnError == nil {
		return
	}
	defer m.recoverCallback("on_error", id)
	m.cb.OnError(id, cause)
}

func (m *Manager) recoverCallback(name, taskID string) {
	if r := recover(); r != nil {
		m.logger.Error("task lifecycle callback panicked", "callback", name, "task_id", taskID, "recovered", fmt.Sprint(r))
	}
}

// Cancel cancels task id: if running, its context is cancelled and the
// in-flight work is expected to exit promptly; if merely queued, it is
// marked cancelled directly. Idempotent: cancelling an already-terminal
// task is a no-op returning found=true. Returns found=false only when the
// task id is unknown.
func (m *Manager) Cancel(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	cancel, running := m.active[id]
	delete(m.work, id)
	m.mu.Unlock()

	if running {
		cancel()
		return true, nil
	}

	t, err := m.store.GetTask(ctx, id)
	if err != nil {
		return false, err
	}
	if t == nil {
		return false, nil
	}
	if t.Status.IsTerminal() {
		return true, nil
	}

	cancelled := store.TaskStatusCancelled
	now := time.Now().UTC()
	if err := m.store.UpdateTask(ctx, id, store.TaskUpdate{Status: &cancelled, CompletedAt: &now}); err != nil {
		return false, err
	}
	m.logOperation(ctx, id, t.Operation, "warn", "task cancelled")
	return true, nil
}

// GetTask returns a task by id.
func (m *Manager) GetTask(ctx context.Context, id string) (*store.Task, error) {
	return m.store.GetTask(ctx, id)
}

// GetTaskResult returns the stored result payload of a completed task.
func (m *Manager) GetTaskResult(ctx context.Context, id string) (json.RawMessage, error) {
	t, err := m.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, engerr.NewTaskNotFound(id)
	}
	return t.Result, nil
}

// ListTasks returns tasks optionally filtered by status.
func (m *Manager) ListTasks(ctx context.Context, status *store.TaskStatus, limit, offset int) ([]*store.Task, error) {
	all, err := m.store.ListTasks(ctx, status, limit+offset)
	if err != nil {
		return nil, err
	}
	if offset >= len(all) {
		return nil, nil
	}
	return all[offset:], nil
}

// GetActiveTasks returns tasks currently in the running state.
func (m *Manager) GetActiveTasks(ctx context.Context) ([]*store.Task, error) {
	running := store.TaskStatusRunning
	return m.store.ListTasks(ctx, &running, 0)
}

// GetQueuedTasks returns up to limit queued tasks in admission order.
func (m *Manager) GetQueuedTasks(ctx context.Context, limit int) ([]*store.Task, error) {
	return m.store.PendingTasks(ctx, limit)
}

// GetStats reports the task manager's current admission state.
func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	active, err := m.GetActiveTasks(ctx)
	if err != nil {
		return nil, err
	}
	activeCount := int64(len(active))
	return &Stats{
		ActiveTasks:            activeCount,
		MaxConcurrent:          m.cfg.MaxConcurrentTasks,
		AvailableSlots:         m.cfg.MaxConcurrentTasks - activeCount,
		TimeoutSeconds:         m.cfg.TaskTimeoutSeconds,
		ResultRetentionSeconds: m.cfg.ResultRetentionSeconds,
	}, nil
}

func (m *Manager) runCleanup(ctx context.Context) {
	retention := time.Duration(m.cfg.ResultRetentionSeconds) * time.Second
	if retention > 0 {
		if n, err := m.store.CleanupExpiredTasks(ctx, retention); err != nil {
			m.logger.Error("failed to clean up expired tasks", "error", err)
		} else if n > 0 {
			m.logger.Info("cleaned up expired task records", "count", n)
		}
	}
	m.runWatchdog(ctx)
}

// runWatchdog force-fails any running task whose deadline has passed but
// whose goroutine has not yet observed ctx.Done() and finalized it — the
// safety net for work functions that are slow to notice cancellation.
func (m *Manager) runWatchdog(ctx context.Context) {
	running := store.TaskStatusRunning
	tasks, err := m.store.ListTasks(ctx, &running, 0)
	if err != nil {
		m.logger.Error("watchdog failed to list running tasks", "error", err)
		return
	}

	timeout := time.Duration(m.cfg.TaskTimeoutSeconds) * time.Second
	if timeout <= 0 {
		return
	}

	for _, t := range tasks {
		if t.StartedAt == nil || time.Since(*t.StartedAt) < timeout {
			continue
		}

		m.mu.Lock()
		if cancel, ok := m.active[t.ID]; ok {
			cancel()
		}
		m.mu.Unlock()

		m.failTask(t.ID, t.Operation, fmt.Sprintf("Task timed out after %d seconds", int64(timeout.Seconds())))
	}
}

func newTaskID() string {
	return uuid.NewString()
}
