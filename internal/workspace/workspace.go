// Package workspace implements allocation, access tracking, and
// size/retention-based eviction of workspace directories, backed by
// internal/store instead of the teacher's YAML-file bookkeeping.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	engerr "github.com/mcp-git/engine/internal/errors"
	"github.com/mcp-git/engine/internal/logging"
	"github.com/mcp-git/engine/internal/store"
	"github.com/mcp-git/engine/internal/validation"
)

// CleanupStrategy selects which workspaces cleanup_by_size evicts first.
type CleanupStrategy string

const (
	StrategyLRU  CleanupStrategy = "lru"
	StrategyFIFO CleanupStrategy = "fifo"
)

const (
	minPerWorkspaceBytes = 1 << 30 // 1 GiB floor
	cleanupTargetPercent = 0.8
	perWorkspaceOverage  = 1.2 // warn/evict threshold: 120% of per-workspace cap
	cleanupInterval      = 5 * time.Minute
)

// Config holds the workspace manager's tunables, all sourced from
// internal/config.
type Config struct {
	RootPath             string
	MaxSizeBytes         int64
	RetentionSeconds     int64
	CleanupStrategy      CleanupStrategy
	MaxWorkspaces        int   // 0 = unbounded
	MaxPerWorkspaceBytes int64 // 0 = derive from MaxSizeBytes
}

func (c Config) perWorkspaceCap() int64 {
	if c.MaxPerWorkspaceBytes > 0 {
		return c.MaxPerWorkspaceBytes
	}
	derived := c.MaxSizeBytes / 10
	if derived < minPerWorkspaceBytes {
		return minPerWorkspaceBytes
	}
	return derived
}

// Usage summarizes aggregate workspace disk consumption against quota.
type Usage struct {
	Total          int
	TotalSizeBytes int64
	MaxSizeBytes   int64
	UsagePercent   float64
}

// DiskSpaceInfo summarizes the host filesystem backing RootPath.
type DiskSpaceInfo struct {
	Total        uint64
	Used         uint64
	Free         uint64
	UsagePercent float64
}

// Manager owns workspace lifecycle: allocation, access tracking, size
// accounting, and retention/quota-driven eviction.
type Manager struct {
	store  *store.Store
	logger *logging.Logger
	cfg    Config

	mu       sync.Mutex
	cancel   context.CancelFunc
	stopped  chan struct{}
}

// New constructs a workspace Manager. RootPath is created if missing.
func New(st *store.Store, logger *logging.Logger, cfg Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.RootPath, 0o755); err != nil {
		return nil, engerr.NewIOFailed("failed to create workspace root", err)
	}
	return &Manager{store: st, logger: logger, cfg: cfg}, nil
}

// Start launches the background cleanup loop, mirroring the Python
// implementation's periodic _cleanup_loop. Call Stop to end it.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.stopped = make(chan struct{})

	go func() {
		defer close(m.stopped)
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				m.runCleanup(loopCtx)
			}
		}
	}()
}

// Stop ends the background cleanup loop and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	stopped := m.stopped
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (m *Manager) runCleanup(ctx context.Context) {
	if count, freed, err := m.CleanupExpired(ctx); err != nil {
		m.logger.Error("workspace retention cleanup failed", "error", err)
	} else if count > 0 {
		m.logger.Info("released expired workspaces", "count", count, "freed_bytes", freed)
	}

	if count, freed, err := m.CleanupBySize(ctx); err != nil {
		m.logger.Error("workspace size cleanup failed", "error", err)
	} else if count > 0 {
		m.logger.Info("released workspaces to satisfy size quota", "count", count, "freed_bytes", freed)
	}
}

// Allocate creates a new workspace directory under RootPath and persists
// its record.
func (m *Manager) Allocate(ctx context.Context) (*store.Workspace, error) {
	if m.cfg.MaxWorkspaces > 0 {
		count, err := m.store.WorkspaceCount(ctx)
		if err != nil {
			return nil, err
		}
		if count >= m.cfg.MaxWorkspaces {
			return nil, engerr.NewResourceExhausted("workspace slots")
		}
	}

	const maxCollisionRetries = 5
	var lastErr error
	for attempt := 0; attempt < maxCollisionRetries; attempt++ {
		id := uuid.NewString()
		path := filepath.Join(m.cfg.RootPath, id)
		if err := os.Mkdir(path, 0o755); err != nil {
			lastErr = err
			continue
		}

		now := time.Now().UTC()
		ws := &store.Workspace{
			ID:             id,
			Path:           path,
			SizeBytes:      0,
			LastAccessedAt: now,
			CreatedAt:      now,
			Metadata:       json.RawMessage("{}"),
		}
		if err := m.store.CreateWorkspace(ctx, ws); err != nil {
			os.RemoveAll(path)
			return nil, err
		}
		return ws, nil
	}
	return nil, engerr.NewIOFailed("failed to allocate workspace directory after retries", lastErr)
}

// Get looks up a workspace by id.
func (m *Manager) Get(ctx context.Context, id string) (*store.Workspace, error) {
	return m.store.GetWorkspace(ctx, id)
}

// GetByPath looks up a workspace by its filesystem path.
func (m *Manager) GetByPath(ctx context.Context, path string) (*store.Workspace, error) {
	return m.store.GetWorkspaceByPath(ctx, path)
}

// Touch updates last_accessed_at to now.
func (m *Manager) Touch(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return m.store.UpdateWorkspace(ctx, id, store.WorkspaceUpdate{LastAccessedAt: &now})
}

// UpdateSize recomputes a workspace's on-disk size off the caller's hot
// path and persists it.
func (m *Manager) UpdateSize(ctx context.Context, id string) error {
	ws, err := m.store.GetWorkspace(ctx, id)
	if err != nil {
		return err
	}
	if ws == nil {
		return engerr.NewWorkspaceNotFound(id)
	}

	size, err := dirSize(ws.Path)
	if err != nil {
		return engerr.NewIOFailed("failed to compute workspace size", err)
	}
	return m.store.UpdateWorkspace(ctx, id, store.WorkspaceUpdate{SizeBytes: &size})
}

// dirSize walks path, summing regular file sizes; unreadable subtrees are
// skipped rather than failing the whole walk.
func dirSize(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// Release removes the workspace directory best-effort, then its record.
// Returns whether a record existed.
func (m *Manager) Release(ctx context.Context, id string) (bool, error) {
	ws, err := m.store.GetWorkspace(ctx, id)
	if err != nil {
		return false, err
	}
	if ws == nil {
		return false, nil
	}

	if err := os.RemoveAll(ws.Path); err != nil {
		m.logger.Warn("failed to remove workspace directory", "path", ws.Path, "error", err)
	}
	if err := m.store.DeleteWorkspace(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// List returns up to limit workspaces.
func (m *Manager) List(ctx context.Context, limit int) ([]*store.Workspace, error) {
	return m.store.ListWorkspaces(ctx, limit)
}

// GetUsage reports aggregate workspace size against the configured quota.
func (m *Manager) GetUsage(ctx context.Context) (*Usage, error) {
	total, err := m.store.WorkspaceTotalSize(ctx)
	if err != nil {
		return nil, err
	}
	count, err := m.store.WorkspaceCount(ctx)
	if err != nil {
		return nil, err
	}

	u := &Usage{Total: count, TotalSizeBytes: total, MaxSizeBytes: m.cfg.MaxSizeBytes}
	if m.cfg.MaxSizeBytes > 0 {
		u.UsagePercent = float64(total) / float64(m.cfg.MaxSizeBytes) * 100
	}
	return u, nil
}

// GetDiskSpaceInfo reports the host filesystem's capacity for RootPath.
func (m *Manager) GetDiskSpaceInfo() (*DiskSpaceInfo, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(m.cfg.RootPath, &stat); err != nil {
		return nil, engerr.NewIOFailed("failed to stat workspace filesystem", err)
	}

	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	used := total - free

	info := &DiskSpaceInfo{Total: total, Used: used, Free: free}
	if total > 0 {
		info.UsagePercent = float64(used) / float64(total) * 100
	}
	return info, nil
}

// ValidateWorkspacePath reports whether p resolves strictly inside
// RootPath.
func (m *Manager) ValidateWorkspacePath(p string) bool {
	resolved, err := validation.SanitizePath(p, m.cfg.RootPath)
	return err == nil && resolved != filepath.Clean(m.cfg.RootPath)
}

// CleanupExpired releases every workspace idle longer than
// RetentionSeconds, reporting how many were released and bytes freed.
func (m *Manager) CleanupExpired(ctx context.Context) (int, int64, error) {
	if m.cfg.RetentionSeconds <= 0 {
		return 0, 0, nil
	}

	cutoff := time.Now().UTC().Add(-time.Duration(m.cfg.RetentionSeconds) * time.Second)
	workspaces, err := m.store.OldestWorkspaces(ctx, 0)
	if err != nil {
		return 0, 0, err
	}

	var count int
	var freed int64
	for _, ws := range workspaces {
		if ws.LastAccessedAt.After(cutoff) {
			break // ordered oldest-first; nothing further qualifies
		}
		ok, err := m.Release(ctx, ws.ID)
		if err != nil {
			return count, freed, err
		}
		if ok {
			count++
			freed += ws.SizeBytes
		}
	}
	return count, freed, nil
}

// CleanupBySize releases oldest workspaces (by the configured strategy)
// until aggregate usage drops to 80% of MaxSizeBytes.
func (m *Manager) CleanupBySize(ctx context.Context) (int, int64, error) {
	if m.cfg.MaxSizeBytes <= 0 {
		return 0, 0, nil
	}

	total, err := m.store.WorkspaceTotalSize(ctx)
	if err != nil {
		return 0, 0, err
	}
	if total <= m.cfg.MaxSizeBytes {
		return 0, 0, nil
	}

	target := int64(float64(m.cfg.MaxSizeBytes) * cleanupTargetPercent)
	candidates, err := m.store.OldestWorkspaces(ctx, 0)
	if err != nil {
		return 0, 0, err
	}
	if m.cfg.CleanupStrategy == StrategyFIFO {
		candidates = sortByCreatedAt(candidates)
	}

	var count int
	var freed int64
	for _, ws := range candidates {
		if total <= target {
			break
		}
		ok, err := m.Release(ctx, ws.ID)
		if err != nil {
			return count, freed, err
		}
		if ok {
			count++
			freed += ws.SizeBytes
			total -= ws.SizeBytes
		}
	}
	return count, freed, nil
}

func sortByCreatedAt(workspaces []*store.Workspace) []*store.Workspace {
	out := make([]*store.Workspace, len(workspaces))
	copy(out, workspaces)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.Before(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// EnforceWorkspaceSizeLimit releases a workspace that exceeds its
// per-workspace cap by more than 20%, logging a warning between 100% and
// 120% of the cap.
func (m *Manager) EnforceWorkspaceSizeLimit(ctx context.Context, id string) error {
	ws, err := m.store.GetWorkspace(ctx, id)
	if err != nil {
		return err
	}
	if ws == nil {
		return engerr.NewWorkspaceNotFound(id)
	}

	limit := m.cfg.perWorkspaceCap()
	if limit <= 0 || ws.SizeBytes <= limit {
		return nil
	}

	ratio := float64(ws.SizeBytes) / float64(limit)
	if ratio > perWorkspaceOverage {
		_, err := m.Release(ctx, id)
		return err
	}

	m.logger.Warn("workspace approaching per-workspace size cap",
		"workspace_id", id, "size_bytes", ws.SizeBytes, "cap_bytes", limit,
		"usage_percent", fmt.Sprintf("%.1f", ratio*100))
	return nil
}
