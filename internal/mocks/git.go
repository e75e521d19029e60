// Package mocks provides function-field mock implementations of the
// engine's ports interfaces for use in tests.
package mocks

import (
	"context"

	"github.com/mcp-git/engine/internal/ports"
)

var _ ports.GitOperations = (*MockGitOperations)(nil)

// MockGitOperations is a mock ports.GitOperations: each method calls the
// matching *Func field if set, otherwise returns a zero-value default.
type MockGitOperations struct {
	CloneFunc        func(ctx context.Context, url, path string, depth int) error
	InitFunc         func(ctx context.Context, path string, bare bool) error
	StatusFunc       func(ctx context.Context, path string) (bool, int, int, string, error)
	FetchFunc        func(ctx context.Context, path, remote string) error
	PullFunc         func(ctx context.Context, path, remote, branch string) error
	PushFunc         func(ctx context.Context, path, remote, branch string) error
	AddFunc          func(ctx context.Context, path string, pathspecs []string) error
	CommitFunc       func(ctx context.Context, path, message, authorName, authorEmail string) (string, error)
	CheckoutFunc     func(ctx context.Context, path, branch string, create bool) error
	ListBranchesFunc func(ctx context.Context, path string) ([]string, error)
	CreateBranchFunc func(ctx context.Context, path, name, startPoint string) error
	DeleteBranchFunc func(ctx context.Context, path, name string, force bool) error
	RenameBranchFunc func(ctx context.Context, path, oldName, newName string) error
	MergeFunc        func(ctx context.Context, path, branch string) error
	ListTagsFunc     func(ctx context.Context, path string) ([]string, error)
	CreateTagFunc    func(ctx context.Context, path, name, message string) error
	DeleteTagFunc    func(ctx context.Context, path, name string) error
	ListRemotesFunc  func(ctx context.Context, path string) ([]ports.RemoteInfo, error)
	AddRemoteFunc    func(ctx context.Context, path, name, url string) error
	RemoveRemoteFunc func(ctx context.Context, path, name string) error
	LogFunc          func(ctx context.Context, path string, limit int) ([]ports.CommitInfo, error)
	DiffFunc         func(ctx context.Context, path, from, to string) (string, error)
	ShowFunc         func(ctx context.Context, path, ref string) (string, error)
	BlameFunc        func(ctx context.Context, path, file string) (string, error)
	StashFunc        func(ctx context.Context, path, message string) error
	StashListFunc    func(ctx context.Context, path string) ([]string, error)
	StashPopFunc     func(ctx context.Context, path string) error
	RunCommandFunc   func(ctx context.Context, path string, args ...string) (*ports.CommandResult, error)
}

// NewMockGitOperations returns a MockGitOperations with no function fields
// set; every method returns its zero-value default until a field is
// assigned.
func NewMockGitOperations() *MockGitOperations {
	return &MockGitOperations{}
}

func (m *MockGitOperations) Clone(ctx context.Context, url, path string, depth int) error {
	if m.CloneFunc != nil {
		return m.CloneFunc(ctx, url, path, depth)
	}
	return nil
}

func (m *MockGitOperations) Init(ctx context.Context, path string, bare bool) error {
	if m.InitFunc != nil {
		return m.InitFunc(ctx, path, bare)
	}
	return nil
}

func (m *MockGitOperations) Status(ctx context.Context, path string) (bool, int, int, string, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, path)
	}
	return false, 0, 0, "main", nil
}

func (m *MockGitOperations) Fetch(ctx context.Context, path, remote string) error {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, path, remote)
	}
	return nil
}

func (m *MockGitOperations) Pull(ctx context.Context, path, remote, branch string) error {
	if m.PullFunc != nil {
		return m.PullFunc(ctx, path, remote, branch)
	}
	return nil
}

func (m *MockGitOperations) Push(ctx context.Context, path, remote, branch string) error {
	if m.PushFunc != nil {
		return m.PushFunc(ctx, path, remote, branch)
	}
	return nil
}

func (m *MockGitOperations) Add(ctx context.Context, path string, pathspecs []string) error {
	if m.AddFunc != nil {
		return m.AddFunc(ctx, path, pathspecs)
	}
	return nil
}

func (m *MockGitOperations) Commit(ctx context.Context, path, message, authorName, authorEmail string) (string, error) {
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx, path, message, authorName, authorEmail)
	}
	return "", nil
}

func (m *MockGitOperations) Checkout(ctx context.Context, path, branch string, create bool) error {
	if m.CheckoutFunc != nil {
		return m.CheckoutFunc(ctx, path, branch, create)
	}
	return nil
}

func (m *MockGitOperations) ListBranches(ctx context.Context, path string) ([]string, error) {
	if m.ListBranchesFunc != nil {
		return m.ListBranchesFunc(ctx, path)
	}
	return nil, nil
}

func (m *MockGitOperations) CreateBranch(ctx context.Context, path, name, startPoint string) error {
	if m.CreateBranchFunc != nil {
		return m.CreateBranchFunc(ctx, path, name, startPoint)
	}
	return nil
}

func (m *MockGitOperations) DeleteBranch(ctx context.Context, path, name string, force bool) error {
	if m.DeleteBranchFunc != nil {
		return m.DeleteBranchFunc(ctx, path, name, force)
	}
	return nil
}

func (m *MockGitOperations) RenameBranch(ctx context.Context, path, oldName, newName string) error {
	if m.RenameBranchFunc != nil {
		return m.RenameBranchFunc(ctx, path, oldName, newName)
	}
	return nil
}

func (m *MockGitOperations) Merge(ctx context.Context, path, branch string) error {
	if m.MergeFunc != nil {
		return m.MergeFunc(ctx, path, branch)
	}
	return nil
}

func (m *MockGitOperations) ListTags(ctx context.Context, path string) ([]string, error) {
	if m.ListTagsFunc != nil {
		return m.ListTagsFunc(ctx, path)
	}
	return nil, nil
}

func (m *MockGitOperations) CreateTag(ctx context.Context, path, name, message string) error {
	if m.CreateTagFunc != nil {
		return m.CreateTagFunc(ctx, path, name, message)
	}
	return nil
}

func (m *MockGitOperations) DeleteTag(ctx context.Context, path, name string) error {
	if m.DeleteTagFunc != nil {
		return m.DeleteTagFunc(ctx, path, name)
	}
	return nil
}

func (m *MockGitOperations) ListRemotes(ctx context.Context, path string) ([]ports.RemoteInfo, error) {
	if m.ListRemotesFunc != nil {
		return m.ListRemotesFunc(ctx, path)
	}
	return nil, nil
}

func (m *MockGitOperations) AddRemote(ctx context.Context, path, name, url string) error {
	if m.AddRemoteFunc != nil {
		return m.AddRemoteFunc(ctx, path, name, url)
	}
	return nil
}

func (m *MockGitOperations) RemoveRemote(ctx context.Context, path, name string) error {
	if m.RemoveRemoteFunc != nil {
		return m.RemoveRemoteFunc(ctx, path, name)
	}
	return nil
}

func (m *MockGitOperations) Log(ctx context.Context, path string, limit int) ([]ports.CommitInfo, error) {
	if m.LogFunc != nil {
		return m.LogFunc(ctx, path, limit)
	}
	return nil, nil
}

func (m *MockGitOperations) Diff(ctx context.Context, path, from, to string) (string, error) {
	if m.DiffFunc != nil {
		return m.DiffFunc(ctx, path, from, to)
	}
	return "", nil
}

func (m *MockGitOperations) Show(ctx context.Context, path, ref string) (string, error) {
	if m.ShowFunc != nil {
		return m.ShowFunc(ctx, path, ref)
	}
	return "", nil
}

func (m *MockGitOperations) Blame(ctx context.Context, path, file string) (string, error) {
	if m.BlameFunc != nil {
		return m.BlameFunc(ctx, path, file)
	}
	return "", nil
}

func (m *MockGitOperations) Stash(ctx context.Context, path, message string) error {
	if m.StashFunc != nil {
		return m.StashFunc(ctx, path, message)
	}
	return nil
}

func (m *MockGitOperations) StashList(ctx context.Context, path string) ([]string, error) {
	if m.StashListFunc != nil {
		return m.StashListFunc(ctx, path)
	}
	return nil, nil
}

func (m *MockGitOperations) StashPop(ctx context.Context, path string) error {
	if m.StashPopFunc != nil {
		return m.StashPopFunc(ctx, path)
	}
	return nil
}

func (m *MockGitOperations) RunCommand(ctx context.Context, path string, args ...string) (*ports.CommandResult, error) {
	if m.RunCommandFunc != nil {
		return m.RunCommandFunc(ctx, path, args...)
	}
	return &ports.CommandResult{}, nil
}
