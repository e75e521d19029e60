// Package ports defines the swappable interfaces the rest of the engine
// depends on, following the hexagonal style the teacher repo uses: a
// single interface, multiple interchangeable implementations chosen at
// construction time.
package ports

import "context"

// CommandResult holds the output and exit code from a shelled-out git
// command, used by the escape-hatch implementation for operations go-git
// cannot perform natively.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommitInfo describes a single commit as returned by Log/Show.
type CommitInfo struct {
	Hash    string
	Author  string
	Email   string
	When    string
	Message string
}

// RemoteInfo describes a configured remote.
type RemoteInfo struct {
	Name string
	URL  string
}

// GitOperations is the fixed method-set contract for Git capability
// implementations. Two implementations satisfy it: a native go-git engine
// for everything go-git supports well, and a shell-out engine used as an
// escape hatch for operations go-git cannot perform.
type GitOperations interface {
	Clone(ctx context.Context, url, path string, depth int) error
	Init(ctx context.Context, path string, bare bool) error
	Status(ctx context.Context, path string) (isDirty bool, unpushed, behind int, branch string, err error)
	Fetch(ctx context.Context, path, remote string) error
	Pull(ctx context.Context, path, remote, branch string) error
	Push(ctx context.Context, path, remote, branch string) error
	Add(ctx context.Context, path string, pathspecs []string) error
	Commit(ctx context.Context, path, message, authorName, authorEmail string) (string, error)
	Checkout(ctx context.Context, path, branch string, create bool) error

	ListBranches(ctx context.Context, path string) ([]string, error)
	CreateBranch(ctx context.Context, path, name, startPoint string) error
	DeleteBranch(ctx context.Context, path, name string, force bool) error
	RenameBranch(ctx context.Context, path, oldName, newName string) error
	Merge(ctx context.Context, path, branch string) error

	ListTags(ctx context.Context, path string) ([]string, error)
	CreateTag(ctx context.Context, path, name, message string) error
	DeleteTag(ctx context.Context, path, name string) error

	ListRemotes(ctx context.Context, path string) ([]RemoteInfo, error)
	AddRemote(ctx context.Context, path, name, url string) error
	RemoveRemote(ctx context.Context, path, name string) error

	Log(ctx context.Context, path string, limit int) ([]CommitInfo, error)
	Diff(ctx context.Context, path, from, to string) (string, error)
	Show(ctx context.Context, path, ref string) (string, error)
	Blame(ctx context.Context, path, file string) (string, error)

	Stash(ctx context.Context, path, message string) error
	StashList(ctx context.Context, path string) ([]string, error)
	StashPop(ctx context.Context, path string) error

	RunCommand(ctx context.Context, path string, args ...string) (*CommandResult, error)
}
