package gitx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	engerr "github.com/mcp-git/engine/internal/errors"
	"github.com/mcp-git/engine/internal/ports"
	"github.com/mcp-git/engine/internal/validation"
	"github.com/mcp-git/engine/internal/vault"
)

// NativeEngine implements ports.GitOperations primarily on top of go-git.
// Operations go-git models awkwardly or not at all (branch rename, merge,
// diff/show rendering, blame, stash) fall through to an embedded
// ShellEngine — the same escape-hatch shape the teacher repo uses, kept
// in one struct rather than split across two unrelated types because the
// fallback is an implementation detail of the native engine, not a
// separate backend a caller chooses between.
type NativeEngine struct {
	shell  *ShellEngine
	vault  *vault.Vault
}

// NewNativeEngine constructs a NativeEngine. vault may be nil, in which
// case operations against authenticated remotes will fail with
// KindAuthenticationFail.
func NewNativeEngine(v *vault.Vault) *NativeEngine {
	return &NativeEngine{shell: NewShellEngine("git"), vault: v}
}

func (e *NativeEngine) authMethod() transport.AuthMethod {
	if e.vault == nil {
		return nil
	}
	cred := e.vault.Get(false)
	if cred == nil {
		return nil
	}
	switch cred.AuthType {
	case vault.AuthTypeToken:
		return &http.BasicAuth{Username: cred.EffectiveUsername(), Password: cred.Token()}
	case vault.AuthTypeUsernamePassword:
		return &http.BasicAuth{Username: cred.EffectiveUsername(), Password: cred.Password()}
	default:
		return nil
	}
}

func (e *NativeEngine) Clone(ctx context.Context, url, path string, depth int) error {
	if err := validation.ValidateRemoteURL(url); err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, defaultNetworkTimeout)
	defer cancel()

	opts := &git.CloneOptions{URL: url, Auth: e.authMethod()}
	if depth > 0 {
		opts.Depth = depth
	}

	_, err := git.PlainCloneContext(ctx, path, false, opts)
	if err != nil {
		return classifyGitError("clone", err)
	}
	return nil
}

func (e *NativeEngine) Init(ctx context.Context, path string, bare bool) error {
	_, err := git.PlainInit(path, bare)
	if err != nil {
		return classifyGitError("init", err)
	}
	return nil
}

func (e *NativeEngine) Status(ctx context.Context, path string) (bool, int, int, string, error) {
	return e.shell.Status(ctx, path)
}

func (e *NativeEngine) Fetch(ctx context.Context, path, remote string) error {
	if remote == "" {
		remote = "origin"
	}
	repo, err := git.PlainOpen(path)
	if err != nil {
		return classifyGitError("fetch", err)
	}

	ctx, cancel := withTimeout(ctx, defaultNetworkTimeout)
	defer cancel()

	err = repo.FetchContext(ctx, &git.FetchOptions{RemoteName: remote, Auth: e.authMethod()})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return classifyGitError("fetch", err)
	}
	return nil
}

func (e *NativeEngine) Pull(ctx context.Context, path, remote, branch string) error {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return classifyGitError("pull", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return classifyGitError("pull", err)
	}

	ctx, cancel := withTimeout(ctx, defaultNetworkTimeout)
	defer cancel()

	opts := &git.PullOptions{Auth: e.authMethod()}
	if remote != "" {
		opts.RemoteName = remote
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
	}

	err = wt.PullContext(ctx, opts)
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return classifyGitError("pull", err)
	}
	return nil
}

func (e *NativeEngine) Push(ctx context.Context, path, remote, branch string) error {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return classifyGitError("push", err)
	}

	ctx, cancel := withTimeout(ctx, defaultNetworkTimeout)
	defer cancel()

	opts := &git.PushOptions{Auth: e.authMethod()}
	if remote != "" {
		opts.RemoteName = remote
	}
	if branch != "" {
		ref := plumbing.NewBranchReferenceName(branch)
		opts.RefSpecs = []config.RefSpec{config.RefSpec(fmt.Sprintf("%s:%s", ref, ref))}
	}

	err = repo.PushContext(ctx, opts)
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return classifyGitError("push", err)
	}
	return nil
}

func (e *NativeEngine) Add(ctx context.Context, path string, pathspecs []string) error {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return classifyGitError("add", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return classifyGitError("add", err)
	}

	if len(pathspecs) == 0 {
		_, err = wt.Add(".")
		if err != nil {
			return classifyGitError("add", err)
		}
		return nil
	}

	for _, p := range pathspecs {
		if _, err := wt.Add(p); err != nil {
			return classifyGitError("add", err)
		}
	}
	return nil
}

func (e *NativeEngine) Commit(ctx context.Context, path, message, authorName, authorEmail string) (string, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return "", classifyGitError("commit", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", classifyGitError("commit", err)
	}

	opts := &git.CommitOptions{}
	if authorName != "" {
		opts.Author = &object.Signature{Name: authorName, Email: authorEmail, When: time.Now()}
	}

	hash, err := wt.Commit(message, opts)
	if err != nil {
		return "", classifyGitError("commit", err)
	}
	return hash.String(), nil
}

func (e *NativeEngine) Checkout(ctx context.Context, path, branch string, create bool) error {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return classifyGitError("checkout", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return classifyGitError("checkout", err)
	}

	err = wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: create,
	})
	if err != nil {
		return classifyGitError("checkout", err)
	}
	return nil
}

func (e *NativeEngine) ListBranches(ctx context.Context, path string) ([]string, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, classifyGitError("branch", err)
	}
	iter, err := repo.Branches()
	if err != nil {
		return nil, classifyGitError("branch", err)
	}
	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, classifyGitError("branch", err)
	}
	return names, nil
}

func (e *NativeEngine) CreateBranch(ctx context.Context, path, name, startPoint string) error {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return classifyGitError("branch", err)
	}

	var hash plumbing.Hash
	if startPoint != "" {
		ref, err := repo.Reference(plumbing.NewBranchReferenceName(startPoint), true)
		if err != nil {
			return classifyGitError("branch", err)
		}
		hash = ref.Hash()
	} else {
		head, err := repo.Head()
		if err != nil {
			return classifyGitError("branch", err)
		}
		hash = head.Hash()
	}

	refName := plumbing.NewBranchReferenceName(name)
	ref := plumbing.NewHashReference(refName, hash)
	if err := repo.Storer.SetReference(ref); err != nil {
		return classifyGitError("branch", err)
	}
	return nil
}

func (e *NativeEngine) DeleteBranch(ctx context.Context, path, name string, force bool) error {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return classifyGitError("branch", err)
	}
	if err := repo.Storer.RemoveReference(plumbing.NewBranchReferenceName(name)); err != nil {
		return classifyGitError("branch", err)
	}
	return nil
}

func (e *NativeEngine) RenameBranch(ctx context.Context, path, oldName, newName string) error {
	return e.shell.RenameBranch(ctx, path, oldName, newName)
}

func (e *NativeEngine) Merge(ctx context.Context, path, branch string) error {
	return e.shell.Merge(ctx, path, branch)
}

func (e *NativeEngine) ListTags(ctx context.Context, path string) ([]string, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, classifyGitError("tag", err)
	}
	iter, err := repo.Tags()
	if err != nil {
		return nil, classifyGitError("tag", err)
	}
	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, classifyGitError("tag", err)
	}
	return names, nil
}

func (e *NativeEngine) CreateTag(ctx context.Context, path, name, message string) error {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return classifyGitError("tag", err)
	}
	head, err := repo.Head()
	if err != nil {
		return classifyGitError("tag", err)
	}

	var tagErr error
	if message != "" {
		_, tagErr = repo.CreateTag(name, head.Hash(), &git.CreateTagOptions{Message: message})
	} else {
		_, tagErr = repo.CreateTag(name, head.Hash(), nil)
	}
	if tagErr != nil {
		return classifyGitError("tag", tagErr)
	}
	return nil
}

func (e *NativeEngine) DeleteTag(ctx context.Context, path, name string) error {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return classifyGitError("tag", err)
	}
	if err := repo.DeleteTag(name); err != nil {
		return classifyGitError("tag", err)
	}
	return nil
}

func (e *NativeEngine) ListRemotes(ctx context.Context, path string) ([]ports.RemoteInfo, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, classifyGitError("remote", err)
	}
	remotes, err := repo.Remotes()
	if err != nil {
		return nil, classifyGitError("remote", err)
	}
	var out []ports.RemoteInfo
	for _, r := range remotes {
		cfg := r.Config()
		url := ""
		if len(cfg.URLs) > 0 {
			url = cfg.URLs[0]
		}
		out = append(out, ports.RemoteInfo{Name: cfg.Name, URL: url})
	}
	return out, nil
}

func (e *NativeEngine) AddRemote(ctx context.Context, path, name, url string) error {
	if err := validation.ValidateRemoteURL(url); err != nil {
		return err
	}
	repo, err := git.PlainOpen(path)
	if err != nil {
		return classifyGitError("remote", err)
	}
	_, err = repo.CreateRemote(&config.RemoteConfig{Name: name, URLs: []string{url}})
	if err != nil {
		return classifyGitError("remote", err)
	}
	return nil
}

func (e *NativeEngine) RemoveRemote(ctx context.Context, path, name string) error {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return classifyGitError("remote", err)
	}
	if err := repo.DeleteRemote(name); err != nil {
		return classifyGitError("remote", err)
	}
	return nil
}

func (e *NativeEngine) Log(ctx context.Context, path string, limit int) ([]ports.CommitInfo, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, classifyGitError("log", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, classifyGitError("log", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, classifyGitError("log", err)
	}

	if limit <= 0 {
		limit = 50
	}

	var commits []ports.CommitInfo
	count := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if count >= limit {
			return nil
		}
		commits = append(commits, ports.CommitInfo{
			Hash: c.Hash.String(), Author: c.Author.Name, Email: c.Author.Email,
			When: c.Author.When.Format(time.RFC3339), Message: strings.TrimSpace(c.Message),
		})
		count++
		return nil
	})
	if err != nil {
		return nil, classifyGitError("log", err)
	}
	return commits, nil
}

func (e *NativeEngine) Diff(ctx context.Context, path, from, to string) (string, error) {
	return e.shell.Diff(ctx, path, from, to)
}

func (e *NativeEngine) Show(ctx context.Context, path, ref string) (string, error) {
	return e.shell.Show(ctx, path, ref)
}

func (e *NativeEngine) Blame(ctx context.Context, path, file string) (string, error) {
	return e.shell.Blame(ctx, path, file)
}

func (e *NativeEngine) Stash(ctx context.Context, path, message string) error {
	return e.shell.Stash(ctx, path, message)
}

func (e *NativeEngine) StashList(ctx context.Context, path string) ([]string, error) {
	return e.shell.StashList(ctx, path)
}

func (e *NativeEngine) StashPop(ctx context.Context, path string) error {
	return e.shell.StashPop(ctx, path)
}

func (e *NativeEngine) RunCommand(ctx context.Context, path string, args ...string) (*ports.CommandResult, error) {
	return e.shell.RunCommand(ctx, path, args...)
}

// classifyGitError maps go-git's own sentinel errors onto the engine's
// error taxonomy; anything unrecognized falls back to a generic wrapped
// git-command-failed error.
func classifyGitError(op string, err error) error {
	switch {
	case err == transport.ErrAuthenticationRequired, err == transport.ErrAuthorizationFailed:
		return engerr.Wrap(engerr.KindAuthenticationFail, "git authentication failed", err)
	case err == transport.ErrRepositoryNotFound:
		return engerr.Wrap(engerr.KindRepoNotFound, "repository not found", err)
	case err == transport.ErrEmptyRemoteRepository:
		return engerr.Wrap(engerr.KindEmptyRepository, "remote repository is empty", err)
	case err == git.ErrBranchExists:
		return engerr.Wrap(engerr.KindBranchExists, "branch already exists", err)
	case err == git.ErrBranchNotFound:
		return engerr.Wrap(engerr.KindBranchNotFound, "branch not found", err)
	case err == git.ErrTagExists:
		return engerr.Wrap(engerr.KindTagExists, "tag already exists", err)
	case err == git.ErrTagNotFound:
		return engerr.Wrap(engerr.KindTagNotFound, "tag not found", err)
	case err == git.ErrRemoteExists:
		return engerr.Wrap(engerr.KindRemoteExists, "remote already exists", err)
	case err == git.ErrRemoteNotFound:
		return engerr.Wrap(engerr.KindRemoteNotFound, "remote not found", err)
	case err == git.ErrRepositoryNotExists:
		return engerr.Wrap(engerr.KindRepoNotFound, "repository not found", err)
	case err == git.ErrWorktreeNotClean:
		return engerr.Wrap(engerr.KindDirtyWorktree, "worktree has uncommitted changes", err)
	default:
		return engerr.WrapGitError(op, err)
	}
}

var _ ports.GitOperations = (*NativeEngine)(nil)
