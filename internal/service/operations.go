package service

import (
	"context"
	"encoding/json"

	engerr "github.com/mcp-git/engine/internal/errors"
	"github.com/mcp-git/engine/internal/giturl"
	"github.com/mcp-git/engine/internal/ports"
	"github.com/mcp-git/engine/internal/retry"
	"github.com/mcp-git/engine/internal/validation"
)

type gitOpHandler func(ctx context.Context, git ports.GitOperations, path string, params json.RawMessage) (json.RawMessage, error)

// gitOperations maps each task operation name to its handler. Network
// operations (clone/fetch/pull/push) run through the retry engine with
// the policy named in spec.md §4.3; the rest call the Git capability
// directly since a failed local mutation should not be silently retried.
var gitOperations = map[string]gitOpHandler{
	"clone":         handleClone,
	"fetch":         handleFetch,
	"pull":          handlePull,
	"push":          handlePush,
	"add":           handleAdd,
	"commit":        handleCommit,
	"checkout":      handleCheckout,
	"create_branch": handleCreateBranch,
	"delete_branch": handleDeleteBranch,
	"rename_branch": handleRenameBranch,
	"merge":         handleMerge,
	"create_tag":    handleCreateTag,
	"delete_tag":    handleDeleteTag,
	"add_remote":    handleAddRemote,
	"remove_remote": handleRemoveRemote,
	"stash":         handleStash,
	"stash_pop":     handleStashPop,
}

// mutatesTree marks operations after which cached metadata for the
// workspace must be invalidated (spec.md §4.9 step 4: commit, push, pull,
// branch, checkout).
var mutatesTree = map[string]bool{
	"commit":        true,
	"push":          true,
	"pull":          true,
	"checkout":      true,
	"create_branch": true,
	"delete_branch": true,
	"rename_branch": true,
	"merge":         true,
}

// growsTree marks operations whose workspace size should be recomputed
// asynchronously afterward (spec.md §4.9 step 5: clone in particular).
var growsTree = map[string]bool{
	"clone": true,
	"pull":  true,
	"merge": true,
}

func decodeParams[T any](params json.RawMessage) (T, error) {
	var v T
	if len(params) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(params, &v); err != nil {
		return v, engerr.NewInvalidArgument("invalid operation parameters: " + err.Error())
	}
	return v, nil
}

func marshalResult(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, engerr.NewInternalError("failed to marshal task result", err)
	}
	return raw, nil
}

func handleClone(ctx context.Context, git ports.GitOperations, path string, params json.RawMessage) (json.RawMessage, error) {
	opts, err := decodeParams[CloneOptions](params)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateRemoteURL(opts.URL); err != nil {
		return nil, err
	}
	err = retry.DoNoResult(ctx, retry.Clone(), func() error {
		return git.Clone(ctx, opts.URL, path, opts.Depth)
	})
	if err != nil {
		return nil, err
	}
	return marshalResult(map[string]string{"path": path, "repo_name": giturl.ExtractRepoName(opts.URL)})
}

func handleFetch(ctx context.Context, git ports.GitOperations, path string, params json.RawMessage) (json.RawMessage, error) {
	opts, err := decodeParams[FetchOptions](params)
	if err != nil {
		return nil, err
	}
	err = retry.DoNoResult(ctx, retry.Network(), func() error {
		return git.Fetch(ctx, path, opts.Remote)
	})
	if err != nil {
		return nil, err
	}
	return marshalResult(map[string]bool{"ok": true})
}

func handlePull(ctx context.Context, git ports.GitOperations, path string, params json.RawMessage) (json.RawMessage, error) {
	opts, err := decodeParams[PullOptions](params)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateBranchName(opts.Branch); err != nil {
		return nil, err
	}
	err = retry.DoNoResult(ctx, retry.Network(), func() error {
		return git.Pull(ctx, path, opts.Remote, opts.Branch)
	})
	if err != nil {
		return nil, err
	}
	return marshalResult(map[string]bool{"ok": true})
}

func handlePush(ctx context.Context, git ports.GitOperations, path string, params json.RawMessage) (json.RawMessage, error) {
	opts, err := decodeParams[PushOptions](params)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateBranchName(opts.Branch); err != nil {
		return nil, err
	}
	err = retry.DoNoResult(ctx, retry.Network(), func() error {
		return git.Push(ctx, path, opts.Remote, opts.Branch)
	})
	if err != nil {
		return nil, err
	}
	return marshalResult(map[string]bool{"ok": true})
}

func handleAdd(ctx context.Context, git ports.GitOperations, path string, params json.RawMessage) (json.RawMessage, error) {
	opts, err := decodeParams[AddOptions](params)
	if err != nil {
		return nil, err
	}
	if err := git.Add(ctx, path, opts.Pathspecs); err != nil {
		return nil, err
	}
	return marshalResult(map[string]bool{"ok": true})
}

func handleCommit(ctx context.Context, git ports.GitOperations, path string, params json.RawMessage) (json.RawMessage, error) {
	opts, err := decodeParams[CommitOptions](params)
	if err != nil {
		return nil, err
	}
	if opts.Message == "" {
		return nil, engerr.NewMissingParameter("message")
	}
	hash, err := git.Commit(ctx, path, opts.Message, opts.AuthorName, opts.AuthorEmail)
	if err != nil {
		return nil, err
	}
	return marshalResult(map[string]string{"hash": hash})
}

func handleCheckout(ctx context.Context, git ports.GitOperations, path string, params json.RawMessage) (json.RawMessage, error) {
	opts, err := decodeParams[CheckoutOptions](params)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateBranchName(opts.Branch); err != nil {
		return nil, err
	}
	if err := git.Checkout(ctx, path, opts.Branch, opts.Create); err != nil {
		return nil, err
	}
	return marshalResult(map[string]bool{"ok": true})
}

func handleCreateBranch(ctx context.Context, git ports.GitOperations, path string, params json.RawMessage) (json.RawMessage, error) {
	opts, err := decodeParams[BranchOptions](params)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateBranchName(opts.Name); err != nil {
		return nil, err
	}
	if err := git.CreateBranch(ctx, path, opts.Name, opts.StartPoint); err != nil {
		return nil, err
	}
	return marshalResult(map[string]bool{"ok": true})
}

func handleDeleteBranch(ctx context.Context, git ports.GitOperations, path string, params json.RawMessage) (json.RawMessage, error) {
	opts, err := decodeParams[BranchOptions](params)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateBranchName(opts.Name); err != nil {
		return nil, err
	}
	if err := git.DeleteBranch(ctx, path, opts.Name, opts.Force); err != nil {
		return nil, err
	}
	return marshalResult(map[string]bool{"ok": true})
}

func handleRenameBranch(ctx context.Context, git ports.GitOperations, path string, params json.RawMessage) (json.RawMessage, error) {
	opts, err := decodeParams[RenameBranchOptions](params)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateBranchName(opts.OldName); err != nil {
		return nil, err
	}
	if err := validation.ValidateBranchName(opts.NewName); err != nil {
		return nil, err
	}
	if err := git.RenameBranch(ctx, path, opts.OldName, opts.NewName); err != nil {
		return nil, err
	}
	return marshalResult(map[string]bool{"ok": true})
}

func handleMerge(ctx context.Context, git ports.GitOperations, path string, params json.RawMessage) (json.RawMessage, error) {
	opts, err := decodeParams[MergeOptions](params)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateBranchName(opts.Branch); err != nil {
		return nil, err
	}
	if err := git.Merge(ctx, path, opts.Branch); err != nil {
		return nil, err
	}
	return marshalResult(map[string]bool{"ok": true})
}

func handleCreateTag(ctx context.Context, git ports.GitOperations, path string, params json.RawMessage) (json.RawMessage, error) {
	opts, err := decodeParams[TagOptions](params)
	if err != nil {
		return nil, err
	}
	if opts.Name == "" {
		return nil, engerr.NewMissingParameter("name")
	}
	if err := git.CreateTag(ctx, path, opts.Name, opts.Message); err != nil {
		return nil, err
	}
	return marshalResult(map[string]bool{"ok": true})
}

func handleDeleteTag(ctx context.Context, git ports.GitOperations, path string, params json.RawMessage) (json.RawMessage, error) {
	opts, err := decodeParams[TagOptions](params)
	if err != nil {
		return nil, err
	}
	if opts.Name == "" {
		return nil, engerr.NewMissingParameter("name")
	}
	if err := git.DeleteTag(ctx, path, opts.Name); err != nil {
		return nil, err
	}
	return marshalResult(map[string]bool{"ok": true})
}

func handleAddRemote(ctx context.Context, git ports.GitOperations, path string, params json.RawMessage) (json.RawMessage, error) {
	opts, err := decodeParams[RemoteOptions](params)
	if err != nil {
		return nil, err
	}
	if opts.Name == "" {
		return nil, engerr.NewMissingParameter("name")
	}
	if err := validation.ValidateRemoteURL(opts.URL); err != nil {
		return nil, err
	}
	if err := git.AddRemote(ctx, path, opts.Name, opts.URL); err != nil {
		return nil, err
	}
	return marshalResult(map[string]bool{"ok": true})
}

func handleRemoveRemote(ctx context.Context, git ports.GitOperations, path string, params json.RawMessage) (json.RawMessage, error) {
	opts, err := decodeParams[RemoteOptions](params)
	if err != nil {
		return nil, err
	}
	if opts.Name == "" {
		return nil, engerr.NewMissingParameter("name")
	}
	if err := git.RemoveRemote(ctx, path, opts.Name); err != nil {
		return nil, err
	}
	return marshalResult(map[string]bool{"ok": true})
}

func handleStash(ctx context.Context, git ports.GitOperations, path string, params json.RawMessage) (json.RawMessage, error) {
	opts, err := decodeParams[StashOptions](params)
	if err != nil {
		return nil, err
	}
	if err := git.Stash(ctx, path, opts.Message); err != nil {
		return nil, err
	}
	return marshalResult(map[string]bool{"ok": true})
}

func handleStashPop(ctx context.Context, git ports.GitOperations, path string, _ json.RawMessage) (json.RawMessage, error) {
	if err := git.StashPop(ctx, path); err != nil {
		return nil, err
	}
	return marshalResult(map[string]bool{"ok": true})
}
