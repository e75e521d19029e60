// Package gitx implements the engine's Git capability: a native go-git
// based engine for the operations go-git supports well, and a shell-out
// engine used both as a standalone implementation and as the native
// engine's escape hatch for operations go-git cannot perform (worktree
// management aside, this engine operates on plain clones rather than
// canopy's bare-repo-plus-worktree model, so the escape hatch here covers
// branch rename, merge, stash, blame, and diff/show rendering).
package gitx

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	engerr "github.com/mcp-git/engine/internal/errors"
	"github.com/mcp-git/engine/internal/ports"
	"github.com/mcp-git/engine/internal/validation"
)

const (
	defaultNetworkTimeout = 5 * time.Minute
	defaultLocalTimeout   = 30 * time.Second
)

// ShellEngine implements ports.GitOperations entirely by shelling out to
// the system git binary. Every argument is run through the input
// sanitizer before being passed to exec.CommandContext; arguments are
// always passed as a slice of separate parameters, never assembled into a
// shell string, so the sanitizer is defense in depth rather than the
// primary guard against injection.
type ShellEngine struct {
	GitBinary string
}

// NewShellEngine constructs a ShellEngine using the given git binary (pass
// "git" to use $PATH resolution).
func NewShellEngine(gitBinary string) *ShellEngine {
	if gitBinary == "" {
		gitBinary = "git"
	}
	return &ShellEngine{GitBinary: gitBinary}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func sanitizeArgs(args []string) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		cleaned, err := validation.SanitizeInput(a)
		if err != nil {
			return nil, err
		}
		out[i] = cleaned
	}
	return out, nil
}

// run executes `git -C path <args...>` with the configured timeout,
// classifying failures into the engine's error taxonomy.
func (e *ShellEngine) run(ctx context.Context, path string, timeout time.Duration, args ...string) (*ports.CommandResult, error) {
	clean, err := sanitizeArgs(args)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	fullArgs := append([]string{"-C", path}, clean...)
	cmd := exec.CommandContext(ctx, e.GitBinary, fullArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	result := &ports.CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
	}

	if runErr != nil {
		return result, classifyShellError(clean[0], stderr.String(), runErr)
	}

	return result, nil
}

// RunCommand exposes the escape hatch for operations not otherwise
// modeled by this interface.
func (e *ShellEngine) RunCommand(ctx context.Context, path string, args ...string) (*ports.CommandResult, error) {
	return e.run(ctx, path, defaultLocalTimeout, args...)
}

func classifyShellError(subcommand, stderr string, cause error) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "authentication") || strings.Contains(lower, "could not read username"):
		return engerr.Wrap(engerr.KindAuthenticationFail, "git authentication failed", cause)
	case strings.Contains(lower, "not found") && (strings.Contains(lower, "repository") || strings.Contains(lower, "remote")):
		return engerr.Wrap(engerr.KindRepoNotFound, "repository not found", cause)
	case strings.Contains(lower, "permission denied"):
		return engerr.Wrap(engerr.KindPermissionDenied, "permission denied", cause)
	case strings.Contains(lower, "already exists"):
		return engerr.Wrap(engerr.KindBranchExists, "already exists", cause)
	case strings.Contains(lower, "conflict"):
		return engerr.Wrap(engerr.KindMergeConflict, "merge produced conflicts", cause)
	case strings.Contains(lower, "nothing to commit"):
		return engerr.Wrap(engerr.KindNothingToCommit, "nothing to commit", cause)
	case strings.Contains(lower, "connection") || strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout"):
		return engerr.Wrap(engerr.KindNetworkError, "network error during git "+subcommand, cause)
	default:
		return engerr.WrapGitError(subcommand, cause)
	}
}

func (e *ShellEngine) Clone(ctx context.Context, url, path string, depth int) error {
	if err := validation.ValidateRemoteURL(url); err != nil {
		return err
	}
	args := []string{"clone", url, path}
	if depth > 0 {
		args = []string{"clone", "--depth", strconv.Itoa(depth), url, path}
	}
	_, err := e.run(ctx, ".", defaultNetworkTimeout, args...)
	return err
}

func (e *ShellEngine) Init(ctx context.Context, path string, bare bool) error {
	args := []string{"init"}
	if bare {
		args = append(args, "--bare")
	}
	args = append(args, path)
	_, err := e.run(ctx, ".", defaultLocalTimeout, args...)
	return err
}

func (e *ShellEngine) Status(ctx context.Context, path string) (bool, int, int, string, error) {
	branchRes, err := e.run(ctx, path, defaultLocalTimeout, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return false, 0, 0, "", err
	}
	branch := strings.TrimSpace(branchRes.Stdout)

	statusRes, err := e.run(ctx, path, defaultLocalTimeout, "status", "--porcelain")
	if err != nil {
		return false, 0, 0, branch, err
	}
	dirty := strings.TrimSpace(statusRes.Stdout) != ""

	countRes, err := e.run(ctx, path, defaultLocalTimeout, "rev-list", "--left-right", "--count", "HEAD...@{upstream}")
	unpushed, behind := 0, 0
	if err == nil {
		fields := strings.Fields(countRes.Stdout)
		if len(fields) == 2 {
			unpushed, _ = strconv.Atoi(fields[0])
			behind, _ = strconv.Atoi(fields[1])
		}
	}

	return dirty, unpushed, behind, branch, nil
}

func (e *ShellEngine) Fetch(ctx context.Context, path, remote string) error {
	if remote == "" {
		remote = "origin"
	}
	_, err := e.run(ctx, path, defaultNetworkTimeout, "fetch", remote)
	return err
}

func (e *ShellEngine) Pull(ctx context.Context, path, remote, branch string) error {
	args := []string{"pull"}
	if remote != "" {
		args = append(args, remote)
	}
	if branch != "" {
		args = append(args, branch)
	}
	_, err := e.run(ctx, path, defaultNetworkTimeout, args...)
	return err
}

func (e *ShellEngine) Push(ctx context.Context, path, remote, branch string) error {
	args := []string{"push"}
	if remote != "" {
		args = append(args, remote)
	}
	if branch != "" {
		args = append(args, branch)
	}
	_, err := e.run(ctx, path, defaultNetworkTimeout, args...)
	return err
}

func (e *ShellEngine) Add(ctx context.Context, path string, pathspecs []string) error {
	args := append([]string{"add"}, pathspecs...)
	_, err := e.run(ctx, path, defaultLocalTimeout, args...)
	return err
}

func (e *ShellEngine) Commit(ctx context.Context, path, message, authorName, authorEmail string) (string, error) {
	args := []string{"commit", "-m", message}
	if authorName != "" && authorEmail != "" {
		args = append(args, "--author", authorName+" <"+authorEmail+">")
	}
	if _, err := e.run(ctx, path, defaultLocalTimeout, args...); err != nil {
		return "", err
	}
	hashRes, err := e.run(ctx, path, defaultLocalTimeout, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(hashRes.Stdout), nil
}

func (e *ShellEngine) Checkout(ctx context.Context, path, branch string, create bool) error {
	args := []string{"checkout"}
	if create {
		args = append(args, "-b")
	}
	args = append(args, branch)
	_, err := e.run(ctx, path, defaultLocalTimeout, args...)
	return err
}

func (e *ShellEngine) ListBranches(ctx context.Context, path string) ([]string, error) {
	res, err := e.run(ctx, path, defaultLocalTimeout, "branch", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	return splitLines(res.Stdout), nil
}

func (e *ShellEngine) CreateBranch(ctx context.Context, path, name, startPoint string) error {
	args := []string{"branch", name}
	if startPoint != "" {
		args = append(args, startPoint)
	}
	_, err := e.run(ctx, path, defaultLocalTimeout, args...)
	return err
}

func (e *ShellEngine) DeleteBranch(ctx context.Context, path, name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := e.run(ctx, path, defaultLocalTimeout, "branch", flag, name)
	return err
}

func (e *ShellEngine) RenameBranch(ctx context.Context, path, oldName, newName string) error {
	_, err := e.run(ctx, path, defaultLocalTimeout, "branch", "-m", oldName, newName)
	return err
}

func (e *ShellEngine) Merge(ctx context.Context, path, branch string) error {
	_, err := e.run(ctx, path, defaultLocalTimeout, "merge", branch)
	return err
}

func (e *ShellEngine) ListTags(ctx context.Context, path string) ([]string, error) {
	res, err := e.run(ctx, path, defaultLocalTimeout, "tag", "--list")
	if err != nil {
		return nil, err
	}
	return splitLines(res.Stdout), nil
}

func (e *ShellEngine) CreateTag(ctx context.Context, path, name, message string) error {
	args := []string{"tag"}
	if message != "" {
		args = append(args, "-a", name, "-m", message)
	} else {
		args = append(args, name)
	}
	_, err := e.run(ctx, path, defaultLocalTimeout, args...)
	return err
}

func (e *ShellEngine) DeleteTag(ctx context.Context, path, name string) error {
	_, err := e.run(ctx, path, defaultLocalTimeout, "tag", "-d", name)
	return err
}

func (e *ShellEngine) ListRemotes(ctx context.Context, path string) ([]ports.RemoteInfo, error) {
	res, err := e.run(ctx, path, defaultLocalTimeout, "remote", "-v")
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []ports.RemoteInfo
	for _, line := range splitLines(res.Stdout) {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if seen[fields[0]] {
			continue
		}
		seen[fields[0]] = true
		out = append(out, ports.RemoteInfo{Name: fields[0], URL: fields[1]})
	}
	return out, nil
}

func (e *ShellEngine) AddRemote(ctx context.Context, path, name, url string) error {
	if err := validation.ValidateRemoteURL(url); err != nil {
		return err
	}
	_, err := e.run(ctx, path, defaultLocalTimeout, "remote", "add", name, url)
	return err
}

func (e *ShellEngine) RemoveRemote(ctx context.Context, path, name string) error {
	_, err := e.run(ctx, path, defaultLocalTimeout, "remote", "remove", name)
	return err
}

func (e *ShellEngine) Log(ctx context.Context, path string, limit int) ([]ports.CommitInfo, error) {
	if limit <= 0 {
		limit = 50
	}
	const sep = "\x1f"
	format := strings.Join([]string{"%H", "%an", "%ae", "%aI", "%s"}, sep)
	res, err := e.run(ctx, path, defaultLocalTimeout, "log", "-n", strconv.Itoa(limit), "--format="+format)
	if err != nil {
		return nil, err
	}

	var commits []ports.CommitInfo
	for _, line := range splitLines(res.Stdout) {
		parts := strings.Split(line, sep)
		if len(parts) != 5 {
			continue
		}
		commits = append(commits, ports.CommitInfo{
			Hash: parts[0], Author: parts[1], Email: parts[2], When: parts[3], Message: parts[4],
		})
	}
	return commits, nil
}

func (e *ShellEngine) Diff(ctx context.Context, path, from, to string) (string, error) {
	args := []string{"diff"}
	if from != "" && to != "" {
		args = append(args, from+".."+to)
	} else if from != "" {
		args = append(args, from)
	}
	res, err := e.run(ctx, path, defaultLocalTimeout, args...)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

func (e *ShellEngine) Show(ctx context.Context, path, ref string) (string, error) {
	res, err := e.run(ctx, path, defaultLocalTimeout, "show", ref)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

func (e *ShellEngine) Blame(ctx context.Context, path, file string) (string, error) {
	res, err := e.run(ctx, path, defaultLocalTimeout, "blame", "--porcelain", file)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

func (e *ShellEngine) Stash(ctx context.Context, path, message string) error {
	args := []string{"stash", "push"}
	if message != "" {
		args = append(args, "-m", message)
	}
	_, err := e.run(ctx, path, defaultLocalTimeout, args...)
	return err
}

func (e *ShellEngine) StashList(ctx context.Context, path string) ([]string, error) {
	res, err := e.run(ctx, path, defaultLocalTimeout, "stash", "list")
	if err != nil {
		return nil, err
	}
	return splitLines(res.Stdout), nil
}

func (e *ShellEngine) StashPop(ctx context.Context, path string) error {
	_, err := e.run(ctx, path, defaultLocalTimeout, "stash", "pop")
	return err
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

var _ ports.GitOperations = (*ShellEngine)(nil)
