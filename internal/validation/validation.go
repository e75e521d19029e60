// Package validation centralizes input sanitization for everything that
// crosses the engine's trust boundary: workspace paths, branch/tag/repo
// names, remote URLs, and raw command arguments destined for a shelled-out
// git invocation.
package validation

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	engerr "github.com/mcp-git/engine/internal/errors"
	"github.com/mcp-git/engine/internal/giturl"
)

const (
	// MaxWorkspaceIDLength is the maximum allowed length for workspace IDs.
	MaxWorkspaceIDLength = 255

	// MaxBranchNameLength is the maximum allowed length for branch names.
	MaxBranchNameLength = 255

	// MaxRepoNameLength is the maximum allowed length for repository names.
	MaxRepoNameLength = 255

	// MaxInputLength bounds any single string argument handed to a shelled
	// out git command.
	MaxInputLength = 1000
)

// gitReservedNames are git ref names that can never be used as branch
// names.
var gitReservedNames = map[string]bool{
	"HEAD":             true,
	"head":             true,
	"FETCH_HEAD":       true,
	"ORIG_HEAD":        true,
	"MERGE_HEAD":       true,
	"CHERRY_PICK_HEAD": true,
}

// gitRefInvalidPatterns mirrors git-check-ref-format's invalid sequences.
var gitRefInvalidPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.\.`),
	regexp.MustCompile(`^\.`),
	regexp.MustCompile(`\.$`),
	regexp.MustCompile(`\.lock$`),
	regexp.MustCompile(`@\{`),
	regexp.MustCompile(`[\x00-\x1f\x7f]`),
	regexp.MustCompile(`[~^:?*\[\\]`),
	regexp.MustCompile(`\s`),
}

// shellMetacharacters are stripped from any input destined for a shelled
// out command, whether or not exec.Command would have interpreted them
// (defense in depth against a future caller building a shell string).
var shellMetacharacters = regexp.MustCompile("[;&|`$(){}\\[\\]<>\"'\\\\]")

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)

var collapseWhitespace = regexp.MustCompile(`\s+`)

// dangerousPatterns catches command substrings that should never appear in
// a git argument, even after shell-metacharacter stripping, because they
// indicate an attempt to break out of the git command entirely.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s+-[rf]+`),
	regexp.MustCompile(`(?i)/etc/(passwd|shadow|sudoers)`),
	regexp.MustCompile(`(?i)chmod\s+777`),
	regexp.MustCompile(`(?i)\bsudo\b`),
	regexp.MustCompile(`(?i)\bwget\b`),
	regexp.MustCompile(`(?i)\bcurl\b`),
	regexp.MustCompile(`(?i)\bnc\s+-[lc]`),
	regexp.MustCompile(`(?i)\b(bash|sh)\s+-c\b`),
	regexp.MustCompile(`(?i)\bpython[0-9.]*\s+-[ce]\b`),
	regexp.MustCompile(`(?i)/root/`),
	regexp.MustCompile(`(?i)/home/`),
}

// ValidateWorkspaceID validates a workspace identifier.
func ValidateWorkspaceID(id string) error {
	if id == "" {
		return engerr.NewInvalidArgument("workspace id cannot be empty")
	}
	if strings.TrimSpace(id) != id {
		return engerr.NewInvalidArgument("workspace id cannot have leading or trailing whitespace")
	}
	if len(id) > MaxWorkspaceIDLength {
		return engerr.NewInvalidArgument("workspace id exceeds maximum length")
	}
	if strings.ContainsAny(id, "/\\") {
		return engerr.NewInvalidArgument("workspace id cannot contain path separators")
	}
	if strings.Contains(id, "..") {
		return engerr.New(engerr.KindPathTraversal, "workspace id cannot contain path traversal sequences")
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return engerr.NewInvalidArgument("workspace id cannot contain control characters")
		}
	}
	return nil
}

// ValidateBranchName validates a git branch name. An empty name is
// accepted by convention (callers fall back to a default).
func ValidateBranchName(name string) error {
	if name == "" {
		return nil
	}
	if len(name) > MaxBranchNameLength {
		return engerr.New(engerr.KindInvalidBranchName, "branch name exceeds maximum length")
	}
	if gitReservedNames[name] {
		return engerr.New(engerr.KindInvalidBranchName, "reserved name not allowed: "+name)
	}
	for _, pattern := range gitRefInvalidPatterns {
		if pattern.MatchString(name) {
			return engerr.New(engerr.KindInvalidBranchName, "branch name contains invalid characters or sequences")
		}
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return engerr.New(engerr.KindInvalidBranchName, "branch name cannot start or end with /")
	}
	if strings.Contains(name, "//") {
		return engerr.New(engerr.KindInvalidBranchName, "branch name cannot contain consecutive slashes")
	}
	return nil
}

// ValidateRepoName validates a repository name.
func ValidateRepoName(name string) error {
	if name == "" {
		return engerr.NewInvalidArgument("repo name cannot be empty")
	}
	if strings.TrimSpace(name) != name {
		return engerr.NewInvalidArgument("repo name cannot have leading or trailing whitespace")
	}
	if len(name) > MaxRepoNameLength {
		return engerr.NewInvalidArgument("repo name exceeds maximum length")
	}
	if strings.ContainsAny(name, "/\\") {
		return engerr.NewInvalidArgument("repo name cannot contain path separators")
	}
	if strings.Contains(name, "..") {
		return engerr.New(engerr.KindPathTraversal, "repo name cannot contain path traversal sequences")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return engerr.NewInvalidArgument("repo name cannot contain control characters")
		}
	}
	return nil
}

// SanitizePath resolves path (optionally relative to base) and rejects any
// result that escapes base. base must already be an absolute, cleaned
// directory. Returns the resolved absolute path on success.
func SanitizePath(path, base string) (string, error) {
	if path == "" {
		return "", engerr.NewInvalidArgument("path cannot be empty")
	}

	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(base, candidate)
	}
	resolved := filepath.Clean(candidate)

	rel, err := filepath.Rel(base, resolved)
	if err != nil {
		return "", engerr.New(engerr.KindInvalidPath, "path could not be resolved against base").WithContext("path", path)
	}
	if rel == ".." || strings.HasPrefix(rel, "../") || strings.HasPrefix(rel, `..\`) {
		return "", engerr.New(engerr.KindPathTraversal, "path escapes the allowed base directory").WithContext("path", path)
	}

	for _, r := range path {
		if unicode.IsControl(r) {
			return "", engerr.NewInvalidArgument("path cannot contain control characters")
		}
	}

	return resolved, nil
}

// SanitizeInput truncates, strips dangerous characters from, and validates
// a single string argument before it reaches a shelled-out git invocation.
// It mirrors the original service's sanitize_input: length cap, shell
// metacharacter and control character removal, a dangerous-pattern
// denylist, and whitespace collapsing.
func SanitizeInput(input string) (string, error) {
	if len(input) > MaxInputLength {
		input = input[:MaxInputLength]
	}

	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(input) {
			return "", engerr.New(engerr.KindDangerousInput, "input contains a disallowed command pattern")
		}
	}

	cleaned := shellMetacharacters.ReplaceAllString(input, "")
	cleaned = controlChars.ReplaceAllString(cleaned, "")
	cleaned = strings.ReplaceAll(cleaned, "\n", "")
	cleaned = strings.ReplaceAll(cleaned, "\r", "")
	cleaned = collapseWhitespace.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	return cleaned, nil
}

// ValidateRemoteURL restricts remote URLs to the schemes the engine is
// willing to clone/fetch/push against, plus bare filesystem paths (local
// clone sources, e.g. cloning a pre-seeded local repository into a
// workspace), rejecting file:// URLs and anything else it cannot otherwise
// classify.
func ValidateRemoteURL(rawURL string) error {
	if rawURL == "" {
		return engerr.NewInvalidArgument("remote url cannot be empty")
	}
	if strings.HasPrefix(strings.ToLower(rawURL), "file://") {
		return engerr.New(engerr.KindInvalidRemoteURL, "file:// remote urls are not accepted")
	}
	if giturl.IsURL(rawURL) {
		return nil
	}
	if filepath.IsAbs(rawURL) || strings.HasPrefix(rawURL, "./") || strings.HasPrefix(rawURL, "../") {
		return nil
	}
	return engerr.New(engerr.KindInvalidRemoteURL, "unrecognized remote url scheme")
}
