package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-git/engine/internal/validation"
)

func TestValidateBranchName(t *testing.T) {
	assert.NoError(t, validation.ValidateBranchName(""))
	assert.NoError(t, validation.ValidateBranchName("feature/add-thing"))
	assert.Error(t, validation.ValidateBranchName("HEAD"))
	assert.Error(t, validation.ValidateBranchName("bad..name"))
	assert.Error(t, validation.ValidateBranchName("/leading-slash"))
	assert.Error(t, validation.ValidateBranchName("has space"))
}

func TestSanitizePathRejectsTraversal(t *testing.T) {
	base := "/workspaces/root"
	_, err := validation.SanitizePath("../../etc/passwd", base)
	require.Error(t, err)
}

func TestSanitizePathAllowsNested(t *testing.T) {
	base := "/workspaces/root"
	resolved, err := validation.SanitizePath("sub/dir", base)
	require.NoError(t, err)
	assert.Equal(t, "/workspaces/root/sub/dir", resolved)
}

func TestSanitizeInputRejectsDangerousPattern(t *testing.T) {
	out, err := validation.SanitizeInput("feature; rm -rf /")
	require.Error(t, err)
	assert.Empty(t, out)
}

func TestSanitizeInputCollapsesWhitespace(t *testing.T) {
	out, err := validation.SanitizeInput("hello    world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestValidateRemoteURL(t *testing.T) {
	assert.NoError(t, validation.ValidateRemoteURL("https://example.com/repo.git"))
	assert.NoError(t, validation.ValidateRemoteURL("git@github.com:org/repo.git"))
	assert.Error(t, validation.ValidateRemoteURL("file:///etc/passwd"))
	assert.Error(t, validation.ValidateRemoteURL("not-a-url"))
}
