package errors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	eng "github.com/mcp-git/engine/internal/errors"
)

func TestCategoryOf(t *testing.T) {
	cases := []struct {
		kind eng.Kind
		want eng.Category
	}{
		{eng.KindInvalidArgument, eng.CategoryParameterValidation},
		{eng.KindGitCommandFailed, eng.CategoryGitOperation},
		{eng.KindRepoNotFound, eng.CategoryRepositoryAccess},
		{eng.KindNetworkError, eng.CategoryNetwork},
		{eng.KindIOFailure, eng.CategorySystem},
		{eng.KindTaskTimeout, eng.CategoryTaskExecution},
		{Kind(999999), eng.CategoryUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, eng.CategoryOf(tc.kind))
	}
}

// Kind is a local alias so the table above can name an out-of-range value
// without importing the package twice under different names.
type Kind = eng.Kind

func TestIsRetryable(t *testing.T) {
	assert.True(t, eng.IsRetryable(eng.KindNetworkError))
	assert.True(t, eng.IsRetryable(eng.KindNetworkTimeout))
	assert.False(t, eng.IsRetryable(eng.KindGitCommandFailed))
	assert.False(t, eng.IsRetryable(eng.KindInvalidArgument))
}

func TestErrorIs(t *testing.T) {
	err := eng.NewWorkspaceNotFound("abc")
	assert.ErrorIs(t, err, eng.New(eng.KindWorkspaceNotFound, ""))
	assert.NotErrorIs(t, err, eng.New(eng.KindRepoNotFound, ""))
}

func TestWithContext(t *testing.T) {
	err := eng.NewInvalidArgument("bad").WithContext("field", "branch")
	assert.Equal(t, "branch", err.Context["field"])
}

func TestWrapPreservesCause(t *testing.T) {
	cause := eng.NewIOFailed("disk", nil)
	wrapped := eng.WrapGitError("clone", cause)
	assert.ErrorIs(t, wrapped, eng.New(eng.KindGitCommandFailed, ""))
	assert.Equal(t, cause, wrapped.Unwrap())
}
