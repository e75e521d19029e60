package vault_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-git/engine/internal/vault"
)

func TestResolutionOrderPrefersToken(t *testing.T) {
	t.Setenv(vault.EnvGitHubToken, "ghtoken")
	t.Setenv(vault.EnvToken, "")
	t.Setenv(vault.EnvSSHKeyPath, "")
	t.Setenv(vault.EnvSSHAuthSock, "")
	t.Setenv(vault.EnvUsername, "")
	t.Setenv(vault.EnvPassword, "")

	v := vault.New(nil)
	cred := v.Get(true)
	require.NotNil(t, cred)
	assert.Equal(t, vault.AuthTypeToken, cred.AuthType)
	assert.Equal(t, "ghtoken", cred.Token())
	assert.Equal(t, "git", cred.EffectiveUsername())
}

func TestResolutionFallsBackToUsernamePassword(t *testing.T) {
	t.Setenv(vault.EnvGitHubToken, "")
	t.Setenv(vault.EnvToken, "")
	t.Setenv(vault.EnvSSHKeyPath, "")
	t.Setenv(vault.EnvSSHAuthSock, "")
	t.Setenv(vault.EnvUsername, "alice")
	t.Setenv(vault.EnvPassword, "hunter2")

	v := vault.New(nil)
	cred := v.Get(true)
	require.NotNil(t, cred)
	assert.Equal(t, vault.AuthTypeUsernamePassword, cred.AuthType)
	assert.Equal(t, "hunter2", cred.Password())
}

func TestNoCredentialWhenNothingSet(t *testing.T) {
	t.Setenv(vault.EnvGitHubToken, "")
	t.Setenv(vault.EnvToken, "")
	t.Setenv(vault.EnvSSHKeyPath, "")
	t.Setenv(vault.EnvSSHAuthSock, "")
	t.Setenv(vault.EnvUsername, "")
	t.Setenv(vault.EnvPassword, "")

	v := vault.New(nil)
	assert.Nil(t, v.Get(true))
	assert.False(t, v.IsAuthenticated())
}

func TestClearDestroysSecretMaterial(t *testing.T) {
	t.Setenv(vault.EnvGitHubToken, "ghtoken")

	v := vault.New(nil)
	require.NotNil(t, v.Get(true))
	v.Clear()
	assert.Equal(t, 0, int(v.Age()))
}

func TestCredentialStringNeverLeaksSecret(t *testing.T) {
	t.Setenv(vault.EnvGitHubToken, "super-secret-token")
	v := vault.New(nil)
	cred := v.Get(true)
	require.NotNil(t, cred)
	assert.NotContains(t, cred.String(), "super-secret-token")
}

func TestSetInstallsCredentialDirectly(t *testing.T) {
	v := vault.New(nil)
	cred := vault.NewTokenCredential("bob", "settoken")
	v.Set(cred)

	assert.Equal(t, vault.AuthTypeToken, v.GetAuthType())
	got := v.Get(false)
	require.NotNil(t, got)
	assert.Equal(t, "settoken", got.Token())
}

func TestGetAuthTypeNoneWhenUnconfigured(t *testing.T) {
	t.Setenv(vault.EnvGitHubToken, "")
	t.Setenv(vault.EnvToken, "")
	t.Setenv(vault.EnvSSHKeyPath, "")
	t.Setenv(vault.EnvSSHAuthSock, "")
	t.Setenv(vault.EnvUsername, "")
	t.Setenv(vault.EnvPassword, "")

	v := vault.New(nil)
	assert.Equal(t, vault.AuthTypeNone, v.GetAuthType())
}

func TestStatsReflectsCurrentCredential(t *testing.T) {
	v := vault.New(nil)
	v.Set(vault.NewUsernamePasswordCredential("alice", "hunter2"))
	v.Get(false)

	stats := v.Stats()
	assert.Equal(t, vault.AuthTypeUsernamePassword, stats.AuthType)
	assert.Equal(t, 1, stats.AccessCount)
	assert.NotEmpty(t, stats.CredentialID)
}

func TestRotateReplacesCredential(t *testing.T) {
	v := vault.New(nil)
	v.Set(vault.NewTokenCredential("bob", "old-token"))

	rotated := v.Rotate(vault.NewTokenCredential("bob", "new-token"))
	assert.Equal(t, "new-token", rotated.Token())
	assert.Equal(t, "new-token", v.Get(false).Token())
}
