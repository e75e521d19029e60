// Package vault resolves Git credentials from the process environment and
// holds secret material in mlock'd, guard-paged memory for the lifetime of
// a resolved credential.
package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"

	"github.com/mcp-git/engine/internal/logging"
)

// AuthType identifies how a Credential authenticates.
type AuthType string

const (
	AuthTypeToken            AuthType = "token"
	AuthTypeSSHKey           AuthType = "ssh_key"
	AuthTypeSSHAgent         AuthType = "ssh_agent"
	AuthTypeUsernamePassword AuthType = "username_password"
	AuthTypeNone             AuthType = "none"
)

// Environment variable names. resolveFromEnv checks GIT_TOKEN, then
// GITHUB_TOKEN, then SSH_KEY_PATH (with SSH_PASSPHRASE), then SSH_AUTH_SOCK,
// then GIT_USERNAME with GIT_PASSWORD.
const (
	EnvToken          = "GIT_TOKEN"
	EnvGitHubToken    = "GITHUB_TOKEN"
	EnvUsername       = "GIT_USERNAME"
	EnvPassword       = "GIT_PASSWORD"
	EnvSSHKeyPath     = "SSH_KEY_PATH"
	EnvSSHPassphrase  = "SSH_PASSPHRASE"
	EnvSSHAuthSock    = "SSH_AUTH_SOCK"
)

// Credential is a resolved set of Git authentication material. Secret
// fields are held in locked buffers, which the Vault destroys when the
// credential is cleared, rotated, replaced, or refreshed.
type Credential struct {
	AuthType     AuthType
	Username     string
	token        *memguard.LockedBuffer
	password     *memguard.LockedBuffer
	sshKeyPath   string
	sshPassphrase *memguard.LockedBuffer
}

// Token returns the raw token value. Callers must not retain the returned
// string beyond the immediate call that needs it.
func (c *Credential) Token() string {
	if c.token == nil {
		return ""
	}
	return string(c.token.Bytes())
}

// Password returns the raw password (or token, for AuthTypeToken, matching
// the resolution rule that a token doubles as the password half of basic
// auth against hosts that accept it that way).
func (c *Credential) Password() string {
	if c.password != nil {
		return string(c.password.Bytes())
	}
	if c.AuthType == AuthTypeToken {
		return c.Token()
	}
	return ""
}

// SSHKeyPath returns the filesystem path to the configured SSH private key.
func (c *Credential) SSHKeyPath() string {
	return c.sshKeyPath
}

// SSHPassphrase returns the raw SSH key passphrase, if any.
func (c *Credential) SSHPassphrase() string {
	if c.sshPassphrase == nil {
		return ""
	}
	return string(c.sshPassphrase.Bytes())
}

// EffectiveUsername returns the username to present for authentication,
// defaulting to "git" for token auth the way GitHub/GitLab token auth
// expects.
func (c *Credential) EffectiveUsername() string {
	if c.Username != "" {
		return c.Username
	}
	if c.AuthType == AuthTypeToken {
		return "git"
	}
	return ""
}

// destroy wipes and releases all locked buffers held by c. Safe to call
// more than once.
func (c *Credential) destroy() {
	if c.token != nil {
		c.token.Destroy()
		c.token = nil
	}
	if c.password != nil {
		c.password.Destroy()
		c.password = nil
	}
	if c.sshPassphrase != nil {
		c.sshPassphrase.Destroy()
		c.sshPassphrase = nil
	}
}

// String never renders secret material; it exists so accidental fmt/log
// calls on a *Credential cannot leak a token.
func (c *Credential) String() string {
	return fmt.Sprintf("Credential{auth_type=%s, username=%s}", c.AuthType, c.EffectiveUsername())
}

// AuditEvent records a credential lifecycle event for the audit trail.
// It never contains raw secret material.
type AuditEvent struct {
	Timestamp    time.Time
	CredentialID string
	EventType    string
	AuthType     AuthType
	Username     string
	AccessCount  int
}

// Vault resolves credentials from the environment, caches the resolved
// result, and tracks an audit trail of lifecycle events.
type Vault struct {
	mu           sync.Mutex
	logger       *logging.Logger
	cached       *Credential
	credentialID string
	createdAt    time.Time
	lastAccessed time.Time
	accessCount  int
}

// Stats summarizes the current credential for diagnostics, mirroring the
// original's get_credential_stats().
type Stats struct {
	CredentialID string
	AuthType     AuthType
	CreatedAt    time.Time
	LastAccessed time.Time
	AccessCount  int
	Age          time.Duration
}

// NewTokenCredential builds a Credential authenticating via a token
// (GitHub/GitLab personal access token or equivalent).
func NewTokenCredential(username, token string) *Credential {
	return &Credential{AuthType: AuthTypeToken, Username: username, token: memguard.NewBufferFromBytes([]byte(token))}
}

// NewUsernamePasswordCredential builds a Credential authenticating via
// HTTP basic auth.
func NewUsernamePasswordCredential(username, password string) *Credential {
	return &Credential{AuthType: AuthTypeUsernamePassword, Username: username, password: memguard.NewBufferFromBytes([]byte(password))}
}

// NewSSHKeyCredential builds a Credential authenticating via an SSH
// private key file, with an optional passphrase.
func NewSSHKeyCredential(keyPath, passphrase string) *Credential {
	cred := &Credential{AuthType: AuthTypeSSHKey, sshKeyPath: filepath.Clean(keyPath)}
	if passphrase != "" {
		cred.sshPassphrase = memguard.NewBufferFromBytes([]byte(passphrase))
	}
	return cred
}

// NewSSHAgentCredential builds a Credential authenticating via a running
// ssh-agent.
func NewSSHAgentCredential() *Credential {
	return &Credential{AuthType: AuthTypeSSHAgent}
}

// New constructs a Vault. logger receives audit events; it may be nil in
// tests.
func New(logger *logging.Logger) *Vault {
	return &Vault{logger: logger}
}

func (v *Vault) audit(eventType string, cred *Credential) {
	if v.logger == nil {
		return
	}
	event := AuditEvent{
		Timestamp:    time.Now(),
		CredentialID: v.credentialID,
		EventType:    eventType,
		AccessCount:  v.accessCount,
	}
	if cred != nil {
		event.AuthType = cred.AuthType
		event.Username = cred.EffectiveUsername()
	}
	v.logger.Info("credential audit event",
		"event_type", event.EventType,
		"credential_id", event.CredentialID,
		"auth_type", event.AuthType,
		"username", event.Username,
		"access_count", event.AccessCount,
	)
}

// resolveFromEnv implements the fixed resolution order: token env var,
// then SSH key path (file must exist), then SSH agent socket presence,
// then username+password, then none.
func resolveFromEnv() *Credential {
	if token := firstNonEmpty(os.Getenv(EnvToken), os.Getenv(EnvGitHubToken)); token != "" {
		return &Credential{
			AuthType: AuthTypeToken,
			Username: os.Getenv(EnvUsername),
			token:    memguard.NewBufferFromBytes([]byte(token)),
		}
	}

	if keyPath := os.Getenv(EnvSSHKeyPath); keyPath != "" {
		if info, err := os.Stat(keyPath); err == nil && !info.IsDir() {
			cred := &Credential{AuthType: AuthTypeSSHKey, sshKeyPath: filepath.Clean(keyPath)}
			if pass := os.Getenv(EnvSSHPassphrase); pass != "" {
				cred.sshPassphrase = memguard.NewBufferFromBytes([]byte(pass))
			}
			return cred
		}
	}

	if os.Getenv(EnvSSHAuthSock) != "" {
		return &Credential{AuthType: AuthTypeSSHAgent}
	}

	username := os.Getenv(EnvUsername)
	password := os.Getenv(EnvPassword)
	if username != "" && password != "" {
		return &Credential{
			AuthType: AuthTypeUsernamePassword,
			Username: username,
			password: memguard.NewBufferFromBytes([]byte(password)),
		}
	}

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Get returns the cached credential, resolving from the environment on
// first use or when forceRefresh is set. Returns nil if no credential
// material is configured.
func (v *Vault) Get(forceRefresh bool) *Credential {
	v.mu.Lock()
	defer v.mu.Unlock()

	if forceRefresh || v.cached == nil {
		if v.cached != nil {
			v.cached.destroy()
		}
		v.cached = resolveFromEnv()
		if v.cached != nil {
			v.credentialID = uuid.NewString()
			v.createdAt = time.Now()
			v.accessCount = 0
			v.audit("created", v.cached)
		}
	}

	if v.cached != nil {
		v.accessCount++
		v.lastAccessed = time.Now()
		v.audit("accessed", v.cached)
	}

	return v.cached
}

// Set installs cred as the cached credential directly, bypassing
// environment resolution, and destroys whatever was cached before it.
func (v *Vault) Set(cred *Credential) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cached != nil {
		v.cached.destroy()
	}
	v.cached = cred
	v.credentialID = uuid.NewString()
	v.createdAt = time.Now()
	v.accessCount = 0
	v.audit("set", cred)
}

// GetAuthType reports the auth type of the currently resolvable
// credential, or AuthTypeNone if none is configured.
func (v *Vault) GetAuthType() AuthType {
	cred := v.Get(false)
	if cred == nil {
		return AuthTypeNone
	}
	return cred.AuthType
}

// Stats reports diagnostics about the currently cached credential.
func (v *Vault) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()

	authType := AuthTypeNone
	var age time.Duration
	if v.cached != nil {
		authType = v.cached.AuthType
		age = time.Since(v.createdAt)
	}
	return Stats{
		CredentialID: v.credentialID,
		AuthType:     authType,
		CreatedAt:    v.createdAt,
		LastAccessed: v.lastAccessed,
		AccessCount:  v.accessCount,
		Age:          age,
	}
}

// IsAuthenticated reports whether any credential material is resolvable.
func (v *Vault) IsAuthenticated() bool {
	return resolveFromEnv() != nil
}

// Clear destroys the cached credential's secret material and resets vault
// state.
func (v *Vault) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cached != nil {
		v.audit("cleared", v.cached)
		v.cached.destroy()
	}
	v.cached = nil
	v.credentialID = ""
	v.accessCount = 0
}

// Rotate replaces the cached credential with newCred, securely destroying
// the previous one.
func (v *Vault) Rotate(newCred *Credential) *Credential {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cached != nil {
		v.cached.destroy()
	}

	v.cached = newCred
	v.credentialID = uuid.NewString()
	v.createdAt = time.Now()
	v.accessCount = 0
	v.audit("rotated", v.cached)

	return v.cached
}

// Age returns how long the current credential has been cached.
func (v *Vault) Age() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cached == nil {
		return 0
	}
	return time.Since(v.createdAt)
}
