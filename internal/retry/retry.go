// Package retry implements exponential backoff with jitter for transient
// Git and network failures, with a set of named policies tuned for
// different operation classes.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"

	engerr "github.com/mcp-git/engine/internal/errors"
)

// Config controls backoff timing for a retry sequence.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	JitterFactor  float64
}

// Conservative retries sparingly; suited to operations where retrying has
// a real cost (e.g. destructive local mutations retried after a partial
// failure).
func Conservative() Config {
	return Config{MaxAttempts: 2, InitialDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second, Multiplier: 2, JitterFactor: 0.2}
}

// Standard is the default policy, matching the teacher's own default.
func Standard() Config {
	return Config{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 60 * time.Second, Multiplier: 2, JitterFactor: 0.25}
}

// Aggressive retries hard for best-effort, idempotent, cheap operations.
func Aggressive() Config {
	return Config{MaxAttempts: 5, InitialDelay: 2 * time.Second, MaxDelay: 120 * time.Second, Multiplier: 2, JitterFactor: 0.25}
}

// Network is tuned for fetch/pull/push against a remote.
func Network() Config {
	return Config{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2, JitterFactor: 0.25}
}

// Clone is tuned for full repository clones, which are slower to fail and
// more expensive to retry.
func Clone() Config {
	return Config{MaxAttempts: 3, InitialDelay: 2 * time.Second, MaxDelay: 120 * time.Second, Multiplier: 2, JitterFactor: 0.2}
}

func (c Config) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.JitterFactor > 0 {
		variation := d * c.JitterFactor
		d += (rand.Float64()*2 - 1) * variation
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Do runs op up to cfg.MaxAttempts times, backing off between attempts,
// and returns the first successful result or the last error encountered.
// It stops early if ctx is cancelled or the error is classified as
// non-retryable.
func Do[T any](ctx context.Context, cfg Config, op func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			return zero, err
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(cfg.delay(attempt)):
		}
	}

	return zero, lastErr
}

// DoNoResult is Do for operations with no useful return value.
func DoNoResult(ctx context.Context, cfg Config, op func() error) error {
	_, err := Do(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

var retryableSubstrings = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"temporary failure",
	"timeout",
	"i/o timeout",
	"tls handshake timeout",
	"no route to host",
	"network is unreachable",
	"eof",
}

var nonRetryableSubstrings = []string{
	"authentication required",
	"permission denied",
	"repository not found",
	"already exists",
	"reference not found",
	"invalid",
}

// IsRetryableError classifies an error as transient (worth retrying) or
// not, looking at context cancellation, net.Error, syscall errnos, go-git
// transport sentinels, and finally a string-pattern fallback.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var engErr *engerr.Error
	if errors.As(err, &engErr) {
		return engerr.IsRetryable(engErr.Kind)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ETIMEDOUT):
		return true
	}

	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, transport.ErrEmptyRemoteRepository):
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, s := range nonRetryableSubstrings {
		if strings.Contains(msg, s) {
			return false
		}
	}
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}

	// An error of a type this classifier doesn't recognize is treated as a
	// network_error for retry purposes rather than assumed permanent.
	return true
}
