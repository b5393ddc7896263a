// Package retry implements error classification and bounded
// retry-with-backoff for network-bound pipeline steps.
//
// Classification is intrinsic where possible: errors wrapping one of the
// sentinel values in [shared] carry their category with them, and only
// unwrapped errors fall back to heuristics. Anything that cannot be
// classified is treated as permanent so an unknown failure mode can never
// produce an unbounded retry loop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"github.com/desertthunder/mbx/internal/shared"
)

// Category indicates whether an error is safe to re-attempt automatically.
type Category int

const (
	Unknown Category = iota
	Transient
	Permanent
)

func (c Category) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// transientSentinels are the shared errors that mark a failure as retryable.
var transientSentinels = []error{
	shared.ErrNetwork,
	shared.ErrTimeout,
	shared.ErrRateLimited,
	shared.ErrConnection,
	shared.ErrServiceUnavailable,
}

// permanentSentinels are the shared errors that must surface immediately.
var permanentSentinels = []error{
	shared.ErrAuthFailed,
	shared.ErrNotFound,
	shared.ErrValidation,
	shared.ErrQuotaExceeded,
	shared.ErrUnsupportedFormat,
	shared.ErrFileTooLarge,
	shared.ErrPermissionDenied,
	shared.ErrInvalidCredentials,
	shared.ErrMissingCredentials,
}

// Categorize returns the intrinsic category of err if it wraps a taxonomy
// sentinel, falling back to a conservative heuristic for foreign errors.
func Categorize(err error) Category {
	if err == nil {
		return Unknown
	}

	for _, sentinel := range transientSentinels {
		if errors.Is(err, sentinel) {
			return Transient
		}
	}
	for _, sentinel := range permanentSentinels {
		if errors.Is(err, sentinel) {
			return Permanent
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "temporarily unavailable"):
		return Transient
	}

	return Unknown
}

// Retryable reports whether the policy may re-attempt after err.
// Unknown errors are not retryable.
func Retryable(err error) bool {
	return Categorize(err) == Transient
}

// Policy is a reusable retry policy value applied uniformly to the download
// step and every per-destination upload step.
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultPolicy mirrors the pipeline defaults: 3 total attempts, 1s initial
// delay doubling up to 30s.
var DefaultPolicy = Policy{
	MaxAttempts:   3,
	InitialDelay:  1 * time.Second,
	MaxDelay:      30 * time.Second,
	BackoffFactor: 2.0,
}

// WithMaxAttempts returns a copy of the policy with the attempt bound replaced.
func (p Policy) WithMaxAttempts(n int) Policy {
	p.MaxAttempts = n
	return p
}

// Do invokes op up to p.MaxAttempts times. A non-transient error surfaces
// immediately with no delay. Between transient failures Do sleeps the
// current backoff delay (context-aware) and invokes onRetry, if supplied,
// with the failure and the 1-based attempt number that produced it. After
// the final failed attempt the last error is returned wrapped with the
// attempt count.
func (p Policy) Do(ctx context.Context, op func(context.Context) error, onRetry func(error, int)) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !Retryable(err) {
			return err
		}

		if attempt == attempts {
			break
		}

		if onRetry != nil {
			onRetry(err, attempt)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay(attempt)):
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// delay computes the backoff before the attempt following the given 1-based
// attempt number, growing geometrically and capped at MaxDelay.
func (p Policy) delay(attempt int) time.Duration {
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	d := float64(p.InitialDelay) * math.Pow(factor, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}
