package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"recap/internal/services"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 2 * time.Second
	defaultMaxDelay    = 30 * time.Second
)

// Policy bounds a retry loop: attempts run 1..MaxAttempts and the delay before
// attempt n+1 is BaseDelay*2^(n-1), capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Sleeper replaces the timer based wait (tests).
	Sleeper func(time.Duration)
	// OnRetry observes each scheduled retry.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns the stock transcription retry settings.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: defaultMaxAttempts, BaseDelay: defaultBaseDelay, MaxDelay: defaultMaxDelay}
}

// ExhaustedError reports that every permitted attempt failed.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// permanent marks an error that must not be retried.
type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent wraps err so Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// Do runs fn until it succeeds, fails permanently, or the attempts run out.
// It returns the number of attempts made. Non-retryable failures are returned
// unchanged; exhaustion returns an *ExhaustedError wrapping the last cause.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context, attempt int) error) (int, error) {
	attempts := p.attempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		delay, retry := p.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			if attempt == attempts && Retryable(err) {
				break
			}
			var perm *permanent
			if errors.As(err, &perm) {
				return attempt, perm.err
			}
			return attempt, err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return attempt, err
		}
	}

	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return attempts, &ExhaustedError{Op: op, Attempts: attempts, Err: lastErr}
}

// Retryable reports whether err describes a transient condition: rate limits,
// timeouts, 5xx responses, or anything tagged services.ErrTransient. A bare
// context error is final; the loop separately stops once the caller's own
// context is done.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var perm *permanent
	if errors.As(err, &perm) {
		return false
	}
	if errors.Is(err, services.ErrTransient) || errors.Is(err, services.ErrTimeout) {
		return true
	}
	var statusErr *services.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
