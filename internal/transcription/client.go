package transcription

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"recap/internal/logging"
	"recap/internal/retry"
	"recap/internal/services"
	"recap/internal/transcript"
)

// Request describes one unit handed to a backend.
type Request struct {
	// Path is the local media file for the unit.
	Path string
	// Language is an optional BCP 47 hint.
	Language string
	// Prompt carries optional extra context for backends that accept it.
	Prompt string
}

// Backend is a remote (or local) transcription capability. Implementations
// return *services.StatusError for non-success responses so the retry policy
// can tell transient failures from permanent ones.
type Backend interface {
	Name() string
	Transcribe(ctx context.Context, req Request) (transcript.Result, error)
}

// FailedError reports that a unit could not be transcribed, either because
// every attempt failed transiently or because the first failure was permanent.
type FailedError struct {
	Unit     string
	Attempts int
	Err      error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("transcribe %s: failed after %d attempt(s): %v", e.Unit, e.Attempts, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }

// Is lets errors.Is match services.ErrTranscriptionFailed.
func (e *FailedError) Is(target error) bool {
	return target == services.ErrTranscriptionFailed
}

// Options configures a Client.
type Options struct {
	Policy retry.Policy
	// Timeout bounds each individual backend call. Zero disables it.
	Timeout time.Duration
	Logger  *slog.Logger
	// OnRetry observes scheduled retries in addition to logging.
	OnRetry func(unit string, attempt int, delay time.Duration, err error)
}

// Client wraps a Backend with per-call timeouts and retry with backoff.
type Client struct {
	backend Backend
	policy  retry.Policy
	timeout time.Duration
	logger  *slog.Logger
	onRetry func(unit string, attempt int, delay time.Duration, err error)
}

// NewClient constructs a Client around backend.
func NewClient(backend Backend, opts Options) *Client {
	return &Client{
		backend: backend,
		policy:  opts.Policy,
		timeout: opts.Timeout,
		logger:  logging.NewComponentLogger(opts.Logger, "transcription"),
		onRetry: opts.OnRetry,
	}
}

// Backend returns the wrapped backend name.
func (c *Client) Backend() string {
	if c == nil || c.backend == nil {
		return ""
	}
	return c.backend.Name()
}

// Transcribe sends one unit to the backend and returns its result with the
// number of attempts made. An empty response is a valid silent result.
func (c *Client) Transcribe(ctx context.Context, req Request) (transcript.Result, int, error) {
	unit := strings.TrimSpace(req.Path)
	if unit == "" {
		return transcript.Result{}, 0, &FailedError{Unit: "<empty>", Attempts: 0, Err: services.Wrap(services.ErrValidation, "transcription", "request", "unit path required", nil)}
	}
	if c.backend == nil {
		return transcript.Result{}, 0, &FailedError{Unit: unit, Err: services.Wrap(services.ErrConfiguration, "transcription", "backend", "no backend configured", nil)}
	}
	logger := logging.WithContext(ctx, c.logger).With(logging.Backend(c.backend.Name()), logging.String("unit", unit))

	policy := c.policy
	userHook := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		logging.WarnWithContext(logger, "transcription attempt failed; retrying", "transcription_retry",
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "transient backend failure, backing off"),
			logging.String(logging.FieldImpact, "unit will be retried"),
		)
		if userHook != nil {
			userHook(attempt, delay, err)
		}
		if c.onRetry != nil {
			c.onRetry(unit, attempt, delay, err)
		}
	}

	var result transcript.Result
	start := time.Now()
	attempts, err := policy.Do(ctx, "transcribe "+unit, func(ctx context.Context, attempt int) error {
		// each attempt gets its own id so backend logs can be told apart
		res, callErr := c.call(services.WithRequestID(ctx, fmt.Sprintf("%s#%d", unit, attempt)), req)
		if callErr != nil {
			return callErr
		}
		result = res
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return transcript.Result{}, attempts, err
		}
		failure := &FailedError{Unit: unit, Attempts: attempts, Err: err}
		logging.ErrorWithContext(logger, "transcription failed", "transcription_failed",
			logging.Int("attempts", attempts),
			logging.Error(err),
		)
		return transcript.Result{}, attempts, failure
	}

	result = normalize(result, req)
	logger.Info("unit transcribed",
		logging.Int("attempts", attempts),
		logging.Int("segments", len(result.Segments)),
		logging.Bool("empty", result.Empty()),
		logging.Duration("elapsed", time.Since(start)),
	)
	return result, attempts, nil
}

func (c *Client) call(ctx context.Context, req Request) (transcript.Result, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	res, err := c.backend.Transcribe(callCtx, req)
	if err == nil {
		return res, nil
	}
	// a per-call deadline is transient; the caller's own cancellation is not
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return transcript.Result{}, services.Wrap(services.ErrTimeout, "transcription", c.backend.Name(), fmt.Sprintf("call exceeded %s", c.timeout), err)
	}
	return transcript.Result{}, err
}

func normalize(result transcript.Result, req Request) transcript.Result {
	if result.Source == "" {
		result.Source = req.Path
	}
	if result.Language == "" {
		result.Language = req.Language
	}
	segments := make([]transcript.Segment, 0, len(result.Segments))
	for _, seg := range result.Segments {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" {
			continue
		}
		if seg.End < seg.Start {
			seg.End = seg.Start
		}
		segments = append(segments, seg)
	}
	slices.SortStableFunc(segments, func(a, b transcript.Segment) int {
		return cmp.Compare(a.Start, b.Start)
	})
	result.Segments = segments
	result.Text = strings.TrimSpace(result.Text)
	if result.Text == "" {
		result.Text = transcript.JoinText(segments)
	}
	return result
}
