package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"recap/internal/services"
)

func TestDoStopsAtMaxAttemptsOnTransientError(t *testing.T) {
	var delays []time.Duration
	policy := Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    3 * time.Second,
		Sleeper:     func(d time.Duration) { delays = append(delays, d) },
	}
	calls := 0
	attempts, err := policy.Do(context.Background(), "transcribe", func(context.Context, int) error {
		calls++
		return &services.StatusError{StatusCode: http.StatusTooManyRequests}
	})
	if calls != 4 || attempts != 4 {
		t.Fatalf("expected 4 calls, got calls=%d attempts=%d", calls, attempts)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 4 {
		t.Fatalf("unexpected attempts on error: %d", exhausted.Attempts)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("unexpected delays %v", delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d = %s, want %s", i, delays[i], want[i])
		}
	}
}

func TestDoSucceedsOnSecondAttempt(t *testing.T) {
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Sleeper: func(time.Duration) {}}
	attempts, err := policy.Do(context.Background(), "op", func(_ context.Context, attempt int) error {
		if attempt == 1 {
			return services.Wrap(services.ErrTransient, "", "", "flaky", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestDoReturnsPermanentErrorImmediately(t *testing.T) {
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Second, Sleeper: func(time.Duration) { t.Fatal("unexpected sleep") }}
	base := errors.New("malformed unit")
	calls := 0
	attempts, err := policy.Do(context.Background(), "op", func(context.Context, int) error {
		calls++
		return Permanent(base)
	})
	if calls != 1 || attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected base error, got %v", err)
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		t.Fatal("permanent failure must not report exhaustion")
	}
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	policy := Policy{MaxAttempts: 3, Sleeper: func(time.Duration) { t.Fatal("unexpected sleep") }}
	calls := 0
	_, err := policy.Do(context.Background(), "op", func(context.Context, int) error {
		calls++
		return &services.StatusError{StatusCode: http.StatusBadRequest}
	})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	var statusErr *services.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestDoHonorsRetryAfterWithinCap(t *testing.T) {
	var delays []time.Duration
	policy := Policy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: 5 * time.Second, Sleeper: func(d time.Duration) { delays = append(delays, d) }}
	_, _ = policy.Do(context.Background(), "op", func(context.Context, int) error {
		return &services.StatusError{StatusCode: http.StatusServiceUnavailable, RetryAfter: time.Minute}
	})
	if len(delays) != 1 || delays[0] != 5*time.Second {
		t.Fatalf("expected capped retry-after delay, got %v", delays)
	}
}

func TestDoStopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Second, Sleeper: func(time.Duration) { cancel() }}
	calls := 0
	_, err := policy.Do(ctx, "op", func(context.Context, int) error {
		calls++
		return services.ErrTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	policy := Policy{BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, w := range want {
		if got := policy.Backoff(i + 1); got != w {
			t.Fatalf("Backoff(%d) = %s, want %s", i+1, got, w)
		}
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"per-call timeout", services.Wrap(services.ErrTimeout, "transcription", "stub", "call exceeded 10ms", context.DeadlineExceeded), true},
		{"transient", fmt.Errorf("upload: %w", services.ErrTransient), true},
		{"rate limited", &services.StatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"bad request", &services.StatusError{StatusCode: http.StatusBadRequest}, false},
		{"bare deadline", context.DeadlineExceeded, false},
		{"bare cancel", fmt.Errorf("send: %w", context.Canceled), false},
		{"permanent timeout", Permanent(services.ErrTimeout), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Errorf("%s: Retryable(%v) = %v, want %v", tc.name, tc.err, got, tc.want)
		}
	}
}

func TestRetryableHTTPClientTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	client := &http.Client{Timeout: 20 * time.Millisecond}
	resp, err := client.Get(server.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected client timeout")
	}
	if !Retryable(err) {
		t.Fatalf("expected client timeout to be retryable: %v", err)
	}
}

func TestDoRetriesWrappedDeadline(t *testing.T) {
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Sleeper: func(time.Duration) {}}
	attempts, err := policy.Do(context.Background(), "transcribe", func(_ context.Context, attempt int) error {
		if attempt < 3 {
			return services.Wrap(services.ErrTimeout, "transcription", "stub", "call exceeded", context.DeadlineExceeded)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after timeouts, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}
