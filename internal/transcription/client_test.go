package transcription

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"recap/internal/retry"
	"recap/internal/services"
	"recap/internal/transcript"
)

type stubBackend struct {
	calls   int
	respond func(call int, ctx context.Context) (transcript.Result, error)
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) Transcribe(ctx context.Context, _ Request) (transcript.Result, error) {
	s.calls++
	return s.respond(s.calls, ctx)
}

func policy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, BaseDelay: time.Second, MaxDelay: 4 * time.Second, Sleeper: func(time.Duration) {}}
}

func TestTranscribeExhaustsTransientFailures(t *testing.T) {
	backend := &stubBackend{respond: func(int, context.Context) (transcript.Result, error) {
		return transcript.Result{}, &services.StatusError{Service: "stub", StatusCode: http.StatusTooManyRequests}
	}}
	var retries []int
	client := NewClient(backend, Options{
		Policy:  policy(3),
		OnRetry: func(_ string, attempt int, _ time.Duration, _ error) { retries = append(retries, attempt) },
	})

	_, attempts, err := client.Transcribe(context.Background(), Request{Path: "/work/chunk000.m4a"})
	if backend.calls != 3 || attempts != 3 {
		t.Fatalf("expected 3 attempts, got calls=%d attempts=%d", backend.calls, attempts)
	}
	if !errors.Is(err, services.ErrTranscriptionFailed) {
		t.Fatalf("expected ErrTranscriptionFailed, got %v", err)
	}
	var failed *FailedError
	if !errors.As(err, &failed) || failed.Attempts != 3 {
		t.Fatalf("expected FailedError with 3 attempts, got %#v", err)
	}
	var status *services.StatusError
	if !errors.As(err, &status) || status.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected last cause retained, got %v", err)
	}
	if len(retries) != 2 {
		t.Fatalf("expected 2 retry notifications, got %v", retries)
	}
}

func TestTranscribeSucceedsOnSecondAttempt(t *testing.T) {
	backend := &stubBackend{respond: func(call int, _ context.Context) (transcript.Result, error) {
		if call == 1 {
			return transcript.Result{}, &services.StatusError{StatusCode: http.StatusServiceUnavailable}
		}
		return transcript.Result{Segments: []transcript.Segment{{Start: 5, End: 6, Text: "b"}, {Start: 1, End: 2, Text: " a "}}}, nil
	}}
	client := NewClient(backend, Options{Policy: policy(5)})
	result, attempts, err := client.Transcribe(context.Background(), Request{Path: "/work/a.m4a", Language: "ja"})
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if attempts != 2 || backend.calls != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d (calls %d)", attempts, backend.calls)
	}
	if result.Segments[0].Text != "a" || result.Text != "a b" {
		t.Fatalf("expected sorted, trimmed segments and joined text, got %+v", result)
	}
	if result.Source != "/work/a.m4a" || result.Language != "ja" {
		t.Fatalf("expected source and language defaults, got %+v", result)
	}
}

func TestTranscribeFailsFastOnPermanentError(t *testing.T) {
	backend := &stubBackend{respond: func(int, context.Context) (transcript.Result, error) {
		return transcript.Result{}, &services.StatusError{StatusCode: http.StatusBadRequest, Body: "unsupported media"}
	}}
	client := NewClient(backend, Options{Policy: policy(5)})
	_, attempts, err := client.Transcribe(context.Background(), Request{Path: "/work/a.m4a"})
	if attempts != 1 || backend.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
	if !errors.Is(err, services.ErrTranscriptionFailed) || !strings.Contains(err.Error(), "unsupported media") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestTranscribeAcceptsEmptySpeech(t *testing.T) {
	backend := &stubBackend{respond: func(int, context.Context) (transcript.Result, error) {
		return transcript.Result{}, nil
	}}
	result, attempts, err := NewClient(backend, Options{Policy: policy(3)}).Transcribe(context.Background(), Request{Path: "/work/silence.m4a"})
	if err != nil {
		t.Fatalf("empty speech must not fail: %v", err)
	}
	if attempts != 1 || !result.Empty() {
		t.Fatalf("unexpected result %+v attempts=%d", result, attempts)
	}
}

func TestTranscribePerCallTimeoutIsRetried(t *testing.T) {
	backend := &stubBackend{respond: func(call int, ctx context.Context) (transcript.Result, error) {
		if call == 1 {
			<-ctx.Done()
			return transcript.Result{}, ctx.Err()
		}
		return transcript.Result{Text: "ok"}, nil
	}}
	client := NewClient(backend, Options{Policy: policy(3), Timeout: 10 * time.Millisecond})
	result, attempts, err := client.Transcribe(context.Background(), Request{Path: "/work/a.m4a"})
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if attempts != 2 || result.Text != "ok" {
		t.Fatalf("expected retry after per-call timeout, attempts=%d result=%+v", attempts, result)
	}
}

func TestTranscribeCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	backend := &stubBackend{respond: func(int, context.Context) (transcript.Result, error) {
		cancel()
		return transcript.Result{}, context.Canceled
	}}
	_, _, err := NewClient(backend, Options{Policy: policy(3)}).Transcribe(ctx, Request{Path: "/work/a.m4a"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if errors.Is(err, services.ErrTranscriptionFailed) {
		t.Fatal("cancellation must not be reported as a transcription failure")
	}
}

func TestTranscribeRequiresPath(t *testing.T) {
	_, _, err := NewClient(&stubBackend{}, Options{}).Transcribe(context.Background(), Request{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
