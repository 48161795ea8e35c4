package services_test

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"recap/internal/services"
)

func TestParseRetryAfter(t *testing.T) {
	if d, ok := services.ParseRetryAfter("7"); !ok || d != 7*time.Second {
		t.Fatalf("expected 7s, got %s %v", d, ok)
	}
	if _, ok := services.ParseRetryAfter("-1"); ok {
		t.Fatal("negative seconds must be rejected")
	}
	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	if d, ok := services.ParseRetryAfter(future); !ok || d <= 0 || d > 91*time.Second {
		t.Fatalf("expected date-based delay, got %s %v", d, ok)
	}
	if _, ok := services.ParseRetryAfter("soon"); ok {
		t.Fatal("garbage must be rejected")
	}
}

func TestCheckResponse(t *testing.T) {
	ok := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("{}"))}
	if err := services.CheckResponse("gemini", ok); err != nil {
		t.Fatalf("unexpected error for 200: %v", err)
	}
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{"Retry-After": []string{"3"}},
		Body:       io.NopCloser(strings.NewReader(" quota exceeded ")),
	}
	err := services.CheckResponse("gemini", resp)
	status, isStatus := err.(*services.StatusError)
	if !isStatus {
		t.Fatalf("expected StatusError, got %T", err)
	}
	if status.StatusCode != 429 || status.RetryAfter != 3*time.Second || status.Body != "quota exceeded" || !status.Temporary() {
		t.Fatalf("unexpected status error %+v", status)
	}
	if !strings.Contains(err.Error(), "gemini request: http 429") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
