package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"recap/internal/retry"
	"recap/internal/services"
	"recap/internal/transcription"
)

func writeMedia(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunk001.m4a")
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	return path
}

func TestTranscribeVerboseJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("expected verbose_json, got %q", got)
		}
		if got := r.FormValue("language"); got != "ja" {
			t.Errorf("expected ISO language, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"task":     "transcribe",
			"language": "japanese",
			"duration": 12.5,
			"text":     "こんにちは 皆さん",
			"segments": []any{
				map[string]any{"id": 0, "start": 0.0, "end": 4.2, "text": " こんにちは"},
				map[string]any{"id": 1, "start": 4.2, "end": 9.0, "text": " 皆さん"},
			},
		})
	}))
	defer server.Close()

	backend := NewTranscriber(Config{APIKey: "k", BaseURL: server.URL + "/v1"}, "meeting", WithHTTPClient(server.Client()))
	result, err := backend.Transcribe(context.Background(), transcription.Request{Path: writeMedia(t, 64), Language: "Japanese"})
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if len(result.Segments) != 2 || result.Segments[1].Start != 4.2 || result.Segments[1].Text != "皆さん" {
		t.Fatalf("unexpected segments %+v", result.Segments)
	}
	if result.Language != "ja" || !strings.Contains(result.Text, "皆さん") {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestTranscribeMapsRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`))
	}))
	defer server.Close()

	backend := NewTranscriber(Config{APIKey: "k", BaseURL: server.URL + "/v1"}, "")
	_, err := backend.Transcribe(context.Background(), transcription.Request{Path: writeMedia(t, 8)})
	var status *services.StatusError
	if !errors.As(err, &status) {
		t.Fatalf("expected StatusError, got %T %v", err, err)
	}
	if status.StatusCode != http.StatusTooManyRequests || !retry.Retryable(err) {
		t.Fatalf("expected retryable 429, got %+v", status)
	}
}

func TestTranscribeRejectsOversizedUpload(t *testing.T) {
	path := writeMedia(t, 0)
	if err := os.Truncate(path, MaxUploadBytes+1); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	_, err := NewTranscriber(Config{APIKey: "k"}, "").Transcribe(context.Background(), transcription.Request{Path: path})
	if !errors.Is(err, services.ErrValidation) || retry.Retryable(err) {
		t.Fatalf("expected permanent validation error, got %v", err)
	}
}
