package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"recap/internal/services"
	"recap/internal/transcription"
)

type fakeAPI struct {
	mu          sync.Mutex
	polls       int
	deleted     []string
	prompts     []string
	uploadBytes int
	generate    func(w http.ResponseWriter)
}

func (f *fakeAPI) handler(t *testing.T, serverURL func() string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key on %s %s", r.Method, r.URL.Path)
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/upload/v1beta/files":
			if r.Header.Get("X-Goog-Upload-Protocol") != "resumable" || r.Header.Get("X-Goog-Upload-Command") != "start" {
				t.Errorf("unexpected upload start headers: %v", r.Header)
			}
			w.Header().Set("X-Goog-Upload-URL", serverURL()+"/upload-session/1")
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost && r.URL.Path == "/upload-session/1":
			body, _ := io.ReadAll(r.Body)
			f.uploadBytes = len(body)
			_ = json.NewEncoder(w).Encode(map[string]any{"file": map[string]any{
				"name": "files/abc", "uri": "https://example.test/files/abc", "mimeType": "audio/mp4", "state": "PROCESSING",
			}})
		case r.Method == http.MethodGet && r.URL.Path == "/v1beta/files/abc":
			f.polls++
			state := "PROCESSING"
			if f.polls >= 2 {
				state = "ACTIVE"
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"name": "files/abc", "uri": "https://example.test/files/abc", "mimeType": "audio/mp4", "state": state,
			})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":generateContent"):
			var payload generateRequest
			_ = json.NewDecoder(r.Body).Decode(&payload)
			if len(payload.Contents) == 1 && len(payload.Contents[0].Parts) > 0 {
				f.prompts = append(f.prompts, payload.Contents[0].Parts[0].Text)
			}
			f.generate(w)
		case r.Method == http.MethodDelete && r.URL.Path == "/v1beta/files/abc":
			f.deleted = append(f.deleted, "files/abc")
			_, _ = w.Write([]byte("{}"))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func candidate(text string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}}},
		})
	}
}

func newFixture(t *testing.T, api *fakeAPI) (*Client, string) {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(api.handler(t, func() string { return server.URL }))
	t.Cleanup(server.Close)
	media := filepath.Join(t.TempDir(), "chunk000.m4a")
	if err := os.WriteFile(media, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL, Model: "gemini-test"}, WithSleeper(func(time.Duration) {}))
	return client, media
}

func TestTranscriberUploadsPollsGeneratesAndDeletes(t *testing.T) {
	api := &fakeAPI{generate: candidate("[00:00:01 - 00:00:03] Speaker 1: hello there\n[00:00:04 - 00:00:06] Speaker 2: hi")}
	client, media := newFixture(t, api)

	result, err := NewTranscriber(client, "PROMPT").Transcribe(context.Background(), transcription.Request{Path: media, Language: "ja"})
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if len(result.Segments) != 2 || result.Segments[1].Speaker != "Speaker 2" {
		t.Fatalf("unexpected segments %+v", result.Segments)
	}
	if result.Text != "hello there hi" || result.Language != "ja" {
		t.Fatalf("unexpected result %+v", result)
	}
	if api.uploadBytes != 10 {
		t.Fatalf("expected 10 uploaded bytes, got %d", api.uploadBytes)
	}
	if api.polls != 2 {
		t.Fatalf("expected polling until ACTIVE, got %d polls", api.polls)
	}
	if len(api.deleted) != 1 {
		t.Fatalf("expected remote file deleted, got %v", api.deleted)
	}
	if len(api.prompts) != 1 || !strings.HasPrefix(api.prompts[0], "PROMPT") || !strings.Contains(api.prompts[0], "Japanese") {
		t.Fatalf("unexpected prompt %q", api.prompts)
	}
}

func TestTranscriberEmptyResponseIsSilence(t *testing.T) {
	api := &fakeAPI{generate: candidate("")}
	client, media := newFixture(t, api)
	result, err := NewTranscriber(client, "PROMPT").Transcribe(context.Background(), transcription.Request{Path: media})
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if !result.Empty() {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestGenerateSurfacesStatusErrors(t *testing.T) {
	api := &fakeAPI{generate: func(w http.ResponseWriter) {
		w.Header().Set("Retry-After", "4")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota"}}`))
	}}
	client, media := newFixture(t, api)
	_, err := client.GenerateWithMedia(context.Background(), media, "PROMPT")
	var status *services.StatusError
	if !errors.As(err, &status) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if status.StatusCode != http.StatusTooManyRequests || status.RetryAfter != 4*time.Second || !status.Temporary() {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(api.deleted) != 1 {
		t.Fatal("upload must be deleted even when generation fails")
	}
}

func TestUploadRequiresKeyAndFile(t *testing.T) {
	client := NewClient(Config{})
	if _, err := client.Upload(context.Background(), "/nope.m4a"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	client = NewClient(Config{APIKey: "k"})
	if _, err := client.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.m4a")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestWaitActiveFailedState(t *testing.T) {
	client := NewClient(Config{APIKey: "k"})
	_, err := client.WaitActive(context.Background(), File{Name: "files/x", State: StateFailed})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for FAILED state, got %v", err)
	}
}

func TestMimeType(t *testing.T) {
	if MimeType("a.M4A") != "audio/mp4" || MimeType("b.webm") != "video/webm" || MimeType("c.xyz") != "application/octet-stream" {
		t.Fatal("unexpected mime mapping")
	}
	if NewClient(Config{}).Model() != defaultModel {
		t.Fatal("expected default model")
	}
}
