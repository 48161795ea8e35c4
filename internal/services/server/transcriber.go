package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"recap/internal/language"
	"recap/internal/retry"
	"recap/internal/services"
	"recap/internal/transcript"
	"recap/internal/transcription"
)

const (
	serviceName    = "server"
	defaultURL     = "http://localhost:5000/transcribe"
	defaultTimeout = 30 * time.Minute
)

// Transcriber posts a local file path to a transcription server running on
// the same host and reads back its JSON transcript.
type Transcriber struct {
	url        string
	httpClient *http.Client
}

// NewTranscriber returns a backend targeting url.
func NewTranscriber(url string, timeoutSeconds int) *Transcriber {
	url = strings.TrimSpace(url)
	if url == "" {
		url = defaultURL
	}
	timeout := defaultTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	return &Transcriber{url: url, httpClient: &http.Client{Timeout: timeout}}
}

// Name implements transcription.Backend.
func (t *Transcriber) Name() string { return serviceName }

type requestBody struct {
	FilePath string `json:"file_path"`
	Language string `json:"language,omitempty"`
}

type responseBody struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Speaker string  `json:"speaker"`
		Text    string  `json:"text"`
	} `json:"segments"`
	Error string `json:"error"`
}

// Transcribe implements transcription.Backend.
func (t *Transcriber) Transcribe(ctx context.Context, req transcription.Request) (transcript.Result, error) {
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		return transcript.Result{}, retry.Permanent(fmt.Errorf("server transcription: resolve path: %w", err))
	}
	encoded, err := json.Marshal(requestBody{FilePath: abs, Language: language.ToISO2(req.Language)})
	if err != nil {
		return transcript.Result{}, fmt.Errorf("server transcription: encode body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(encoded))
	if err != nil {
		return transcript.Result{}, retry.Permanent(fmt.Errorf("server transcription: new request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		// a refused connection usually means the server is still starting
		return transcript.Result{}, services.Wrap(services.ErrTransient, serviceName, "request", t.url, err)
	}
	defer resp.Body.Close()
	if err := services.CheckResponse(serviceName, resp); err != nil {
		return transcript.Result{}, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return transcript.Result{}, services.Wrap(services.ErrTransient, serviceName, "read body", "", err)
	}
	var out responseBody
	if err := json.Unmarshal(body, &out); err != nil {
		return transcript.Result{}, fmt.Errorf("server transcription: decode response: %w", err)
	}
	if msg := strings.TrimSpace(out.Error); msg != "" {
		return transcript.Result{}, retry.Permanent(services.Wrap(services.ErrExternalTool, serviceName, "transcribe", msg, nil))
	}
	segments := make([]transcript.Segment, 0, len(out.Segments))
	for _, seg := range out.Segments {
		segments = append(segments, transcript.Segment{
			Start:   seg.Start,
			End:     seg.End,
			Speaker: transcript.NormalizeSpeaker(seg.Speaker),
			Text:    strings.TrimSpace(seg.Text),
		})
	}
	return transcript.Result{
		Source:   req.Path,
		Text:     strings.TrimSpace(out.Text),
		Segments: segments,
		Language: language.ToISO2(out.Language),
	}, nil
}
