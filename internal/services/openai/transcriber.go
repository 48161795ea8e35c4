package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"recap/internal/language"
	"recap/internal/retry"
	"recap/internal/services"
	"recap/internal/transcript"
	"recap/internal/transcription"
)

const (
	serviceName = "openai"
	// MaxUploadBytes is the API's per-file upload limit.
	MaxUploadBytes = 25 << 20
	defaultTimeout = 10 * time.Minute
)

// Config captures the runtime settings for the Whisper API.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Transcriber implements transcription.Backend on the audio transcription
// endpoint with verbose_json segments.
type Transcriber struct {
	client *goopenai.Client
	model  string
	prompt string
}

// Option customizes the transcriber.
type Option func(*goopenai.ClientConfig)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(cfg *goopenai.ClientConfig) {
		if client != nil {
			cfg.HTTPClient = client
		}
	}
}

// NewTranscriber builds a Whisper API backend. prompt is passed as the
// optional context prompt.
func NewTranscriber(cfg Config, prompt string, opts ...Option) *Transcriber {
	clientCfg := goopenai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		clientCfg.BaseURL = base
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	for _, opt := range opts {
		opt(&clientCfg)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = goopenai.Whisper1
	}
	return &Transcriber{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  model,
		prompt: strings.TrimSpace(prompt),
	}
}

// Name implements transcription.Backend.
func (t *Transcriber) Name() string { return serviceName }

// Transcribe implements transcription.Backend.
func (t *Transcriber) Transcribe(ctx context.Context, req transcription.Request) (transcript.Result, error) {
	info, err := os.Stat(req.Path)
	if err != nil {
		return transcript.Result{}, retry.Permanent(services.Wrap(services.ErrValidation, serviceName, "stat", req.Path, err))
	}
	if info.Size() > MaxUploadBytes {
		return transcript.Result{}, retry.Permanent(services.Wrap(services.ErrValidation, serviceName, "upload",
			fmt.Sprintf("%s is %d bytes, over the %d byte limit; lower media.chunk_seconds", req.Path, info.Size(), MaxUploadBytes), nil))
	}

	prompt := t.prompt
	if extra := strings.TrimSpace(req.Prompt); extra != "" {
		prompt = strings.TrimSpace(prompt + "\n" + extra)
	}
	resp, err := t.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    t.model,
		FilePath: req.Path,
		Prompt:   prompt,
		Language: language.ToISO2(req.Language),
		Format:   goopenai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return transcript.Result{}, classify(err)
	}

	segments := make([]transcript.Segment, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		segments = append(segments, transcript.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	lang := language.ToISO2(resp.Language)
	if lang == "" {
		lang = language.ToISO2(req.Language)
	}
	return transcript.Result{
		Source:   req.Path,
		Text:     strings.TrimSpace(resp.Text),
		Segments: segments,
		Language: lang,
	}, nil
}

func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &services.StatusError{Service: serviceName, StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		body := strings.TrimSpace(string(reqErr.Body))
		if body == "" && reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &services.StatusError{Service: serviceName, StatusCode: reqErr.HTTPStatusCode, Body: body}
	}
	return fmt.Errorf("openai transcription: %w", err)
}
