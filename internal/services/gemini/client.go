package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"recap/internal/logging"
	"recap/internal/retry"
	"recap/internal/services"
)

const (
	serviceName         = "gemini"
	defaultBaseURL      = "https://generativelanguage.googleapis.com"
	defaultModel        = "gemini-2.0-flash"
	defaultHTTPTimeout  = 10 * time.Minute
	defaultPollInterval = 2 * time.Second
	apiVersion          = "v1beta"
)

// File states reported by the Files API.
const (
	StateProcessing = "PROCESSING"
	StateActive     = "ACTIVE"
	StateFailed     = "FAILED"
)

// Config captures the runtime settings required to talk to Gemini.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client wraps the Gemini Files and generateContent REST endpoints.
type Client struct {
	cfg          Config
	httpClient   *http.Client
	pollInterval time.Duration
	sleeper      func(time.Duration)
	logger       *slog.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithPollInterval overrides how often upload processing state is polled.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = interval
	}
}

// WithSleeper overrides how poll waits are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient constructs a Gemini client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient:   &http.Client{Timeout: timeout},
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.cfg.Model == "" {
		client.cfg.Model = defaultModel
	}
	client.logger = logging.NewComponentLogger(client.logger, "gemini")
	return client
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// File is a Files API resource.
type File struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	State    string `json:"state"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type fileEnvelope struct {
	File File `json:"file"`
}

// Upload sends the file at path with the resumable upload protocol.
func (c *Client) Upload(ctx context.Context, path string) (File, error) {
	if c.cfg.APIKey == "" {
		return File{}, retry.Permanent(services.Wrap(services.ErrConfiguration, serviceName, "upload", "api key required", nil))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, retry.Permanent(services.Wrap(services.ErrValidation, serviceName, "upload", "read media", err))
	}
	mimeType := MimeType(path)

	meta, err := json.Marshal(map[string]any{"file": map[string]string{"display_name": filepath.Base(path)}})
	if err != nil {
		return File{}, fmt.Errorf("gemini upload: encode metadata: %w", err)
	}
	start, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/upload/"+apiVersion+"/files", bytes.NewReader(meta))
	if err != nil {
		return File{}, fmt.Errorf("gemini upload: new request: %w", err)
	}
	c.authorize(start)
	start.Header.Set("Content-Type", "application/json")
	start.Header.Set("X-Goog-Upload-Protocol", "resumable")
	start.Header.Set("X-Goog-Upload-Command", "start")
	start.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.Itoa(len(data)))
	start.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)
	resp, err := c.httpClient.Do(start)
	if err != nil {
		return File{}, fmt.Errorf("gemini upload: start: %w", err)
	}
	if err := services.CheckResponse(serviceName, resp); err != nil {
		resp.Body.Close()
		return File{}, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()
	uploadURL := resp.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return File{}, errors.New("gemini upload: missing upload url")
	}

	put, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return File{}, fmt.Errorf("gemini upload: new request: %w", err)
	}
	c.authorize(put)
	put.ContentLength = int64(len(data))
	put.Header.Set("X-Goog-Upload-Offset", "0")
	put.Header.Set("X-Goog-Upload-Command", "upload, finalize")
	var envelope fileEnvelope
	if err := c.do(put, &envelope); err != nil {
		return File{}, err
	}
	if envelope.File.Name == "" {
		return File{}, errors.New("gemini upload: response missing file name")
	}
	c.logger.Debug("media uploaded",
		logging.String("file", envelope.File.Name),
		logging.String("mime_type", mimeType),
		logging.Int("bytes", len(data)),
	)
	return envelope.File, nil
}

// GetFile fetches the current state of an uploaded file.
func (c *Client) GetFile(ctx context.Context, name string) (File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/"+apiVersion+"/"+name, nil)
	if err != nil {
		return File{}, fmt.Errorf("gemini get file: new request: %w", err)
	}
	c.authorize(req)
	var file File
	if err := c.do(req, &file); err != nil {
		return File{}, err
	}
	return file, nil
}

// WaitActive polls until the uploaded file leaves PROCESSING.
func (c *Client) WaitActive(ctx context.Context, file File) (File, error) {
	for {
		switch strings.ToUpper(file.State) {
		case StateActive:
			return file, nil
		case StateFailed:
			msg := "processing failed"
			if file.Error != nil && file.Error.Message != "" {
				msg = file.Error.Message
			}
			return file, retry.Permanent(services.Wrap(services.ErrValidation, serviceName, "file processing", file.Name+": "+msg, nil))
		}
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return file, err
		}
		next, err := c.GetFile(ctx, file.Name)
		if err != nil {
			return file, err
		}
		file = next
	}
}

// DeleteFile removes an uploaded file. Missing files are not an error.
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.cfg.BaseURL+"/"+apiVersion+"/"+name, nil)
	if err != nil {
		return fmt.Errorf("gemini delete: new request: %w", err)
	}
	c.authorize(req)
	err = c.do(req, nil)
	var status *services.StatusError
	if errors.As(err, &status) && status.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"file_data,omitempty"`
}

type fileData struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type generateRequest struct {
	Contents []struct {
		Parts []part `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		Temperature float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Generate runs generateContent with prompt and, when file is non-nil, the
// uploaded media attached. An empty completion is returned as "".
func (c *Client) Generate(ctx context.Context, prompt string, file *File) (string, error) {
	var payload generateRequest
	payload.Contents = make([]struct {
		Parts []part `json:"parts"`
	}, 1)
	parts := []part{{Text: prompt}}
	if file != nil {
		parts = append(parts, part{FileData: &fileData{MimeType: file.MimeType, FileURI: file.URI}})
	}
	payload.Contents[0].Parts = parts

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("gemini generate: encode body: %w", err)
	}
	endpoint := fmt.Sprintf("%s/%s/models/%s:generateContent", c.cfg.BaseURL, apiVersion, c.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("gemini generate: new request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	var out generateResponse
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", retry.Permanent(services.Wrap(services.ErrValidation, serviceName, "generate", "prompt blocked: "+out.PromptFeedback.BlockReason, nil))
	}
	var b strings.Builder
	for _, cand := range out.Candidates {
		for _, p := range cand.Content.Parts {
			b.WriteString(p.Text)
		}
		if b.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// GenerateWithMedia uploads path, waits for it to become active, runs prompt
// against it, and deletes the upload.
func (c *Client) GenerateWithMedia(ctx context.Context, path, prompt string) (string, error) {
	file, err := c.Upload(ctx, path)
	if err != nil {
		return "", err
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := c.DeleteFile(cleanupCtx, file.Name); err != nil {
			logging.WarnWithContext(c.logger, "remote file cleanup failed", "gemini_cleanup_failed",
				logging.String("file", file.Name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "uploaded media expires remotely after 48 hours"),
			)
		}
	}()
	active, err := c.WaitActive(ctx, file)
	if err != nil {
		return "", err
	}
	return c.Generate(ctx, prompt, &active)
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)
}

func (c *Client) do(req *http.Request, target any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()
	if err := services.CheckResponse(serviceName, resp); err != nil {
		return err
	}
	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gemini request: read body: %w", err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("gemini request: decode response: %w", err)
	}
	return nil
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if delay <= 0 {
		return nil
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var mimeTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".aac":  "audio/aac",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".wma":  "audio/x-ms-wma",
	".mp4":  "video/mp4",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
}

// MimeType returns the upload content type for path.
func MimeType(path string) string {
	if mt, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mt
	}
	return "application/octet-stream"
}
