package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeMedia()
	if err := c.normalizeTranscription(); err != nil {
		return err
	}
	if err := c.normalizeAudit(); err != nil {
		return err
	}
	c.normalizeGemini()
	c.normalizeOpenAI()
	c.normalizeWhisperX()
	c.normalizeLogging()
	c.normalizeNotifications()
	return c.normalizeMetrics()
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir()
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeMedia() {
	if c.Media.ChunkSeconds == 0 {
		c.Media.ChunkSeconds = defaultChunkSeconds
	}
	if c.Media.DarkSampleFraction == 0 {
		c.Media.DarkSampleFraction = defaultDarkSampleFraction
	}
	c.Media.AudioExtension = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c.Media.AudioExtension)), ".")
	if c.Media.AudioExtension == "" {
		c.Media.AudioExtension = defaultAudioExtension
	}
}

func (c *Config) normalizeTranscription() error {
	c.Transcription.Backend = strings.ToLower(strings.TrimSpace(c.Transcription.Backend))
	if c.Transcription.Backend == "" {
		c.Transcription.Backend = defaultBackend
	}
	c.Transcription.Language = strings.TrimSpace(c.Transcription.Language)
	if strings.TrimSpace(c.Transcription.PromptPath) != "" {
		expanded, err := expandPath(c.Transcription.PromptPath)
		if err != nil {
			return fmt.Errorf("transcription.prompt_path: %w", err)
		}
		c.Transcription.PromptPath = expanded
	}
	if c.Transcription.Workers == 0 {
		c.Transcription.Workers = defaultWorkers
	}
	if c.Transcription.MaxAttempts == 0 {
		c.Transcription.MaxAttempts = defaultMaxAttempts
	}
	if c.Transcription.RequestTimeoutSeconds <= 0 {
		c.Transcription.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeAudit() error {
	if strings.TrimSpace(c.Audit.PromptPath) != "" {
		expanded, err := expandPath(c.Audit.PromptPath)
		if err != nil {
			return fmt.Errorf("audit.prompt_path: %w", err)
		}
		c.Audit.PromptPath = expanded
	}
	if c.Audit.RequestsPerMinute == 0 {
		c.Audit.RequestsPerMinute = defaultAuditRequestsPerMinute
	}
	if c.Audit.Workers == 0 {
		c.Audit.Workers = defaultAuditWorkers
	}
	if c.Audit.MaxRetranscribe < 0 {
		c.Audit.MaxRetranscribe = 0
	}
	c.Audit.RetranscribeSeverity = strings.ToUpper(strings.TrimSpace(c.Audit.RetranscribeSeverity))
	if c.Audit.RetranscribeSeverity == "" {
		c.Audit.RetranscribeSeverity = defaultAuditRetranscribeLevel
	}
	return nil
}

func (c *Config) normalizeGemini() {
	c.Gemini.APIKey = strings.TrimSpace(c.Gemini.APIKey)
	if c.Gemini.APIKey == "" {
		if value, ok := os.LookupEnv("GEMINI_API_KEY"); ok {
			c.Gemini.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("GOOGLE_API_KEY"); ok {
			c.Gemini.APIKey = strings.TrimSpace(value)
		}
	}
	c.Gemini.BaseURL = strings.TrimRight(strings.TrimSpace(c.Gemini.BaseURL), "/")
	if c.Gemini.BaseURL == "" {
		c.Gemini.BaseURL = defaultGeminiBaseURL
	}
	c.Gemini.Model = strings.TrimSpace(c.Gemini.Model)
	if c.Gemini.Model == "" {
		c.Gemini.Model = defaultGeminiModel
	}
	if c.Gemini.TimeoutSeconds <= 0 {
		c.Gemini.TimeoutSeconds = defaultGeminiTimeoutSeconds
	}
}

func (c *Config) normalizeOpenAI() {
	c.OpenAI.APIKey = strings.TrimSpace(c.OpenAI.APIKey)
	if c.OpenAI.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.OpenAI.APIKey = strings.TrimSpace(value)
		}
	}
	c.OpenAI.BaseURL = strings.TrimSpace(c.OpenAI.BaseURL)
	c.OpenAI.Model = strings.TrimSpace(c.OpenAI.Model)
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = defaultOpenAIModel
	}
}

func (c *Config) normalizeWhisperX() {
	c.WhisperX.VADMethod = strings.ToLower(strings.TrimSpace(c.WhisperX.VADMethod))
	if c.WhisperX.VADMethod == "" {
		c.WhisperX.VADMethod = defaultWhisperXVADMethod
	}
	c.WhisperX.HFToken = strings.TrimSpace(c.WhisperX.HFToken)
	if c.WhisperX.HFToken == "" {
		if value, ok := os.LookupEnv("HUGGING_FACE_HUB_TOKEN"); ok {
			c.WhisperX.HFToken = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("HF_TOKEN"); ok {
			c.WhisperX.HFToken = strings.TrimSpace(value)
		}
	}
	c.Server.URL = strings.TrimSpace(c.Server.URL)
	if c.Server.URL == "" {
		c.Server.URL = defaultServerURL
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeMetrics() error {
	c.Metrics.Textfile = strings.TrimSpace(c.Metrics.Textfile)
	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		c.Metrics.Textfile = filepath.Join(c.Paths.StateDir, defaultMetricsTextfileFilename)
	}
	if c.Metrics.Textfile != "" {
		expanded, err := expandPath(c.Metrics.Textfile)
		if err != nil {
			return fmt.Errorf("metrics.textfile: %w", err)
		}
		c.Metrics.Textfile = expanded
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeoutSeconds
	}
}
