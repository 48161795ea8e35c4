package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMedia(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateAudit(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateMedia() error {
	if c.Media.ChunkSeconds <= 0 {
		return errors.New("media.chunk_seconds must be positive")
	}
	if c.Media.DarkLuminanceThreshold < 0 || c.Media.DarkLuminanceThreshold > 255 {
		return errors.New("media.dark_luminance_threshold must be between 0 and 255")
	}
	if c.Media.DarkSampleFraction <= 0 || c.Media.DarkSampleFraction > 1 {
		return errors.New("media.dark_sample_fraction must be greater than 0 and at most 1")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if err := ensurePositiveMap(map[string]int{
		"transcription.workers":                 c.Transcription.Workers,
		"transcription.max_attempts":            c.Transcription.MaxAttempts,
		"transcription.request_timeout_seconds": c.Transcription.RequestTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Transcription.RetryBaseSeconds < 0 {
		return errors.New("transcription.retry_base_seconds must be >= 0")
	}
	if c.Transcription.RetryMaxSeconds < c.Transcription.RetryBaseSeconds {
		return errors.New("transcription.retry_max_seconds must be >= transcription.retry_base_seconds")
	}
	return nil
}

func (c *Config) validateBackend() error {
	switch c.Transcription.Backend {
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return c.missingKey("gemini.api_key", "GEMINI_API_KEY")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return c.missingKey("openai.api_key", "OPENAI_API_KEY")
		}
	case BackendWhisperX:
	case BackendServer:
		if c.Server.URL == "" {
			return errors.New("server.url must be set when transcription.backend is server")
		}
	default:
		return fmt.Errorf("transcription.backend: unsupported value %q (expected gemini, openai, whisperx, or server)", c.Transcription.Backend)
	}
	return nil
}

func (c *Config) validateAudit() error {
	if !c.Audit.Enabled {
		return nil
	}
	if c.Gemini.APIKey == "" {
		return c.missingKey("gemini.api_key", "GEMINI_API_KEY")
	}
	if c.Audit.RequestsPerMinute <= 0 {
		return errors.New("audit.requests_per_minute must be positive")
	}
	if c.Audit.Workers <= 0 {
		return errors.New("audit.workers must be positive")
	}
	switch c.Audit.RetranscribeSeverity {
	case "LOW", "MEDIUM", "HIGH":
	default:
		return fmt.Errorf("audit.retranscribe_severity: unsupported value %q (expected LOW, MEDIUM, or HIGH)", c.Audit.RetranscribeSeverity)
	}
	return nil
}

func (c *Config) missingKey(field, env string) error {
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = "~/.config/recap/config.toml"
	}
	return fmt.Errorf("%s is required. Set %s env var or edit %s (create with 'recap config init')", field, strings.TrimSpace(env), defaultPath)
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
