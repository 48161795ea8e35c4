package pipeline

import (
	"fmt"
	"log/slog"

	"recap/internal/config"
	"recap/internal/media/ffmpeg"
	"recap/internal/prompts"
	"recap/internal/services"
	"recap/internal/services/gemini"
	"recap/internal/services/openai"
	"recap/internal/services/server"
	"recap/internal/services/whisperx"
	"recap/internal/transcription"
)

// NewGeminiClient builds the Gemini client shared by the gemini backend and
// the auditor.
func NewGeminiClient(cfg *config.Config, logger *slog.Logger) *gemini.Client {
	return gemini.NewClient(gemini.Config{
		APIKey:         cfg.Gemini.APIKey,
		BaseURL:        cfg.Gemini.BaseURL,
		Model:          cfg.Gemini.Model,
		TimeoutSeconds: cfg.Gemini.TimeoutSeconds,
	}, gemini.WithLogger(logger))
}

// NewBackend constructs the transcription backend selected by
// transcription.backend. Only Gemini takes the full transcription prompt; the
// Whisper API treats its prompt as vocabulary context.
func NewBackend(cfg *config.Config, tool ffmpeg.Tool, logger *slog.Logger) (transcription.Backend, error) {
	switch cfg.Transcription.Backend {
	case config.BackendGemini:
		prompt, err := prompts.Load(prompts.Transcription, cfg.Transcription.PromptPath)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "load prompt", cfg.Transcription.PromptPath, err)
		}
		return gemini.NewTranscriber(NewGeminiClient(cfg, logger), prompt), nil
	case config.BackendOpenAI:
		return openai.NewTranscriber(openai.Config{
			APIKey:         cfg.OpenAI.APIKey,
			BaseURL:        cfg.OpenAI.BaseURL,
			Model:          cfg.OpenAI.Model,
			TimeoutSeconds: cfg.Transcription.RequestTimeoutSeconds,
		}, ""), nil
	case config.BackendWhisperX:
		return whisperx.NewTranscriber(whisperx.Config{
			Model:       cfg.WhisperX.Model,
			CUDAEnabled: cfg.WhisperX.CUDAEnabled,
			VADMethod:   cfg.WhisperX.VADMethod,
			HFToken:     cfg.WhisperX.HFToken,
		}, tool, cfg.Paths.WorkDir), nil
	case config.BackendServer:
		return server.NewTranscriber(cfg.Server.URL, cfg.Transcription.RequestTimeoutSeconds), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "backend", fmt.Sprintf("unknown backend %q", cfg.Transcription.Backend), nil)
	}
}
