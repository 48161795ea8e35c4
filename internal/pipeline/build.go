package pipeline

import (
	"log/slog"
	"path/filepath"
	"time"

	"recap/internal/audit"
	"recap/internal/chunkstore"
	"recap/internal/config"
	"recap/internal/logging"
	"recap/internal/media/ffmpeg"
	"recap/internal/media/probe"
	"recap/internal/media/segment"
	"recap/internal/metrics"
	"recap/internal/notifications"
	"recap/internal/parallel"
	"recap/internal/prompts"
	"recap/internal/retry"
	"recap/internal/services"
	"recap/internal/transcription"
)

// NewProber builds the ffprobe/ffmpeg prober configured by cfg.
func NewProber(cfg *config.Config, logger *slog.Logger) *probe.Prober {
	return probe.New(probe.Options{
		FFprobeBinary: cfg.FFprobeBinary(),
		FFmpegBinary:  cfg.FFmpegBinary(),
		LumaThreshold: cfg.Media.DarkLuminanceThreshold,
		DarkFraction:  cfg.Media.DarkSampleFraction,
		Logger:        logger,
	})
}

// NewSegmenter builds the chunk splitter writing under the work directory.
func NewSegmenter(cfg *config.Config, prober *probe.Prober, logger *slog.Logger) *segment.Segmenter {
	tool := ffmpeg.New(cfg.FFmpegBinary(), nil)
	return segment.New(tool, prober, filepath.Join(cfg.Paths.WorkDir, "chunks"), logger)
}

// NewAuditor builds the Gemini-backed hallucination auditor.
func NewAuditor(cfg *config.Config, logger *slog.Logger) (*audit.Auditor, error) {
	prompt, err := prompts.Load(prompts.Audit, cfg.Audit.PromptPath)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "load audit prompt", cfg.Audit.PromptPath, err)
	}
	attempts, base, maxDelay := cfg.RetryPolicy()
	return audit.New(NewGeminiClient(cfg, logger), audit.Options{
		Prompt:            prompt,
		RequestsPerMinute: cfg.Audit.RequestsPerMinute,
		Parallel:          parallel.Options{Mode: parallel.ModePool, Workers: cfg.Audit.Workers},
		Policy:            retry.Policy{MaxAttempts: attempts, BaseDelay: base, MaxDelay: maxDelay},
		Logger:            logger,
	}), nil
}

// Build assembles a Runner from cfg using the real media tools, the
// configured backend, the chunk store and a metrics recorder. Close the
// returned Runner to release the store.
func Build(cfg *config.Config, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "directories", "", err)
	}

	tool := ffmpeg.New(cfg.FFmpegBinary(), nil)
	prober := NewProber(cfg, logger)
	backend, err := NewBackend(cfg, tool, logger)
	if err != nil {
		return nil, err
	}

	recorder := metrics.New()
	attempts, base, maxDelay := cfg.RetryPolicy()
	client := transcription.NewClient(backend, transcription.Options{
		Policy:  retry.Policy{MaxAttempts: attempts, BaseDelay: base, MaxDelay: maxDelay},
		Timeout: time.Duration(cfg.Transcription.RequestTimeoutSeconds) * time.Second,
		Logger:  logger,
		OnRetry: func(string, int, time.Duration, error) {
			recorder.Retry(backend.Name())
		},
	})

	var auditor *audit.Auditor
	if cfg.Audit.Enabled {
		auditor, err = NewAuditor(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	store, err := chunkstore.Open(cfg.StatePath())
	if err != nil {
		return nil, err
	}

	return New(cfg, Deps{
		Prober:      prober,
		Segmenter:   NewSegmenter(cfg, prober, logger),
		Transcriber: client,
		Extractor:   tool,
		Auditor:     auditor,
		Store:       store,
		Metrics:     recorder,
		Notifier:    notifications.NewService(cfg),
		Logger:      logger,
	}), nil
}
