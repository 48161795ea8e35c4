package preflight

import (
	"context"

	"recap/internal/config"
)

// CheckBackend evaluates the configured transcription backend.
func CheckBackend(ctx context.Context, cfg *config.Config) Result {
	if cfg == nil {
		return Result{Name: "Backend", Detail: "Unknown"}
	}
	switch cfg.Transcription.Backend {
	case config.BackendGemini:
		return CheckGemini(ctx, cfg.Gemini.BaseURL, cfg.Gemini.APIKey, cfg.Gemini.Model)
	case config.BackendOpenAI:
		return CheckOpenAI(ctx, cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	case config.BackendServer:
		return CheckServer(ctx, cfg.Server.URL)
	case config.BackendWhisperX:
		detail := "local (model " + cfg.WhisperX.Model
		if cfg.WhisperX.CUDAEnabled {
			detail += ", cuda"
		}
		return Result{Name: "WhisperX", Passed: true, Detail: detail + ")"}
	default:
		return Result{Name: "Backend", Detail: "unknown backend " + cfg.Transcription.Backend}
	}
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
