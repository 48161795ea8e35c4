package preflight

import (
	"context"

	"recap/internal/config"
	"recap/internal/deps"
	"recap/internal/media/command"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the directory and backend checks that apply to cfg.
// Remote checks only run for the configured backend and, when the audit is
// enabled, for Gemini.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}

	results = append(results, CheckBackend(ctx, cfg))

	// the auditor always talks to Gemini
	if cfg.Audit.Enabled && cfg.Transcription.Backend != config.BackendGemini {
		results = append(results, CheckGemini(ctx, cfg.Gemini.BaseURL, cfg.Gemini.APIKey, cfg.Gemini.Model))
	}
	return results
}

// CheckSystemDeps lists the external programs the configured pipeline needs.
func CheckSystemDeps(ctx context.Context, cfg *config.Config, run command.Runner) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for splitting and audio extraction",
			VersionArgs: []string{"-version"},
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Required for media inspection",
			VersionArgs: []string{"-version"},
		},
	}
	if cfg.Transcription.Backend == config.BackendWhisperX {
		requirements = append(requirements, deps.Requirement{
			Name:        "uvx",
			Command:     "uvx",
			Description: "Required for WhisperX transcription",
			VersionArgs: []string{"--version"},
		})
	}
	return deps.CheckBinaries(ctx, run, requirements)
}
