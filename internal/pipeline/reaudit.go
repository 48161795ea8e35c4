package pipeline

import (
	"context"
	"time"

	"recap/internal/audit"
	"recap/internal/logging"
	"recap/internal/services"
)

// Reaudit checks an existing transcript against its source media and
// rewrites the report files next to it. Long media is re-split so every
// chunk is audited against its own audio; the chunks are removed afterwards
// unless media.keep_chunks is set. Findings never trigger re-transcription
// here.
func (r *Runner) Reaudit(ctx context.Context, source, transcriptPath string) (*audit.Report, Outputs, error) {
	if r.deps.Auditor == nil {
		return nil, Outputs{}, services.Wrap(services.ErrConfiguration, "pipeline", "reaudit", "audit is disabled", nil)
	}
	result, err := ReadTranscript(transcriptPath)
	if err != nil {
		return nil, Outputs{}, err
	}

	unlock, err := r.lockWorkDir()
	if err != nil {
		return nil, Outputs{}, err
	}
	defer unlock()

	probeCtx := services.WithStage(ctx, "probe")
	file, err := r.deps.Prober.Probe(probeCtx, source)
	if err != nil {
		return nil, Outputs{}, err
	}
	file, extracted, err := r.replaceVideo(probeCtx, file)
	if err != nil {
		return nil, Outputs{}, err
	}
	if file.NeedsSplit(r.cfg.Media.ChunkSeconds) {
		file, err = r.deps.Segmenter.Segment(services.WithStage(ctx, "segment"), file, r.cfg.Media.ChunkSeconds)
		if err != nil {
			return nil, Outputs{}, err
		}
	}
	defer r.cleanup(ctx, file, extracted)

	started := r.deps.Now()
	report := r.deps.Auditor.Audit(ctx, result, file)
	report.Source = file.OriginalPath()

	paths := OutputPaths(r.cfg.Paths.OutputDir, file.OriginalPath())
	paths.Transcript, paths.TranscriptJSON = "", ""
	if err := writeReport(paths, report); err != nil {
		return nil, Outputs{}, services.Wrap(services.ErrConfiguration, "pipeline", "write report", r.cfg.Paths.OutputDir, err)
	}
	logging.WithContext(ctx, r.logger).Info("reaudit finished",
		logging.String(logging.FieldEventType, "reaudit_complete"),
		logging.String("report", paths.Report),
		logging.Int("findings", report.Issues()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return &report, paths, nil
}
