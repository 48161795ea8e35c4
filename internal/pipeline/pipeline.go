package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"recap/internal/audit"
	"recap/internal/chunkstore"
	"recap/internal/config"
	"recap/internal/logging"
	"recap/internal/media"
	"recap/internal/metrics"
	"recap/internal/notifications"
	"recap/internal/orchestrator"
	"recap/internal/parallel"
	"recap/internal/services"
	"recap/internal/transcript"
	"recap/internal/transcription"
)

const lockFileName = ".recap.lock"

// Prober is the media inspection the pipeline needs. *probe.Prober
// satisfies it.
type Prober interface {
	Probe(ctx context.Context, path string) (media.File, error)
	IsDarkVideo(ctx context.Context, file media.File) (bool, error)
	AudioOnly(ctx context.Context, file media.File, dest string) (media.File, error)
}

// Segmenter splits files and removes their chunks afterwards.
// *segment.Segmenter satisfies it.
type Segmenter interface {
	orchestrator.Segmenter
	Cleanup(file media.File) error
}

// Deps are the collaborators of a Runner. Auditor, Store, Extractor,
// Metrics and Notifier are optional.
type Deps struct {
	Prober      Prober
	Segmenter   Segmenter
	Transcriber orchestrator.Transcriber
	Extractor   orchestrator.RangeExtractor
	Auditor     *audit.Auditor
	Store       *chunkstore.Store
	Metrics     *metrics.Recorder
	Notifier    notifications.Service
	Logger      *slog.Logger
	Now         func() time.Time
}

// Summary describes one processed source.
type Summary struct {
	RunID   string
	Source  string
	File    media.File
	Output  *orchestrator.Output
	Report  *audit.Report
	Outputs Outputs
	Status  chunkstore.RunStatus
	Elapsed time.Duration
}

// Runner processes media files end to end: probe, optional audio-only
// replacement, orchestrated transcription, audit, and output files.
type Runner struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger
}

// lockWorkDir takes the exclusive work directory lock.
func (r *Runner) lockWorkDir() (func(), error) {
	if err := os.MkdirAll(r.cfg.Paths.WorkDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "work dir", r.cfg.Paths.WorkDir, err)
	}
	lockPath := filepath.Join(r.cfg.Paths.WorkDir, lockFileName)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "lock",
			fmt.Sprintf("another recap run is using %s", r.cfg.Paths.WorkDir), nil)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			r.logger.Warn("failed to release work dir lock", logging.String("lock", lockPath), logging.Error(err))
		}
	}, nil
}

// New constructs a Runner from explicit collaborators.
func New(cfg *config.Config, deps Deps) *Runner {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Runner{cfg: cfg, deps: deps, logger: logging.NewComponentLogger(deps.Logger, "pipeline")}
}

// Close releases the chunk store.
func (r *Runner) Close() error {
	if r == nil || r.deps.Store == nil {
		return nil
	}
	return r.deps.Store.Close()
}

// Process transcribes one source file. Only one run may use a work
// directory at a time.
func (r *Runner) Process(ctx context.Context, path string, resume orchestrator.Resume) (*Summary, error) {
	unlock, err := r.lockWorkDir()
	if err != nil {
		return nil, err
	}
	defer unlock()

	started := r.deps.Now()
	summary := &Summary{RunID: uuid.NewString(), Source: path}
	ctx = services.WithRunID(ctx, summary.RunID)
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("source", path),
		logging.Backend(r.deps.Transcriber.Backend()),
	)
	r.beginRun(ctx, summary)

	err = r.process(ctx, summary, resume)
	summary.Elapsed = r.deps.Now().Sub(started)
	summary.Status = runStatus(summary, err)
	r.finishRun(ctx, summary, err)
	r.recordMetrics(summary, started)
	r.notify(ctx, summary, err)

	if err != nil {
		logging.ErrorWithContext(logger, "run failed", "run_failed",
			logging.String("source", path),
			logging.Error(err),
			logging.Duration("elapsed", summary.Elapsed),
		)
		return summary, err
	}
	logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("status", string(summary.Status)),
		logging.Duration("elapsed", summary.Elapsed),
		logging.String("transcript", summary.Outputs.Transcript),
	)
	return summary, nil
}

func (r *Runner) process(ctx context.Context, summary *Summary, resume orchestrator.Resume) error {
	probeCtx := services.WithStage(ctx, "probe")
	file, err := r.deps.Prober.Probe(probeCtx, summary.Source)
	if err != nil {
		return err
	}
	file, extracted, err := r.replaceVideo(probeCtx, file)
	if err != nil {
		return err
	}
	summary.File = file

	orch := orchestrator.New(r.deps.Segmenter, r.deps.Transcriber, r.orchestratorOptions())
	out, err := orch.Run(ctx, file, resume)
	summary.Output = out
	if err != nil {
		return err
	}
	summary.File = out.File

	result := out.Result
	if r.deps.Auditor != nil {
		report := r.deps.Auditor.Audit(ctx, result, out.File)
		result, report = r.refine(ctx, result, out, report)
		report.Source = file.OriginalPath()
		summary.Report = &report
		out.Result = result
	}

	outputs, err := WriteOutputs(r.cfg.Paths.OutputDir, file.OriginalPath(), result, summary.Report)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "pipeline", "write outputs", r.cfg.Paths.OutputDir, err)
	}
	summary.Outputs = outputs

	r.cleanup(ctx, out.File, extracted)
	return nil
}

// replaceVideo swaps a video for its extracted audio when the frames are
// dark or audio extraction is forced. The returned path names the extracted
// file, if any.
func (r *Runner) replaceVideo(ctx context.Context, file media.File) (media.File, string, error) {
	if file.Kind != media.KindVideo {
		return file, "", nil
	}
	logger := logging.WithContext(ctx, r.logger)
	reason := ""
	if r.cfg.Media.ExtractAudioFromVideo {
		reason = "extract_audio_from_video enabled"
	} else if r.cfg.Media.DarkDetection {
		dark, err := r.deps.Prober.IsDarkVideo(ctx, file)
		if err != nil {
			if ctx.Err() != nil {
				return media.File{}, "", ctx.Err()
			}
			logging.WarnWithContext(logger, "dark video check failed", "dark_check_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "video is transcribed as-is"),
			)
		} else if dark {
			file.Dark = true
			reason = "video frames are dark"
		}
	}
	if reason == "" {
		return file, "", nil
	}

	dest := filepath.Join(r.cfg.Paths.WorkDir, media.Stem(file.Path)+"_audio."+r.cfg.Media.AudioExtension)
	audioFile, err := r.deps.Prober.AudioOnly(ctx, file, dest)
	if err != nil {
		return media.File{}, "", err
	}
	logger.Info("audio-only replacement",
		logging.Args(append(logging.DecisionAttrs("audio_replacement", "audio_only", reason),
			logging.String("audio_path", dest),
			logging.Float64("duration_seconds", audioFile.Duration))...)...)
	return audioFile, dest, nil
}

func (r *Runner) orchestratorOptions() orchestrator.Options {
	mode := parallel.ModeSerial
	if r.cfg.Transcription.Parallel {
		mode = parallel.ModePool
	}
	opts := orchestrator.Options{
		ChunkSeconds:   r.cfg.Media.ChunkSeconds,
		Parallel:       parallel.Options{Mode: mode, Workers: r.cfg.Transcription.Workers},
		PartialResults: r.cfg.Transcription.PartialResults,
		Language:       r.cfg.Transcription.Language,
		Extractor:      r.deps.Extractor,
		WorkDir:        filepath.Join(r.cfg.Paths.WorkDir, "resume"),
		Logger:         r.deps.Logger,
	}
	// a nil *chunkstore.Store must not become a non-nil interface
	if r.deps.Store != nil {
		opts.Store = r.deps.Store
	}
	return opts
}

func (r *Runner) refine(ctx context.Context, result transcript.Result, out *orchestrator.Output, report audit.Report) (transcript.Result, audit.Report) {
	if r.cfg.Audit.MaxRetranscribe <= 0 || report.Clean() {
		return result, report
	}
	threshold, err := audit.ParseSeverity(r.cfg.Audit.RetranscribeSeverity)
	if err != nil {
		return result, report
	}
	redo := func(ctx context.Context, unit audit.Unit) (transcript.Result, error) {
		res, _, err := r.deps.Transcriber.Transcribe(ctx, transcription.Request{Path: unit.Path, Language: r.cfg.Transcription.Language})
		if err != nil {
			return transcript.Result{}, err
		}
		return res.Shifted(unit.Offset), nil
	}
	texts := make(map[int]string, len(out.Outcomes))
	for _, outcome := range out.Outcomes {
		if outcome.Succeeded() {
			texts[outcome.Index] = outcome.Result.Text
		}
	}
	return r.deps.Auditor.Refine(ctx, result, out.File, report, redo, audit.RefineOptions{
		Threshold:   threshold,
		MaxAttempts: r.cfg.Audit.MaxRetranscribe,
		UnitTexts:   texts,
	})
}

// cleanup removes chunk files and extracted audio once transcription and
// audit have both finished.
func (r *Runner) cleanup(ctx context.Context, file media.File, extracted string) {
	if r.cfg.Media.KeepChunks {
		return
	}
	logger := logging.WithContext(ctx, r.logger)
	if file.Chunked() {
		if err := r.deps.Segmenter.Cleanup(file); err != nil {
			logging.WarnWithContext(logger, "chunk cleanup failed", "chunk_cleanup",
				logging.Error(err),
				logging.String(logging.FieldImpact, "chunk files remain in the work directory"),
			)
		}
	}
	if extracted != "" {
		if err := os.Remove(extracted); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Debug("extracted audio not removed", logging.String("path", extracted), logging.Error(err))
		}
	}
}

func (r *Runner) notify(ctx context.Context, summary *Summary, runErr error) {
	payload := notifications.Payload{"source": filepath.Base(summary.Source)}
	switch summary.Status {
	case chunkstore.RunFailed:
		if errors.Is(runErr, context.Canceled) {
			return
		}
		payload["error"] = runErr.Error()
		r.publish(ctx, notifications.EventRunFailed, payload)
	case chunkstore.RunPartial:
		missing := make([]string, 0, len(summary.Output.Missing))
		for _, m := range summary.Output.Missing {
			missing = append(missing, strconv.Itoa(m.Index))
		}
		payload["missing"] = strings.Join(missing, ", ")
		r.publish(ctx, notifications.EventRunPartial, payload)
	default:
		payload["transcript"] = summary.Outputs.Transcript
		if summary.Report != nil {
			payload["findings"] = summary.Report.Issues()
		}
		r.publish(ctx, notifications.EventRunCompleted, payload)
	}
}

func (r *Runner) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if r.deps.Notifier == nil {
		return
	}
	if err := r.deps.Notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "notification not sent", "notify_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "run result is unaffected"),
		)
	}
}

func runStatus(summary *Summary, err error) chunkstore.RunStatus {
	switch {
	case err != nil:
		return chunkstore.RunFailed
	case summary.Output.Partial():
		return chunkstore.RunPartial
	default:
		return chunkstore.RunDone
	}
}

func (r *Runner) beginRun(ctx context.Context, summary *Summary) {
	if r.deps.Store == nil {
		return
	}
	fingerprint, _ := media.Fingerprint(summary.Source)
	run := chunkstore.Run{
		ID:          summary.RunID,
		Source:      summary.Source,
		Fingerprint: fingerprint,
		Backend:     r.deps.Transcriber.Backend(),
	}
	if err := r.deps.Store.BeginRun(ctx, run); err != nil {
		r.logger.Debug("run not recorded", logging.Error(err))
	}
}

func (r *Runner) finishRun(ctx context.Context, summary *Summary, runErr error) {
	if r.deps.Store == nil {
		return
	}
	chunks, failed := 0, 0
	if summary.Output != nil {
		chunks = len(summary.Output.Outcomes)
		failed = len(summary.Output.Missing)
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	// the run context may already be cancelled
	if err := r.deps.Store.FinishRun(context.WithoutCancel(ctx), summary.RunID, summary.Status, chunks, failed, msg); err != nil {
		r.logger.Debug("run result not recorded", logging.Error(err))
	}
}

func (r *Runner) recordMetrics(summary *Summary, started time.Time) {
	rec := r.deps.Metrics
	if rec == nil {
		return
	}
	backend := r.deps.Transcriber.Backend()
	if summary.Output != nil {
		for _, outcome := range summary.Output.Outcomes {
			switch {
			case outcome.Reused:
				rec.Chunk(backend, "reused", 0)
			case outcome.Err != nil:
				rec.Chunk(backend, "failed", outcome.Elapsed)
			default:
				rec.Chunk(backend, "transcribed", outcome.Elapsed)
			}
		}
	}
	if summary.Report != nil {
		counts := make(map[string]int, len(summary.Report.Counts))
		for sev, n := range summary.Report.Counts {
			counts[string(sev)] = n
		}
		rec.Findings(counts)
	}
	rec.RunFinished(string(summary.Status), summary.Elapsed, started.Add(summary.Elapsed))
	if r.cfg.Metrics.Enabled && r.cfg.Metrics.Textfile != "" {
		if err := rec.WriteTextfile(r.cfg.Metrics.Textfile); err != nil {
			logging.WarnWithContext(r.logger, "metrics textfile not written", "metrics_write",
				logging.String("path", r.cfg.Metrics.Textfile),
				logging.Error(err),
			)
		}
	}
}

// ProcessDir transcribes every supported media file directly inside dir in
// name order. A failing file does not stop the rest; the joined error lists
// every failure.
func (r *Runner) ProcessDir(ctx context.Context, dir string) ([]*Summary, error) {
	files, err := MediaFiles(dir)
	if err != nil {
		return nil, err
	}
	started := r.deps.Now()
	logger := logging.WithContext(ctx, r.logger)
	logger.Info("folder scan", logging.String("dir", dir), logging.Int("files", len(files)))

	var (
		summaries []*Summary
		errs      []error
	)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		summary, err := r.Process(ctx, path, orchestrator.Resume{})
		if summary != nil {
			summaries = append(summaries, summary)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(path), err))
		}
	}
	if len(files) > 1 {
		r.publish(ctx, notifications.EventBatchCompleted, notifications.Payload{
			"processed": len(files),
			"failed":    len(errs),
			"duration":  r.deps.Now().Sub(started),
		})
	}
	return summaries, errors.Join(errs...)
}

// MediaFiles lists supported media files directly inside dir, sorted by name.
func MediaFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "read dir", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if media.Supported(entry.Name()) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}
