package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"recap/internal/chunkstore"
	"recap/internal/logging"
	"recap/internal/media"
	"recap/internal/parallel"
	"recap/internal/services"
	"recap/internal/transcript"
	"recap/internal/transcription"
)

// Transcriber transcribes one unit with retries. *transcription.Client
// satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, req transcription.Request) (transcript.Result, int, error)
	Backend() string
}

// Segmenter attaches a full-file chunk manifest to a probed file.
type Segmenter interface {
	Segment(ctx context.Context, file media.File, chunkSeconds float64) (media.File, error)
}

// RangeExtractor cuts a sub-range of a unit for mid-chunk resume.
type RangeExtractor interface {
	ExtractRange(ctx context.Context, src string, start, duration float64, dest string) error
}

// Store persists chunk results between runs. *chunkstore.Store satisfies it.
type Store interface {
	Lookup(ctx context.Context, key chunkstore.Key) (transcript.Result, bool, error)
	SaveResult(ctx context.Context, key chunkstore.Key, result transcript.Result, attempts int) error
	SaveFailure(ctx context.Context, key chunkstore.Key, cause error, attempts int) error
}

// Options configures an Orchestrator.
type Options struct {
	ChunkSeconds   float64
	Parallel       parallel.Options
	PartialResults bool
	Language       string
	Prompt         string

	// Extractor enables resuming mid-chunk by cutting the chunk tail. Without
	// it the whole chunk is transcribed and earlier segments are dropped.
	Extractor RangeExtractor

	// WorkDir receives resume cuts; defaults to the chunk's directory.
	WorkDir string

	Store   Store
	Logger  *slog.Logger
	OnState func(State)
}

// Resume selects where transcription starts. Chunk boundaries are always
// computed for the whole file.
type Resume struct {
	StartFile int
	StartTime float64
}

// Output is the outcome of a run.
type Output struct {
	File     media.File
	Result   transcript.Result
	Outcomes []ChunkOutcome
	Missing  []ChunkFailure
	State    State
	Elapsed  time.Duration
}

// Partial reports whether some chunks are missing from Result.
func (o *Output) Partial() bool { return o != nil && len(o.Missing) > 0 }

// Orchestrator drives segmentation, per-chunk transcription and merging.
type Orchestrator struct {
	segmenter   Segmenter
	transcriber Transcriber
	opts        Options
	logger      *slog.Logger

	mu    sync.Mutex
	state State
}

// New constructs an Orchestrator.
func New(segmenter Segmenter, transcriber Transcriber, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Parallel.Workers <= 0 {
		opts.Parallel.Workers = 1
	}
	return &Orchestrator{
		segmenter:   segmenter,
		transcriber: transcriber,
		opts:        opts,
		logger:      logging.NewComponentLogger(logger, "orchestrator"),
		state:       StateInit,
	}
}

// State returns the current run state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) transition(ctx context.Context, to State) {
	o.mu.Lock()
	from := o.state
	if from.Terminal() {
		from = StateInit
	}
	if !CanTransition(from, to) {
		o.mu.Unlock()
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "illegal state transition ignored", "orchestrator_state",
			logging.String("from", string(from)),
			logging.String("to", string(to)),
		)
		return
	}
	o.state = to
	o.mu.Unlock()
	logging.WithContext(ctx, o.logger).Debug("state transition",
		logging.String("from", string(from)),
		logging.String("to", string(to)),
	)
	if o.opts.OnState != nil {
		o.opts.OnState(to)
	}
}

func (o *Orchestrator) fail(ctx context.Context, out *Output, err error) (*Output, error) {
	o.transition(ctx, StateFailed)
	out.State = StateFailed
	return out, err
}

// Run transcribes file. Files within the chunk threshold go straight to the
// transcriber; longer ones are segmented, dispatched and merged.
func (o *Orchestrator) Run(ctx context.Context, file media.File, resume Resume) (*Output, error) {
	start := time.Now()
	ctx = services.WithStage(ctx, "transcribe")
	logger := logging.WithContext(ctx, o.logger)
	out := &Output{File: file, State: StateInit}
	o.mu.Lock()
	o.state = StateInit
	o.mu.Unlock()
	defer func() { out.Elapsed = time.Since(start) }()

	if resume.StartFile < 0 || resume.StartTime < 0 {
		return o.fail(ctx, out, services.Wrap(services.ErrValidation, "orchestrator", "resume",
			fmt.Sprintf("start_file %d and start_time %.1f must be non-negative", resume.StartFile, resume.StartTime), nil))
	}

	if !file.NeedsSplit(o.opts.ChunkSeconds) && resume == (Resume{}) {
		logger.Info("transcription path",
			logging.Args(logging.DecisionAttrs("orchestration", "single_unit",
				fmt.Sprintf("duration %.1fs within %.0fs", file.Duration, o.opts.ChunkSeconds))...)...)
		o.transition(ctx, StateTranscribing)
		began := time.Now()
		result, attempts, err := o.transcriber.Transcribe(ctx, o.request(file.Path))
		unit := media.Chunk{Index: 0, Path: file.Path, End: file.Duration, ActualDuration: file.Duration}
		out.Outcomes = []ChunkOutcome{{Index: 0, Chunk: unit, Result: result, Err: err, Attempts: attempts, Elapsed: time.Since(began)}}
		if err != nil {
			out.Missing = Failures(out.Outcomes)
			return o.fail(ctx, out, err)
		}
		result.Source = file.OriginalPath()
		out.Result = result
		o.transition(ctx, StateDone)
		out.State = StateDone
		return out, nil
	}

	o.transition(ctx, StateSegmenting)
	segmented, err := o.segmenter.Segment(ctx, file, o.opts.ChunkSeconds)
	if err != nil {
		return o.fail(ctx, out, err)
	}
	out.File = segmented
	chunks := segmented.Chunks
	if resume.StartFile >= len(chunks) {
		return o.fail(ctx, out, services.Wrap(services.ErrValidation, "orchestrator", "resume",
			fmt.Sprintf("start_file %d out of range for %d chunk(s)", resume.StartFile, len(chunks)), nil))
	}
	if first := chunks[resume.StartFile]; resume.StartTime > 0 && resume.StartTime >= first.ActualDuration {
		return o.fail(ctx, out, services.Wrap(services.ErrValidation, "orchestrator", "resume",
			fmt.Sprintf("start_time %.1fs beyond chunk %d duration %.1fs", resume.StartTime, first.Index, first.ActualDuration), nil))
	}

	fingerprint := o.fingerprint(ctx, segmented)
	if resume.StartFile > 0 || resume.StartTime > 0 {
		logger.Info("resume filter",
			logging.Args(append(logging.DecisionAttrs("resume", "filtered",
				fmt.Sprintf("starting at chunk %d offset %.1fs", resume.StartFile, resume.StartTime)),
				logging.Int("chunk_count", len(chunks)))...)...)
	}

	o.transition(ctx, StateTranscribing)
	outcomes, err := o.transcribeChunks(ctx, segmented, fingerprint, resume)
	out.Outcomes = outcomes
	if err != nil {
		return o.fail(ctx, out, err)
	}

	out.Missing = Failures(outcomes)
	if len(out.Missing) > 0 {
		partial := &PartialError{Total: len(outcomes), Missing: out.Missing}
		if !o.opts.PartialResults {
			logging.ErrorWithContext(logger, "chunk transcription failed", "chunks_failed",
				logging.Int("missing", len(out.Missing)),
				logging.Error(partial),
				logging.String(logging.FieldErrorHint, "rerun with --start-file at the first missing chunk"),
			)
			return o.fail(ctx, out, partial)
		}
		logging.WarnWithContext(logger, "merging partial results", "chunks_partial",
			logging.Int("missing", len(out.Missing)),
			logging.Error(partial),
			logging.String(logging.FieldImpact, "transcript has gaps for missing chunks"),
		)
	}

	o.transition(ctx, StateMerging)
	merged := Merge(outcomes)
	merged.Source = segmented.OriginalPath()
	out.Result = merged
	o.transition(ctx, StateDone)
	out.State = StateDone
	logger.Info("transcript merged",
		logging.Int("chunks", len(outcomes)),
		logging.Int("segments", len(merged.Segments)),
		logging.Int("missing", len(out.Missing)),
	)
	return out, nil
}

func (o *Orchestrator) request(path string) transcription.Request {
	return transcription.Request{Path: path, Language: o.opts.Language, Prompt: o.opts.Prompt}
}

func (o *Orchestrator) fingerprint(ctx context.Context, file media.File) string {
	if o.opts.Store == nil {
		return ""
	}
	fp, err := media.Fingerprint(file.OriginalPath())
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "chunk reuse disabled", "fingerprint_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "all chunks will be transcribed"),
		)
		return ""
	}
	return fp
}

type dispatch struct {
	chunk  media.Chunk
	path   string
	offset float64
	trim   float64
	key    chunkstore.Key
	cache  bool
}

// transcribeChunks returns one outcome per chunk at or after StartFile plus
// stored outcomes for earlier chunks.
func (o *Orchestrator) transcribeChunks(ctx context.Context, file media.File, fingerprint string, resume Resume) ([]ChunkOutcome, error) {
	logger := logging.WithContext(ctx, o.logger)
	var (
		outcomes []ChunkOutcome
		pending  []dispatch
	)
	for _, chunk := range file.Chunks {
		key := chunkstore.Key{Fingerprint: fingerprint, Index: chunk.Index, Start: chunk.Start, End: chunk.End, Backend: o.transcriber.Backend()}
		trimmed := chunk.Index == resume.StartFile && resume.StartTime > 0
		if !trimmed {
			if stored, ok := o.lookup(ctx, key); ok {
				outcomes = append(outcomes, ChunkOutcome{Index: chunk.Index, Chunk: chunk, Result: stored.Shifted(chunk.ActualStart), Reused: true})
				continue
			}
		}
		if chunk.Index < resume.StartFile {
			logger.Debug("chunk skipped before resume point", logging.Chunk(chunk.Index))
			continue
		}
		d := dispatch{chunk: chunk, path: chunk.Path, offset: chunk.ActualStart, key: key, cache: fingerprint != ""}
		if trimmed {
			d.cache = false
			if err := o.prepareTrim(ctx, &d, resume.StartTime); err != nil {
				return nil, err
			}
		}
		pending = append(pending, d)
	}

	if len(pending) == 0 {
		logger.Info("all chunks reused from store", logging.Int("chunks", len(outcomes)))
		return outcomes, nil
	}
	logger.Info("dispatching chunks",
		logging.Int("dispatched", len(pending)),
		logging.Int("reused", len(outcomes)),
		logging.Int("workers", o.opts.Parallel.Workers),
		logging.String("mode", string(o.opts.Parallel.Mode)),
	)

	results := parallel.Map(ctx, pending, o.opts.Parallel, func(ctx context.Context, _ int, d dispatch) (ChunkOutcome, error) {
		ctx = services.WithChunkIndex(ctx, d.chunk.Index)
		result, attempts, err := o.transcriber.Transcribe(ctx, o.request(d.path))
		outcome := ChunkOutcome{Index: d.chunk.Index, Chunk: d.chunk, Attempts: attempts, Err: err}
		if err != nil {
			if d.cache {
				o.saveFailure(ctx, d.key, err, attempts)
			}
			return outcome, err
		}
		if d.cache {
			o.save(ctx, d.key, result, attempts)
		}
		if d.trim > 0 {
			// without a cut file the whole chunk came back; drop the part before the resume point
			result = result.TrimBefore(d.trim)
		}
		outcome.Result = result.Shifted(d.offset)
		return outcome, nil
	})
	for _, d := range pending {
		if d.path != d.chunk.Path {
			_ = os.Remove(d.path)
		}
	}

	for i, res := range results {
		outcome := res.Value
		if res.Err != nil && outcome.Err == nil {
			// undispatched after cancellation, or the task panicked
			outcome = ChunkOutcome{Index: pending[i].chunk.Index, Chunk: pending[i].chunk, Err: res.Err}
		}
		outcome.Elapsed = res.Elapsed
		outcomes = append(outcomes, outcome)
	}
	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

// prepareTrim points d at the tail of its chunk starting at offset.
func (o *Orchestrator) prepareTrim(ctx context.Context, d *dispatch, offset float64) error {
	if o.opts.Extractor == nil {
		d.trim = offset
		return nil
	}
	dir := o.opts.WorkDir
	if dir == "" {
		dir = filepath.Dir(d.chunk.Path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("resume cut dir: %w", err)
	}
	base := filepath.Base(d.chunk.Path)
	ext := filepath.Ext(base)
	dest := filepath.Join(dir, strings.TrimSuffix(base, ext)+fmt.Sprintf("_from%06.0f", offset)+ext)
	if err := o.opts.Extractor.ExtractRange(ctx, d.chunk.Path, offset, d.chunk.ActualDuration-offset, dest); err != nil {
		return services.Wrap(services.ErrMediaTool, "orchestrator", "resume cut", filepath.Base(d.chunk.Path), err)
	}
	d.path = dest
	d.offset = d.chunk.ActualStart + offset
	return nil
}

func (o *Orchestrator) lookup(ctx context.Context, key chunkstore.Key) (transcript.Result, bool) {
	if o.opts.Store == nil || key.Fingerprint == "" {
		return transcript.Result{}, false
	}
	result, ok, err := o.opts.Store.Lookup(ctx, key)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "chunk store lookup failed", "chunkstore_lookup",
			logging.Chunk(key.Index),
			logging.Error(err),
			logging.String(logging.FieldImpact, "chunk will be transcribed again"),
		)
		return transcript.Result{}, false
	}
	if ok {
		logging.WithContext(ctx, o.logger).Info("chunk result reused", logging.Chunk(key.Index), logging.Span(key.Start, key.End))
	}
	return result, ok
}

func (o *Orchestrator) save(ctx context.Context, key chunkstore.Key, result transcript.Result, attempts int) {
	if err := o.opts.Store.SaveResult(ctx, key, result, attempts); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "chunk result not persisted", "chunkstore_save",
			logging.Chunk(key.Index),
			logging.Error(err),
			logging.String(logging.FieldImpact, "a resumed run will transcribe this chunk again"),
		)
	}
}

func (o *Orchestrator) saveFailure(ctx context.Context, key chunkstore.Key, cause error, attempts int) {
	if err := o.opts.Store.SaveFailure(ctx, key, cause, attempts); err != nil {
		o.logger.Debug("chunk failure not persisted", logging.Chunk(key.Index), logging.Error(err))
	}
}
