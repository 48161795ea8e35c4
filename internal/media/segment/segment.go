package segment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"recap/internal/logging"
	"recap/internal/media"
	"recap/internal/services"
)

// Extractor cuts a time range out of a media file.
type Extractor interface {
	ExtractRange(ctx context.Context, source string, start, duration float64, dest string) error
}

// DurationProber measures a produced chunk.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// reuseTolerance bounds how far an existing chunk file may deviate from its
// planned length and still be reused.
const reuseTolerance = 1.0

// Plan divides [0, duration] into equal spans no longer than chunkSeconds.
// Durations at or below chunkSeconds produce one span covering the file.
func Plan(duration, chunkSeconds float64) ([]media.Span, error) {
	if math.IsNaN(duration) || duration <= 0 {
		return nil, services.Wrap(services.ErrSegmentation, "segment", "plan", fmt.Sprintf("invalid duration %v", duration), nil)
	}
	if math.IsNaN(chunkSeconds) || chunkSeconds <= 0 {
		return nil, services.Wrap(services.ErrValidation, "segment", "plan", fmt.Sprintf("invalid chunk length %v", chunkSeconds), nil)
	}
	if duration <= chunkSeconds {
		return []media.Span{{Start: 0, End: duration}}, nil
	}
	count := int(math.Ceil(duration / chunkSeconds))
	length := duration / float64(count)
	spans := make([]media.Span, count)
	for i := range spans {
		spans[i] = media.Span{Start: float64(i) * length, End: float64(i+1) * length}
	}
	// pin the last end so the spans sum to exactly duration
	spans[count-1].End = duration
	return spans, nil
}

// MismatchError reports that splitting produced a different set of chunks than
// the plan asked for.
type MismatchError struct {
	Planned  int
	Produced int
	Missing  []int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("split produced %d of %d planned chunks (missing %v)", e.Produced, e.Planned, e.Missing)
}

// Is lets errors.Is match services.ErrSegmentation.
func (e *MismatchError) Is(target error) bool {
	return target == services.ErrSegmentation
}

// Segmenter plans and physically splits media files.
type Segmenter struct {
	extractor Extractor
	prober    DurationProber
	workDir   string
	logger    *slog.Logger
}

// New constructs a Segmenter writing chunks under workDir.
func New(extractor Extractor, prober DurationProber, workDir string, logger *slog.Logger) *Segmenter {
	return &Segmenter{
		extractor: extractor,
		prober:    prober,
		workDir:   workDir,
		logger:    logging.NewComponentLogger(logger, "segmenter"),
	}
}

// ChunkDir returns the directory chunks of file are written to.
func (s *Segmenter) ChunkDir(file media.File) string {
	name := media.Stem(file.Path)
	if fp, err := media.Fingerprint(file.Path); err == nil {
		name = name + "-" + fp
	}
	return filepath.Join(s.workDir, name)
}

// ChunkPath returns the path of chunk index for file.
func (s *Segmenter) ChunkPath(file media.File, index int) string {
	return filepath.Join(s.ChunkDir(file), fmt.Sprintf("%s_chunk%03d%s", media.Stem(file.Path), index, filepath.Ext(file.Path)))
}

// Segment plans the whole file and attaches chunks. A file that fits in one
// chunk gets a single implicit chunk pointing at the file itself.
func (s *Segmenter) Segment(ctx context.Context, file media.File, chunkSeconds float64) (media.File, error) {
	spans, err := Plan(file.Duration, chunkSeconds)
	if err != nil {
		return file, err
	}
	logger := logging.WithContext(ctx, s.logger)
	if len(spans) == 1 {
		logger.Info("split decision",
			logging.Args(append(logging.DecisionAttrs("split", "single_unit",
				fmt.Sprintf("duration %.1fs within %.0fs", file.Duration, chunkSeconds)),
				logging.String("path", file.Path))...)...)
		file.Chunks = []media.Chunk{{
			Index:          0,
			Path:           file.Path,
			Start:          0,
			End:            file.Duration,
			ActualStart:    0,
			ActualDuration: file.Duration,
		}}
		return file, nil
	}
	logger.Info("split decision",
		logging.Args(append(logging.DecisionAttrs("split", "chunked",
			fmt.Sprintf("duration %.1fs exceeds %.0fs", file.Duration, chunkSeconds)),
			logging.Int("chunk_count", len(spans)),
			logging.Float64("chunk_seconds", spans[0].Length()),
			logging.String("path", file.Path))...)...)
	chunks, err := s.Split(ctx, file, spans)
	if err != nil {
		return file, err
	}
	file.Chunks = chunks
	return file, nil
}

// Split cuts one file per span, sequentially, and measures each result.
// ActualStart is the running sum of measured durations so timestamps follow
// the produced files rather than the plan.
func (s *Segmenter) Split(ctx context.Context, file media.File, spans []media.Span) ([]media.Chunk, error) {
	if len(spans) == 0 {
		return nil, services.Wrap(services.ErrSegmentation, "segment", "split", "empty plan", nil)
	}
	dir := s.ChunkDir(file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrSegmentation, "segment", "create chunk dir", dir, err)
	}
	logger := logging.WithContext(ctx, s.logger)

	chunks := make([]media.Chunk, 0, len(spans))
	var missing []int
	var cursor float64
	for index, span := range spans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dest := s.ChunkPath(file, index)
		actual, reused := s.reusable(ctx, dest, span)
		if !reused {
			if err := s.extractor.ExtractRange(ctx, file.Path, span.Start, span.Length(), dest); err != nil {
				return nil, services.Wrap(services.ErrMediaTool, "segment", "split", fmt.Sprintf("chunk %d", index), err)
			}
			measured, err := s.prober.Duration(ctx, dest)
			if err != nil || measured <= 0 {
				logger.Warn("chunk missing after split",
					logging.Chunk(index),
					logging.String("path", dest),
					logging.Error(err),
					logging.String(logging.FieldEventType, "chunk_missing"),
				)
				missing = append(missing, index)
				continue
			}
			actual = measured
		}
		logger.Debug("chunk ready",
			logging.Chunk(index),
			logging.Bool("reused", reused),
			logging.Span(span.Start, span.End),
			logging.Float64("planned_seconds", span.Length()),
			logging.Float64("actual_seconds", actual),
		)
		chunks = append(chunks, media.Chunk{
			Index:          index,
			Path:           dest,
			Start:          span.Start,
			End:            span.End,
			ActualStart:    cursor,
			ActualDuration: actual,
		})
		cursor += actual
	}
	if len(missing) > 0 || len(chunks) != len(spans) {
		return nil, services.Wrap(services.ErrSegmentation, "segment", "split", file.Path,
			&MismatchError{Planned: len(spans), Produced: len(chunks), Missing: missing})
	}
	return chunks, nil
}

func (s *Segmenter) reusable(ctx context.Context, path string, span media.Span) (float64, bool) {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return 0, false
	}
	actual, err := s.prober.Duration(ctx, path)
	if err != nil || math.Abs(actual-span.Length()) > reuseTolerance {
		return 0, false
	}
	return actual, true
}

// Cleanup removes the chunk directory of file. The original file is never
// touched, including when it served as its own single chunk.
func (s *Segmenter) Cleanup(file media.File) error {
	if !file.Chunked() {
		return nil
	}
	dir := s.ChunkDir(file)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove chunk dir %s: %w", dir, err)
	}
	return nil
}
