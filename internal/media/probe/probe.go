package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"recap/internal/logging"
	"recap/internal/media"
	"recap/internal/media/command"
	"recap/internal/media/ffmpeg"
	"recap/internal/media/ffprobe"
	"recap/internal/services"
)

// DefaultSamplePositions are the fractions of the duration sampled for the
// dark-video check.
var DefaultSamplePositions = []float64{0.10, 0.30, 0.50, 0.70}

// Options configures a Prober.
type Options struct {
	FFprobeBinary string
	FFmpegBinary  string
	Runner        command.Runner
	// LumaThreshold is the average luma (0-255) below which a frame counts as dark.
	LumaThreshold float64
	// DarkFraction is the share of sampled frames that must be dark.
	DarkFraction    float64
	SamplePositions []float64
	Logger          *slog.Logger
}

// Prober measures and classifies media files.
type Prober struct {
	ffprobeBinary string
	run           command.Runner
	ffmpeg        ffmpeg.Tool
	threshold     float64
	fraction      float64
	positions     []float64
	logger        *slog.Logger
}

// New constructs a Prober from opts, filling defaults.
func New(opts Options) *Prober {
	threshold := opts.LumaThreshold
	if threshold <= 0 {
		threshold = 10
	}
	fraction := opts.DarkFraction
	if fraction <= 0 || fraction > 1 {
		fraction = 1
	}
	positions := opts.SamplePositions
	if len(positions) == 0 {
		positions = DefaultSamplePositions
	}
	return &Prober{
		ffprobeBinary: opts.FFprobeBinary,
		run:           command.Or(opts.Runner),
		ffmpeg:        ffmpeg.New(opts.FFmpegBinary, opts.Runner),
		threshold:     threshold,
		fraction:      fraction,
		positions:     append([]float64(nil), positions...),
		logger:        logging.NewComponentLogger(opts.Logger, "probe"),
	}
}

// Probe returns the kind and duration of path. Any failure to establish a
// positive duration is reported as services.ErrMediaUnreadable.
func (p *Prober) Probe(ctx context.Context, path string) (media.File, error) {
	if _, err := os.Stat(path); err != nil {
		return media.File{}, services.Wrap(services.ErrMediaUnreadable, "probe", "stat", path, err)
	}
	result, err := ffprobe.Inspect(ctx, p.run, p.ffprobeBinary, path)
	if err != nil {
		return media.File{}, services.Wrap(services.ErrMediaUnreadable, "probe", "ffprobe", path, fmt.Errorf("%w: %w", services.ErrMediaTool, err))
	}
	duration := result.DurationSeconds()
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return media.File{}, services.Wrap(services.ErrMediaUnreadable, "probe", "duration", fmt.Sprintf("%s: no usable duration (%q)", path, result.Format.Duration), nil)
	}
	kind, err := classify(path, result)
	if err != nil {
		return media.File{}, err
	}
	file := media.File{Path: path, Kind: kind, Duration: duration}
	p.logger.Debug("media probed",
		logging.String("path", path),
		logging.String("kind", string(kind)),
		logging.Float64("duration_seconds", duration),
		logging.Int("audio_streams", result.AudioStreamCount()),
		logging.Int("video_streams", result.VideoStreamCount()),
	)
	return file, nil
}

// Duration returns the measured duration of path in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	result, err := ffprobe.Inspect(ctx, p.run, p.ffprobeBinary, path)
	if err != nil {
		return 0, services.Wrap(services.ErrMediaTool, "probe", "ffprobe", path, err)
	}
	duration := result.DurationSeconds()
	if math.IsNaN(duration) || duration <= 0 {
		return 0, services.Wrap(services.ErrMediaTool, "probe", "duration", fmt.Sprintf("%s: no usable duration", path), nil)
	}
	return duration, nil
}

func classify(path string, result ffprobe.Result) (media.Kind, error) {
	videos := result.VideoStreamCount()
	audios := result.AudioStreamCount()
	kind, known := media.KindFromExtension(path)
	switch {
	case known && kind == media.KindVideo && videos == 0 && audios > 0:
		return media.KindAudio, nil
	case known:
		return kind, nil
	case videos > 0:
		return media.KindVideo, nil
	case audios > 0:
		return media.KindAudio, nil
	default:
		return "", services.Wrap(services.ErrMediaUnreadable, "probe", "classify", fmt.Sprintf("%s: no audio or video streams", path), nil)
	}
}

// IsDarkVideo samples luma at fixed positions and reports whether at least
// the configured fraction of readable samples fall under the threshold.
// Audio files are never dark. When no sample can be read the error is
// returned with false.
func (p *Prober) IsDarkVideo(ctx context.Context, file media.File) (bool, error) {
	if file.Kind != media.KindVideo {
		return false, nil
	}
	var (
		checked int
		dark    int
		lastErr error
	)
	for _, position := range p.positions {
		at := file.Duration * position
		luma, err := p.ffmpeg.FrameLuma(ctx, file.Path, at)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			lastErr = err
			p.logger.Debug("luma sample failed", logging.Float64("position_seconds", at), logging.Error(err))
			continue
		}
		checked++
		if luma < p.threshold {
			dark++
		}
	}
	if checked == 0 {
		if lastErr == nil {
			lastErr = errors.New("no sample positions configured")
		}
		return false, services.Wrap(services.ErrMediaTool, "probe", "dark check", file.Path, lastErr)
	}
	required := int(math.Ceil(p.fraction * float64(checked)))
	if required < 1 {
		required = 1
	}
	isDark := dark >= required
	result := "normal"
	if isDark {
		result = "dark"
	}
	p.logger.Info("dark video check",
		logging.Args(append(logging.DecisionAttrs("dark_video", result,
			fmt.Sprintf("%d of %d samples below luma %.1f (need %d)", dark, checked, p.threshold, required)),
			logging.String("path", file.Path))...)...,
	)
	return isDark, nil
}

// AudioOnly extracts the audio of file into dest and returns a File for the
// extracted unit. Source keeps the original path.
func (p *Prober) AudioOnly(ctx context.Context, file media.File, dest string) (media.File, error) {
	if err := p.ffmpeg.ExtractAudio(ctx, file.Path, dest); err != nil {
		return media.File{}, services.Wrap(services.ErrMediaTool, "probe", "extract audio", file.Path, err)
	}
	duration, err := p.Duration(ctx, dest)
	if err != nil {
		return media.File{}, err
	}
	return media.File{
		Path:     dest,
		Source:   file.OriginalPath(),
		Kind:     media.KindAudio,
		Duration: duration,
		Dark:     file.Dark,
	}, nil
}
