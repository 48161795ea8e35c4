// Package ffmpeg builds and runs the ffmpeg invocations the pipeline needs:
// audio extraction, time-range cuts, and single-frame luminance sampling.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"recap/internal/media/command"
)

// Tool invokes ffmpeg through a command.Runner.
type Tool struct {
	Binary string
	Run    command.Runner
}

// New returns a Tool for binary using run, falling back to ffmpeg and
// command.Exec.
func New(binary string, run command.Runner) Tool {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return Tool{Binary: binary, Run: command.Or(run)}
}

func (t Tool) exec(ctx context.Context, args ...string) ([]byte, error) {
	binary := t.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	return command.Or(t.Run)(ctx, binary, args...)
}

// ExtractAudio drops every video stream and writes the audio to dest, encoded
// for dest's extension.
func (t Tool) ExtractAudio(ctx context.Context, source, dest string) error {
	if strings.TrimSpace(source) == "" || strings.TrimSpace(dest) == "" {
		return errors.New("ffmpeg extract audio: source and destination required")
	}
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", source, "-vn", "-sn", "-dn"}
	args = append(args, audioCodecArgs(dest)...)
	args = append(args, dest)
	if _, err := t.exec(ctx, args...); err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w", err)
	}
	return nil
}

// ExtractRange copies [start, start+duration) seconds of source into dest
// without re-encoding. Cut points snap to packet boundaries so callers must
// probe dest for its real length.
func (t Tool) ExtractRange(ctx context.Context, source string, start, duration float64, dest string) error {
	if strings.TrimSpace(source) == "" || strings.TrimSpace(dest) == "" {
		return errors.New("ffmpeg extract range: source and destination required")
	}
	if duration <= 0 {
		return fmt.Errorf("ffmpeg extract range: invalid duration %.3f", duration)
	}
	if start < 0 {
		start = 0
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-i", source,
		"-map", "0",
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		dest,
	}
	if _, err := t.exec(ctx, args...); err != nil {
		return fmt.Errorf("ffmpeg extract range: %w", err)
	}
	return nil
}

var yavgPattern = regexp.MustCompile(`lavfi\.signalstats\.YAVG=([0-9]+(?:\.[0-9]+)?)`)

// FrameLuma returns the average luma (0-255) of the frame at the given
// position in seconds.
func (t Tool) FrameLuma(ctx context.Context, source string, at float64) (float64, error) {
	args := []string{
		"-hide_banner",
		"-nostats",
		"-ss", formatSeconds(at),
		"-i", source,
		"-frames:v", "1",
		"-vf", "signalstats,metadata=print:key=lavfi.signalstats.YAVG",
		"-an",
		"-f", "null",
		"-",
	}
	output, err := t.exec(ctx, args...)
	if err != nil {
		return 0, fmt.Errorf("ffmpeg frame luma: %w", err)
	}
	return ParseLuma(output)
}

// ParseLuma extracts the YAVG value printed by the signalstats metadata filter.
func ParseLuma(output []byte) (float64, error) {
	match := yavgPattern.FindSubmatch(output)
	if match == nil {
		return 0, fmt.Errorf("ffmpeg frame luma: no YAVG in output: %s", command.Excerpt(output))
	}
	value, err := strconv.ParseFloat(string(match[1]), 64)
	if err != nil {
		return 0, fmt.Errorf("ffmpeg frame luma: %w", err)
	}
	return value, nil
}

func audioCodecArgs(dest string) []string {
	switch strings.ToLower(filepath.Ext(dest)) {
	case ".wav":
		return []string{"-ac", "1", "-ar", "16000", "-c:a", "pcm_s16le"}
	case ".mp3":
		return []string{"-c:a", "libmp3lame", "-q:a", "4"}
	case ".flac":
		return []string{"-c:a", "flac"}
	case ".ogg":
		return []string{"-c:a", "libopus", "-b:a", "64k"}
	default:
		return []string{"-c:a", "aac", "-b:a", "128k"}
	}
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}
