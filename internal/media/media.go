package media

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Kind is the coarse media type used to pick a processing path.
type Kind string

const (
	KindAudio Kind = "AUDIO"
	KindVideo Kind = "VIDEO"
)

var (
	audioExtensions = map[string]struct{}{
		".mp3": {}, ".wav": {}, ".aac": {}, ".m4a": {}, ".flac": {}, ".ogg": {}, ".wma": {},
	}
	videoExtensions = map[string]struct{}{
		".mp4": {}, ".avi": {}, ".mov": {}, ".mkv": {}, ".wmv": {}, ".flv": {}, ".webm": {},
	}
)

// KindFromExtension classifies path by extension. ok is false for unknown
// extensions.
func KindFromExtension(path string) (Kind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, found := audioExtensions[ext]; found {
		return KindAudio, true
	}
	if _, found := videoExtensions[ext]; found {
		return KindVideo, true
	}
	return "", false
}

// Supported reports whether folder scans should pick up path.
func Supported(path string) bool {
	_, ok := KindFromExtension(path)
	return ok
}

// File is one input recording. Chunks is attached by the segmenter and left
// untouched once transcription starts.
type File struct {
	Path     string  `json:"path"`
	Source   string  `json:"source,omitempty"`
	Kind     Kind    `json:"kind"`
	Duration float64 `json:"duration_seconds"`
	Dark     bool    `json:"dark,omitempty"`
	Chunks   []Chunk `json:"chunks,omitempty"`
}

// NeedsSplit reports whether the file is longer than the chunk threshold.
func (f File) NeedsSplit(threshold float64) bool {
	return threshold > 0 && f.Duration > threshold
}

// Chunked reports whether the file was physically split.
func (f File) Chunked() bool {
	return len(f.Chunks) > 1
}

// OriginalPath is the path the caller supplied, before any audio-only
// replacement.
func (f File) OriginalPath() string {
	if f.Source != "" {
		return f.Source
	}
	return f.Path
}

// Span is a [Start, End) interval on the original timeline, in seconds.
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Length returns End-Start.
func (s Span) Length() float64 {
	return s.End - s.Start
}

// Chunk is one physically split piece of a File. Start and End are the
// planned offsets; ActualStart and ActualDuration are measured from the files
// produced and are what timestamps are reconciled against.
type Chunk struct {
	Index          int     `json:"index"`
	Path           string  `json:"path"`
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	ActualStart    float64 `json:"actual_start"`
	ActualDuration float64 `json:"actual_duration"`
}

// ActualEnd is the measured end of the chunk on the original timeline.
func (c Chunk) ActualEnd() float64 {
	return c.ActualStart + c.ActualDuration
}

// Planned returns the planned span.
func (c Chunk) Planned() Span {
	return Span{Start: c.Start, End: c.End}
}

// Fingerprint identifies a source file by absolute path, size, and
// modification time.
func Fingerprint(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	sum := sha256.New()
	sum.Write([]byte(abs))
	sum.Write([]byte{0})
	sum.Write([]byte(strconv.FormatInt(info.Size(), 10)))
	sum.Write([]byte{0})
	sum.Write([]byte(strconv.FormatInt(info.ModTime().UnixNano(), 10)))
	return hex.EncodeToString(sum.Sum(nil))[:16], nil
}

// Stem returns the base file name without extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
