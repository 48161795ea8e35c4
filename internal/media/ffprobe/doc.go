// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual audio/video stream properties
//   - Format: container-level metadata (duration, size, bitrate)
//
// Inspect executes ffprobe through a command.Runner and returns the parsed
// Result. Helper methods on Result count real video streams (cover art is
// ignored) and parse the container duration.
package ffprobe
