// Package media defines the input model shared by probing, segmentation, and
// orchestration: the File being processed, the planned Span list, and the
// Chunks produced by splitting.
//
// Subpackages wrap the external tools: command (runner abstraction), ffprobe
// (JSON inspection), ffmpeg (extraction and luma sampling), probe (kind,
// duration, and darkness classification), and segment (planning and split).
package media
