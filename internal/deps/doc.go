// Package deps resolves the external programs recap shells out to (ffmpeg,
// ffprobe, uvx) and reports their availability for doctor output.
package deps
