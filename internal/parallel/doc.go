// Package parallel provides a bounded fan-out/fan-in map used for chunk
// transcription and per-chunk audits. Results are keyed by submission index
// so callers never depend on completion order.
package parallel
