// Package audit checks transcripts for hallucinated lines.
//
// A chunked transcript is grouped back into its chunks and each group is
// audited against the chunk's own media with chunk-local timestamps, so the
// audit capability only ever compares text with the audio it came from.
// Findings are mapped back to merged-transcript positions and global time.
// Audit failures never propagate: a unit that cannot be audited contributes
// an "audit unavailable" entry at NONE severity.
//
// Refine re-transcribes units whose findings reach a severity threshold and
// keeps the attempt with the fewest severe findings.
package audit
