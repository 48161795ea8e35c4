package orchestrator

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"recap/internal/media"
	"recap/internal/transcript"
)

// ChunkOutcome is the result of one chunk. Result is on the global timeline.
type ChunkOutcome struct {
	Index    int
	Chunk    media.Chunk
	Result   transcript.Result
	Err      error
	Attempts int
	Reused   bool
	Elapsed  time.Duration
}

// Succeeded reports whether the chunk produced a result.
func (o ChunkOutcome) Succeeded() bool { return o.Err == nil }

// Merge combines successful outcomes into one transcript. Segments are
// concatenated in chunk order and stable-sorted by start time; text is the
// chunk texts joined in chunk order. The result depends only on the set of
// outcomes, not on their order in the slice.
func Merge(outcomes []ChunkOutcome) transcript.Result {
	ordered := slices.Clone(outcomes)
	slices.SortStableFunc(ordered, func(a, b ChunkOutcome) int { return cmp.Compare(a.Index, b.Index) })

	var (
		merged transcript.Result
		texts  []string
	)
	for _, outcome := range ordered {
		if !outcome.Succeeded() {
			continue
		}
		merged.Segments = append(merged.Segments, outcome.Result.Segments...)
		if text := strings.TrimSpace(outcome.Result.Text); text != "" {
			texts = append(texts, text)
		}
		if merged.Language == "" {
			merged.Language = outcome.Result.Language
		}
	}
	slices.SortStableFunc(merged.Segments, func(a, b transcript.Segment) int { return cmp.Compare(a.Start, b.Start) })
	merged.Text = strings.Join(texts, "\n")
	return merged
}

// Failures lists the outcomes that did not succeed, in chunk order.
func Failures(outcomes []ChunkOutcome) []ChunkFailure {
	var failures []ChunkFailure
	for _, outcome := range outcomes {
		if outcome.Succeeded() {
			continue
		}
		failures = append(failures, ChunkFailure{Index: outcome.Index, Attempts: outcome.Attempts, Err: outcome.Err})
	}
	slices.SortFunc(failures, func(a, b ChunkFailure) int { return cmp.Compare(a.Index, b.Index) })
	return failures
}
