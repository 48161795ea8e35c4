package audit

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"recap/internal/logging"
	"recap/internal/media"
	"recap/internal/transcript"
)

// Retranscriber produces a fresh transcription of one unit, on the global
// timeline.
type Retranscriber func(ctx context.Context, unit Unit) (transcript.Result, error)

// RefineOptions bounds the re-transcription loop.
type RefineOptions struct {
	Threshold   Severity
	MaxAttempts int
	// UnitTexts holds the backend full text of each chunk by chunk index.
	// Units that are not re-transcribed keep that text; without an entry
	// their text is joined from segments.
	UnitTexts map[int]string
}

type score struct {
	severe, issues int
}

func scoreOf(findings []Finding, threshold Severity) score {
	var s score
	for _, f := range findings {
		if f.Unavailable || f.Severity.Rank() == 0 {
			continue
		}
		s.issues++
		if f.Severity.AtLeast(threshold) {
			s.severe++
		}
	}
	return s
}

func (s score) better(than score) bool {
	if s.severe != than.severe {
		return s.severe < than.severe
	}
	return s.issues < than.issues
}

// Refine re-transcribes units whose findings reach the threshold, re-audits
// each attempt, and keeps the attempt with the fewest severe findings. It
// returns the updated transcript and a report rebuilt from the kept attempts.
func (a *Auditor) Refine(ctx context.Context, result transcript.Result, file media.File, report Report, redo Retranscriber, opts RefineOptions) (transcript.Result, Report) {
	if redo == nil || opts.MaxAttempts <= 0 || opts.Threshold.Rank() == 0 {
		return result, report
	}
	units := Group(result, file)
	byUnit := make(map[int][]Finding, len(units))
	for _, f := range report.Findings {
		byUnit[f.Chunk] = append(byUnit[f.Chunk], f)
	}

	logger := logging.WithContext(ctx, a.logger)
	replaced := make(map[int]string)
	changed := false
	attempts := report.Retranscribed
	for i, unit := range units {
		best := byUnit[unit.Index]
		bestScore := scoreOf(best, opts.Threshold)
		if bestScore.severe == 0 {
			continue
		}
		logger.Info("re-transcribing unit",
			logging.Args(append(logging.DecisionAttrs("retranscribe", "retry",
				"findings at or above "+string(opts.Threshold)),
				logging.Chunk(unit.Index),
				logging.Int("severe", bestScore.severe))...)...)
		for attempt := 1; attempt <= opts.MaxAttempts && bestScore.severe > 0; attempt++ {
			if ctx.Err() != nil {
				break
			}
			attempts++
			fresh, err := redo(ctx, unit)
			if err != nil {
				logging.WarnWithContext(logger, "re-transcription failed", "retranscribe_failed",
					logging.Chunk(unit.Index),
					logging.Int("attempt", attempt),
					logging.Error(err),
					logging.String(logging.FieldImpact, "previous transcription kept"),
				)
				continue
			}
			candidate := unit
			candidate.Segments = fresh.Segments
			candidate.Positions = make([]int, len(fresh.Segments))
			for j := range candidate.Positions {
				candidate.Positions[j] = -1
			}
			findings := a.AuditUnit(ctx, candidate)
			if scoreOf(findings, opts.Threshold).better(bestScore) {
				units[i] = candidate
				replaced[unit.Index] = fresh.Text
				best = findings
				bestScore = scoreOf(findings, opts.Threshold)
				changed = true
			}
		}
		byUnit[unit.Index] = best
		logger.Info("re-transcription finished",
			logging.Chunk(unit.Index),
			logging.Int("severe", bestScore.severe),
			logging.Int("issues", bestScore.issues),
		)
	}
	if !changed {
		report.Retranscribed = attempts
		return result, report
	}

	originals := opts.UnitTexts
	if !file.Chunked() {
		originals = map[int]string{0: result.Text}
	}
	rebuilt := rebuild(result, units, replaced, originals)
	// positions shift once segments are replaced, so audit entries are
	// re-pointed by time
	refined := Report{Source: report.Source, Chunked: report.Chunked, Units: report.Units, GeneratedAt: report.GeneratedAt, Retranscribed: attempts}
	for _, unit := range units {
		for _, f := range byUnit[unit.Index] {
			f.Segment = locate(rebuilt.Segments, f)
			refined.Add(f)
		}
	}
	return rebuilt, refined
}

// rebuild reassembles the transcript from units. Replaced units take their
// fresh text; the rest keep their original text.
func rebuild(result transcript.Result, units []Unit, replaced, originals map[int]string) transcript.Result {
	out := result
	out.Segments = nil
	texts := make([]string, 0, len(units))
	for _, unit := range units {
		out.Segments = append(out.Segments, unit.Segments...)
		text, ok := replaced[unit.Index]
		if !ok {
			text, ok = originals[unit.Index]
		}
		if text = strings.TrimSpace(text); !ok || text == "" {
			text = transcript.JoinText(unit.Segments)
		}
		if text != "" {
			texts = append(texts, text)
		}
	}
	slices.SortStableFunc(out.Segments, func(a, b transcript.Segment) int { return cmp.Compare(a.Start, b.Start) })
	out.Text = strings.Join(texts, "\n")
	return out
}

func locate(segments []transcript.Segment, f Finding) int {
	if f.Unavailable {
		return -1
	}
	for i, seg := range segments {
		if seg.Start == f.Start && seg.End == f.End && seg.Text == f.Text {
			return i
		}
	}
	return -1
}
