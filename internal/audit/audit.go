package audit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"recap/internal/logging"
	"recap/internal/media"
	"recap/internal/parallel"
	"recap/internal/retry"
	"recap/internal/services"
	"recap/internal/transcript"
)

// Generator answers a prompt about one media file. The Gemini client
// satisfies it.
type Generator interface {
	GenerateWithMedia(ctx context.Context, path, prompt string) (string, error)
}

// Options configures an Auditor.
type Options struct {
	// Prompt precedes the transcript lines in every request.
	Prompt string
	// RequestsPerMinute caps audit calls; zero disables the limit.
	RequestsPerMinute int
	Parallel          parallel.Options
	Policy            retry.Policy
	Logger            *slog.Logger
	Now               func() time.Time
}

// Auditor checks transcripts against the media they came from.
type Auditor struct {
	gen     Generator
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New constructs an Auditor.
func New(gen Generator, opts Options) *Auditor {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60), opts.RequestsPerMinute)
	}
	return &Auditor{gen: gen, opts: opts, limiter: limiter, logger: logging.NewComponentLogger(logger, "audit")}
}

// Unit is the slice of a transcript produced from one media unit.
type Unit struct {
	Index int
	Path  string
	// Offset is the unit's start on the global timeline.
	Offset float64
	// Segments are on the global timeline; Positions holds their indices in
	// the merged transcript.
	Segments  []transcript.Segment
	Positions []int
}

// Local returns the unit's segments on the unit's own timeline.
func (u Unit) Local() []transcript.Segment {
	return transcript.Result{Segments: u.Segments}.Shifted(-u.Offset).Segments
}

// Group splits a transcript back into the units it was transcribed from. A
// segment belongs to the chunk whose measured span contains its start; the
// last chunk also takes anything past its end.
func Group(result transcript.Result, file media.File) []Unit {
	if !file.Chunked() {
		unit := Unit{Index: 0, Path: file.Path, Segments: result.Segments}
		for i := range result.Segments {
			unit.Positions = append(unit.Positions, i)
		}
		return []Unit{unit}
	}
	units := make([]Unit, len(file.Chunks))
	for i, chunk := range file.Chunks {
		units[i] = Unit{Index: chunk.Index, Path: chunk.Path, Offset: chunk.ActualStart}
	}
	last := len(file.Chunks) - 1
	for pos, seg := range result.Segments {
		target := last
		for i, chunk := range file.Chunks {
			if seg.Start < chunk.ActualEnd() {
				target = i
				break
			}
		}
		units[target].Segments = append(units[target].Segments, seg)
		units[target].Positions = append(units[target].Positions, pos)
	}
	return units
}

// Audit checks every unit of result against its own media and aggregates
// the findings in unit order. It never fails; an unusable unit contributes a
// NONE finding marked unavailable.
func (a *Auditor) Audit(ctx context.Context, result transcript.Result, file media.File) Report {
	ctx = services.WithStage(ctx, "audit")
	logger := logging.WithContext(ctx, a.logger)
	units := Group(result, file)
	if file.Chunked() {
		logger.Info("audit grouping",
			logging.Args(append(logging.DecisionAttrs("audit_grouping", "per_chunk",
				fmt.Sprintf("%d chunk(s) audited against their own media", len(units))),
				logging.Int("segments", len(result.Segments)))...)...)
	}

	results := parallel.Map(ctx, units, a.opts.Parallel, func(ctx context.Context, _ int, unit Unit) ([]Finding, error) {
		return a.AuditUnit(ctx, unit), nil
	})
	report := Report{Source: file.OriginalPath(), Chunked: file.Chunked(), Units: len(units), GeneratedAt: a.opts.Now()}
	for i, res := range results {
		findings := res.Value
		if res.Err != nil {
			findings = []Finding{unavailable(units[i], res.Err)}
		}
		report.Add(findings...)
	}
	logger.Info("audit complete",
		logging.Int("findings", report.Issues()),
		logging.Int("unavailable", report.Unavailable),
		logging.String("max_severity", string(report.Max())),
	)
	return report
}

// AuditUnit audits one unit. Findings carry global times and positions.
func (a *Auditor) AuditUnit(ctx context.Context, unit Unit) []Finding {
	ctx = services.WithChunkIndex(ctx, unit.Index)
	logger := logging.WithContext(ctx, a.logger)
	if len(unit.Segments) == 0 {
		logger.Debug("unit has no segments; audit skipped")
		return nil
	}
	if _, err := os.Stat(unit.Path); err != nil {
		return []Finding{a.downgrade(ctx, unit, err)}
	}

	local := unit.Local()
	lines := transcript.FormatLines(local)
	prompt := strings.TrimRight(a.opts.Prompt, "\n") + "\n" + lines

	var response string
	_, err := a.opts.Policy.Do(ctx, fmt.Sprintf("audit unit %d", unit.Index), func(ctx context.Context, _ int) error {
		if err := a.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
		text, err := a.gen.GenerateWithMedia(ctx, unit.Path, prompt)
		if err != nil {
			return err
		}
		response = text
		return nil
	})
	if err != nil {
		return []Finding{a.downgrade(ctx, unit, err)}
	}

	blocks := ParseResponse(response)
	findings := make([]Finding, 0, len(blocks))
	for _, block := range blocks {
		idx := match(block.Segment, local)
		if idx < 0 {
			logging.WarnWithContext(logger, "audit finding does not match a transcript line", "audit_unmatched",
				logging.String("segment", block.Segment),
				logging.String(logging.FieldImpact, "finding dropped"),
			)
			continue
		}
		seg := unit.Segments[idx]
		findings = append(findings, Finding{
			Chunk:      unit.Index,
			Segment:    unit.Positions[idx],
			Start:      seg.Start,
			End:        seg.End,
			Line:       transcript.FormatLine(seg),
			Text:       seg.Text,
			Severity:   block.Severity,
			Reason:     block.Reason,
			Correction: block.Correction,
		})
	}
	logger.Info("unit audited", logging.Int("findings", len(findings)), logging.Int("segments", len(unit.Segments)))
	return findings
}

func (a *Auditor) downgrade(ctx context.Context, unit Unit, err error) Finding {
	wrapped := services.Wrap(services.ErrAuditUnavailable, "audit", fmt.Sprintf("unit %d", unit.Index), "", err)
	logging.WarnWithContext(logging.WithContext(ctx, a.logger), "audit unavailable", "audit_unavailable",
		logging.Error(wrapped),
		logging.String(logging.FieldErrorHint, "check audit backend credentials and quota"),
		logging.String(logging.FieldImpact, "unit reported without an audit"),
	)
	return unavailable(unit, wrapped)
}

func unavailable(unit Unit, err error) Finding {
	f := Finding{Chunk: unit.Index, Segment: -1, Severity: SeverityNone, Unavailable: true, Reason: "audit unavailable"}
	if err != nil {
		f.Reason = "audit unavailable: " + err.Error()
	}
	if len(unit.Segments) > 0 {
		f.Start = unit.Segments[0].Start
		f.End = unit.Segments[len(unit.Segments)-1].End
	}
	return f
}

// match finds the segment a reported line refers to: the formatted line
// contained in the report (or the reverse), falling back to the text alone.
func match(reported string, segments []transcript.Segment) int {
	reported = strings.TrimSpace(reported)
	if reported == "" {
		return -1
	}
	for i, seg := range segments {
		line := transcript.FormatLine(seg)
		if strings.Contains(reported, line) || strings.Contains(line, reported) {
			return i
		}
	}
	for i, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" && strings.Contains(reported, text) {
			return i
		}
	}
	return -1
}
