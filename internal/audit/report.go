package audit

import (
	"fmt"
	"strings"
	"time"

	"recap/internal/transcript"
)

// Finding flags one transcript line, or a unit that could not be audited.
type Finding struct {
	Chunk int `json:"chunk"`
	// Segment indexes the merged transcript; -1 for unit-level entries.
	Segment     int      `json:"segment"`
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Line        string   `json:"line,omitempty"`
	Text        string   `json:"text,omitempty"`
	Severity    Severity `json:"severity"`
	Reason      string   `json:"reason,omitempty"`
	Correction  string   `json:"correction,omitempty"`
	Unavailable bool     `json:"unavailable,omitempty"`
}

// Report aggregates findings for one transcript.
type Report struct {
	Source        string           `json:"source"`
	Chunked       bool             `json:"chunked"`
	Units         int              `json:"units"`
	Findings      []Finding        `json:"findings"`
	Counts        map[Severity]int `json:"counts"`
	Unavailable   int              `json:"unavailable"`
	Retranscribed int              `json:"retranscribed"`
	GeneratedAt   time.Time        `json:"generated_at"`
}

// Add appends findings and updates the counts.
func (r *Report) Add(findings ...Finding) {
	if r.Counts == nil {
		r.Counts = make(map[Severity]int, len(Severities))
		for _, sev := range Severities {
			r.Counts[sev] = 0
		}
	}
	for _, f := range findings {
		r.Findings = append(r.Findings, f)
		r.Counts[f.Severity]++
		if f.Unavailable {
			r.Unavailable++
		}
	}
}

// Count returns the number of findings at exactly sev.
func (r Report) Count(sev Severity) int { return r.Counts[sev] }

// Issues counts findings above NONE.
func (r Report) Issues() int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity.Rank() > 0 {
			n++
		}
	}
	return n
}

// Max returns the highest severity found.
func (r Report) Max() Severity {
	highest := SeverityNone
	for _, f := range r.Findings {
		if f.Severity.Rank() > highest.Rank() {
			highest = f.Severity
		}
	}
	return highest
}

// Clean reports whether every unit was audited and nothing was flagged.
func (r Report) Clean() bool {
	return r.Issues() == 0 && r.Unavailable == 0
}

// FormatText renders the report for the plain-text output file.
func FormatText(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hallucination report: %s\n", r.Source)
	if !r.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "Generated: %s\n", r.GeneratedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Units audited: %d", r.Units)
	if r.Chunked {
		b.WriteString(" (per chunk)")
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Findings: %d\n", r.Issues())
	for _, sev := range []Severity{SeverityLow, SeverityMedium, SeverityHigh} {
		fmt.Fprintf(&b, "- %s: %d\n", sev, r.Count(sev))
	}
	if r.Unavailable > 0 {
		fmt.Fprintf(&b, "- unavailable units: %d\n", r.Unavailable)
	}
	if r.Retranscribed > 0 {
		fmt.Fprintf(&b, "- re-transcription attempts: %d\n", r.Retranscribed)
	}
	if r.Clean() {
		b.WriteString("\n" + CleanMarker + "\n")
		return b.String()
	}

	for i, f := range r.Findings {
		b.WriteString("\n")
		if f.Unavailable {
			fmt.Fprintf(&b, "%d. chunk %d [%s - %s]\n", i+1, f.Chunk, transcript.FormatTimestamp(f.Start), transcript.FormatTimestamp(f.End))
			fmt.Fprintf(&b, "   %s\n", f.Reason)
			continue
		}
		if f.Severity == SeverityNone {
			continue
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, f.Line)
		fmt.Fprintf(&b, "   severity: %s\n", f.Severity)
		if f.Reason != "" {
			fmt.Fprintf(&b, "   reason: %s\n", f.Reason)
		}
		if f.Correction != "" {
			fmt.Fprintf(&b, "   corrected: %s\n", f.Correction)
		}
	}
	return b.String()
}
