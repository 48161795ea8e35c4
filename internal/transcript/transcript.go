package transcript

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Segment is one timed span of speech. Start and End are seconds relative to
// the unit that produced it until the orchestrator moves them onto the global
// timeline.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
	Text    string  `json:"text"`
}

// Duration returns End-Start, never negative.
func (s Segment) Duration() float64 {
	if s.End < s.Start {
		return 0
	}
	return s.End - s.Start
}

// Result is the output of transcribing one unit, or the merged output of a
// chunked run. Empty Text with no Segments is a valid silent result.
type Result struct {
	Source   string    `json:"source"`
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language,omitempty"`
}

// Empty reports whether the result carries no speech.
func (r Result) Empty() bool {
	return strings.TrimSpace(r.Text) == "" && len(r.Segments) == 0
}

// Shifted returns a copy whose segments are offset by the given seconds.
func (r Result) Shifted(offset float64) Result {
	out := r
	out.Segments = make([]Segment, len(r.Segments))
	for i, seg := range r.Segments {
		seg.Start += offset
		seg.End += offset
		out.Segments[i] = seg
	}
	return out
}

// TrimBefore drops segments that end at or before the cutoff and clamps a
// segment straddling it. Used when a resumed chunk starts mid-way. When any
// segment is dropped the full text is rebuilt from the kept segments.
func (r Result) TrimBefore(cutoff float64) Result {
	if cutoff <= 0 {
		return r
	}
	out := r
	out.Segments = make([]Segment, 0, len(r.Segments))
	for _, seg := range r.Segments {
		if seg.End <= cutoff && seg.End > 0 {
			continue
		}
		if seg.Start < cutoff {
			seg.Start = cutoff
		}
		out.Segments = append(out.Segments, seg)
	}
	if len(out.Segments) < len(r.Segments) {
		out.Text = JoinText(out.Segments)
	}
	return out
}

// JoinText builds the full text from segment text when a backend did not
// return one.
func JoinText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

var speakerCaser = cases.Title(language.Und, cases.NoLower)

// NormalizeSpeaker trims a speaker label and title-cases Latin labels so
// "speaker 1" and "Speaker 1" collapse to one name.
func NormalizeSpeaker(label string) string {
	label = strings.Join(strings.Fields(label), " ")
	if label == "" {
		return ""
	}
	return speakerCaser.String(label)
}
