package transcript

import (
	"bufio"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var timedLine = regexp.MustCompile(`^\[\s*((?:\d+:)?\d{1,2}:\d{2}(?:\.\d+)?)\s*[-–~]\s*((?:\d+:)?\d{1,2}:\d{2}(?:\.\d+)?)\s*\]\s*(.*)$`)

const maxSpeakerLabelRunes = 40

// ParseLines parses transcript text in the line format
//
//	[HH:MM:SS - HH:MM:SS] Speaker: text
//
// A line without a timestamp continues the previous segment. Text before the
// first timestamp becomes an untimed segment at zero.
func ParseLines(text string) ([]Segment, error) {
	var segments []Segment
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		match := timedLine.FindStringSubmatch(line)
		if match == nil {
			if len(segments) == 0 {
				segments = append(segments, Segment{Text: line})
				continue
			}
			last := &segments[len(segments)-1]
			last.Text = strings.TrimSpace(last.Text + " " + line)
			continue
		}
		start, err := ParseTimestamp(match[1])
		if err != nil {
			return nil, err
		}
		end, err := ParseTimestamp(match[2])
		if err != nil {
			return nil, err
		}
		if end < start {
			end = start
		}
		speaker, body := splitSpeaker(match[3])
		segments = append(segments, Segment{Start: start, End: end, Speaker: speaker, Text: body})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	return segments, nil
}

func splitSpeaker(rest string) (string, string) {
	rest = strings.TrimSpace(rest)
	for _, sep := range []string{": ", "：", ":"} {
		idx := strings.Index(rest, sep)
		if idx <= 0 {
			continue
		}
		label := strings.TrimSpace(rest[:idx])
		if len([]rune(label)) > maxSpeakerLabelRunes || strings.ContainsAny(label, ".!?。") {
			return "", rest
		}
		return NormalizeSpeaker(label), strings.TrimSpace(rest[idx+len(sep):])
	}
	return "", rest
}

// ParseTimestamp accepts HH:MM:SS, MM:SS, and fractional seconds.
func ParseTimestamp(value string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("parse timestamp %q: expected MM:SS or HH:MM:SS", value)
	}
	var total float64
	for _, part := range parts {
		n, err := strconv.ParseFloat(part, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("parse timestamp %q: invalid component %q", value, part)
		}
		total = total*60 + n
	}
	return total, nil
}

// FormatTimestamp renders seconds as HH:MM:SS, truncating fractions.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// FormatLine renders one segment in the line format.
func FormatLine(seg Segment) string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(FormatTimestamp(seg.Start))
	b.WriteString(" - ")
	b.WriteString(FormatTimestamp(seg.End))
	b.WriteString("] ")
	if seg.Speaker != "" {
		b.WriteString(seg.Speaker)
		b.WriteString(": ")
	}
	b.WriteString(strings.TrimSpace(seg.Text))
	return b.String()
}

// FormatLines renders segments one per line.
func FormatLines(segments []Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		b.WriteString(FormatLine(seg))
		b.WriteByte('\n')
	}
	return b.String()
}
