package audit

import (
	"strings"
)

// CleanMarker is the phrase the audit prompt asks for when nothing is wrong.
const CleanMarker = "no hallucination detected"

// Block is one finding as written by the audit capability.
type Block struct {
	Segment    string
	Severity   Severity
	Reason     string
	Correction string
}

// ParseResponse splits an audit response into finding blocks. Blocks are
// separated by blank lines; a block without a SEGMENT line is ignored and an
// unrecognized severity reads as NONE.
func ParseResponse(text string) []Block {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.Contains(strings.ToLower(text), CleanMarker) && !strings.Contains(strings.ToUpper(text), "SEGMENT:") {
		return nil
	}
	var blocks []Block
	for _, raw := range strings.Split(text, "\n\n") {
		var (
			block Block
			found bool
		)
		for _, line := range strings.Split(raw, "\n") {
			key, value, ok := field(line)
			if !ok {
				continue
			}
			switch key {
			case "SEGMENT":
				if !found {
					block.Segment = value
					found = value != ""
				}
			case "SEVERITY":
				if sev, err := ParseSeverity(value); err == nil {
					block.Severity = sev
				}
			case "REASON":
				block.Reason = value
			case "CORRECTED":
				block.Correction = value
			}
		}
		if !found {
			continue
		}
		if block.Severity == "" {
			block.Severity = SeverityNone
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// field reads "KEY: value", tolerating list bullets and bold markers.
func field(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "-* ")
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	key = strings.ToUpper(strings.Trim(strings.TrimSpace(key), "*"))
	switch key {
	case "SEGMENT", "SEVERITY", "REASON", "CORRECTED":
	default:
		return "", "", false
	}
	value = strings.TrimSpace(strings.TrimLeft(value, "* "))
	return key, value, true
}
