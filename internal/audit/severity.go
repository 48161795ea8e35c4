package audit

import (
	"fmt"
	"strings"
)

// Severity grades how far a transcript line departs from the recording.
type Severity string

const (
	SeverityNone   Severity = "NONE"
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Severities lists every level from least to most severe.
var Severities = []Severity{SeverityNone, SeverityLow, SeverityMedium, SeverityHigh}

// Rank orders severities; unknown values rank with NONE.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as floor.
func (s Severity) AtLeast(floor Severity) bool {
	return s.Rank() >= floor.Rank()
}

// ParseSeverity accepts a severity name in any case.
func ParseSeverity(value string) (Severity, error) {
	switch sev := Severity(strings.ToUpper(strings.TrimSpace(value))); sev {
	case SeverityNone, SeverityLow, SeverityMedium, SeverityHigh:
		return sev, nil
	default:
		return SeverityNone, fmt.Errorf("unknown severity %q", value)
	}
}
