package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")

	ErrMediaUnreadable     = errors.New("media unreadable")
	ErrMediaTool           = errors.New("media tool error")
	ErrSegmentation        = errors.New("segmentation error")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrAuditUnavailable    = errors.New("audit unavailable")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ExitCode maps a pipeline error to the process exit status used by the CLI.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return 2
	case errors.Is(err, ErrMediaUnreadable), errors.Is(err, ErrNotFound):
		return 3
	case errors.Is(err, ErrSegmentation), errors.Is(err, ErrMediaTool):
		return 4
	case errors.Is(err, ErrTranscriptionFailed):
		return 5
	default:
		return 1
	}
}

// StatusError reports a non-success response from a remote service. Backends
// return it so a single retry policy can classify every transport.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	service := strings.TrimSpace(e.Service)
	if service == "" {
		service = "remote"
	}
	return fmt.Sprintf("%s request: http %d: %s", service, e.StatusCode, strings.TrimSpace(e.Body))
}

// Temporary reports whether the status indicates a condition worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
