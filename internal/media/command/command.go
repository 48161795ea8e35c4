// Package command runs external media executables behind a swappable Runner
// so callers can substitute canned output in tests.
package command

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes name with args and returns combined stdout and stderr.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

const maxOutputExcerpt = 512

// Exec is the default Runner backed by os/exec.
func Exec(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return output, fmt.Errorf("%s: %w", name, ctxErr)
		}
		return output, fmt.Errorf("%s: %w: %s", name, err, Excerpt(output))
	}
	return output, nil
}

// Or returns r, or Exec when r is nil.
func Or(r Runner) Runner {
	if r == nil {
		return Exec
	}
	return r
}

// Excerpt trims tool output to a loggable tail.
func Excerpt(output []byte) string {
	text := strings.TrimSpace(string(output))
	if len(text) <= maxOutputExcerpt {
		return text
	}
	return "..." + text[len(text)-maxOutputExcerpt:]
}

// NotFound reports whether err means the executable is missing.
func NotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}
