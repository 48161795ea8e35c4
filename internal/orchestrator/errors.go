package orchestrator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"recap/internal/services"
)

// ChunkFailure names a chunk that produced no result and why.
type ChunkFailure struct {
	Index    int
	Attempts int
	Err      error
}

func (f ChunkFailure) String() string {
	if f.Err == nil {
		return fmt.Sprintf("chunk %d", f.Index)
	}
	return fmt.Sprintf("chunk %d after %d attempt(s): %v", f.Index, f.Attempts, f.Err)
}

// PartialError reports chunks that permanently failed. It matches
// services.ErrTranscriptionFailed.
type PartialError struct {
	Total   int
	Missing []ChunkFailure
}

func (e *PartialError) Error() string {
	indices := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		indices = append(indices, strconv.Itoa(m.Index))
	}
	msg := fmt.Sprintf("%d of %d chunk(s) failed: missing [%s]", len(e.Missing), e.Total, strings.Join(indices, ", "))
	if first, ok := e.FirstMissing(); ok {
		msg += fmt.Sprintf("; resume with --start-file %d", first)
	}
	return msg
}

func (e *PartialError) Is(target error) bool {
	return target == services.ErrTranscriptionFailed
}

// Unwrap exposes the individual chunk causes.
func (e *PartialError) Unwrap() []error {
	errs := make([]error, 0, len(e.Missing))
	for _, m := range e.Missing {
		if m.Err != nil {
			errs = append(errs, m.Err)
		}
	}
	return errs
}

// FirstMissing returns the lowest failed chunk index.
func (e *PartialError) FirstMissing() (int, bool) {
	if e == nil || len(e.Missing) == 0 {
		return 0, false
	}
	lowest := e.Missing[0].Index
	for _, m := range e.Missing[1:] {
		lowest = min(lowest, m.Index)
	}
	return lowest, true
}

// AsPartial extracts a PartialError from err.
func AsPartial(err error) (*PartialError, bool) {
	var partial *PartialError
	if errors.As(err, &partial) {
		return partial, true
	}
	return nil, false
}
