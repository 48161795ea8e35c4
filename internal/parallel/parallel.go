package parallel

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Mode selects how tasks are executed.
type Mode string

const (
	// ModeSerial runs tasks one after another on the calling goroutine.
	ModeSerial Mode = "serial"
	// ModePool runs tasks on a bounded set of goroutines.
	ModePool Mode = "pool"
)

// ParseMode maps a config value onto a Mode, defaulting to ModePool.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModePool:
		return ModePool, nil
	case ModeSerial:
		return ModeSerial, nil
	default:
		return "", fmt.Errorf("unknown execution mode %q", value)
	}
}

// Options configures Map.
type Options struct {
	Mode    Mode
	Workers int
}

// TaskResult is the outcome of one task. Index is the task's position in the
// submitted slice.
type TaskResult[T any] struct {
	Index   int
	Success bool
	Value   T
	Err     error
	Elapsed time.Duration
}

// Map runs fn over items and returns one result per item in submission
// order, regardless of completion order. Map returns only after every
// dispatched task has finished. A failing task does not stop the others;
// cancellation of ctx is checked between dispatches and undispatched items
// report ctx.Err().
func Map[I, T any](ctx context.Context, items []I, opts Options, fn func(ctx context.Context, index int, item I) (T, error)) []TaskResult[T] {
	results := make([]TaskResult[T], len(items))
	if len(items) == 0 {
		return results
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	if opts.Mode == ModeSerial {
		workers = 1
	}

	var group errgroup.Group
	group.SetLimit(workers)
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(items); j++ {
				results[j] = TaskResult[T]{Index: j, Err: err}
			}
			break
		}
		if opts.Mode == ModeSerial {
			results[i] = run(ctx, i, item, fn)
			continue
		}
		group.Go(func() error {
			// each goroutine writes only its own slot
			results[i] = run(ctx, i, item, fn)
			return nil
		})
	}
	_ = group.Wait()
	return results
}

func run[I, T any](ctx context.Context, index int, item I, fn func(ctx context.Context, index int, item I) (T, error)) (result TaskResult[T]) {
	start := time.Now()
	result.Index = index
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Err = fmt.Errorf("task %d panicked: %v\n%s", index, r, debug.Stack())
		}
		result.Elapsed = time.Since(start)
	}()
	value, err := fn(ctx, index, item)
	result.Value = value
	result.Err = err
	result.Success = err == nil
	return result
}

// Failed returns the results that did not succeed, in index order.
func Failed[T any](results []TaskResult[T]) []TaskResult[T] {
	var failed []TaskResult[T]
	for _, r := range results {
		if !r.Success {
			failed = append(failed, r)
		}
	}
	return failed
}
