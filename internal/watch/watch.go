package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"recap/internal/logging"
	"recap/internal/media"
)

const defaultSettle = 5 * time.Second

// Handler processes one media file that has stopped changing.
type Handler func(ctx context.Context, path string) error

// Options configures a Watcher.
type Options struct {
	// Settle is how long a file must go without events before it is handled.
	Settle time.Duration
	Logger *slog.Logger
}

// Watcher hands new media files in one directory to a Handler, one at a time.
type Watcher struct {
	dir     string
	handler Handler
	settle  time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	handled map[string]time.Time
	ready   chan string
}

// New creates a watcher for dir.
func New(dir string, handler Handler, opts Options) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch dir: %s is not a directory", dir)
	}
	if handler == nil {
		return nil, errors.New("watch: handler required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	settle := opts.Settle
	if settle <= 0 {
		settle = defaultSettle
	}
	return &Watcher{
		dir:     dir,
		handler: handler,
		settle:  settle,
		logger:  logging.NewComponentLogger(logger, "watch"),
		pending: make(map[string]*time.Timer),
		handled: make(map[string]time.Time),
		ready:   make(chan string, 64),
	}, nil
}

// Run watches until ctx is cancelled. Handler errors are logged and do not
// stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching directory", logging.String("dir", w.dir), logging.Duration("settle", w.settle))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.process(ctx)
	}()
	defer func() {
		w.stopTimers()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "watcher error", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some file events may be missed"),
			)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	if !Eligible(event.Name) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[event.Name]; ok {
		timer.Reset(w.settle)
		return
	}
	path := event.Name
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		default:
			w.logger.Warn("watch queue full; file skipped", logging.String("path", path))
		}
	})
}

func (w *Watcher) process(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.ready:
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			w.mu.Lock()
			seen, done := w.handled[path]
			w.mu.Unlock()
			if done && !info.ModTime().After(seen) {
				continue
			}
			logger := w.logger.With(logging.String("path", path))
			logger.Info("processing new file")
			if err := w.handler(ctx, path); err != nil {
				logging.ErrorWithContext(logger, "watched file failed", "watch_handler_failed", logging.Error(err))
			}
			w.mu.Lock()
			w.handled[path] = info.ModTime()
			w.mu.Unlock()
		}
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}

// Eligible reports whether path looks like a finished media file.
func Eligible(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") || strings.HasSuffix(base, ".part") {
		return false
	}
	return media.Supported(path)
}
