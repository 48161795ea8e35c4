package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"recap/internal/media"
	"recap/internal/notifications"
	"recap/internal/orchestrator"
	"recap/internal/services"
	"recap/internal/testsupport"
	"recap/internal/transcription"
)

type publishedEvent struct {
	event   notifications.Event
	payload notifications.Payload
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (n *fakeNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, publishedEvent{event: event, payload: payload})
	return n.err
}

func TestProcessPublishesRunOutcome(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAudit())
	ok := sourceFile(t, cfg, "ok.mp3")
	bad := sourceFile(t, cfg, "bad.mp3")
	trans := newFakeTranscriber()
	trans.fail[bad] = &transcription.FailedError{Unit: bad, Attempts: 1, Err: services.ErrTransient}
	notifier := &fakeNotifier{}

	runner := New(cfg, Deps{
		Prober: &fakeProber{files: map[string]media.File{
			ok:  {Kind: media.KindAudio, Duration: 30},
			bad: {Kind: media.KindAudio, Duration: 30},
		}},
		Segmenter:   &fakeSegmenter{dir: cfg.Paths.WorkDir},
		Transcriber: trans,
		Notifier:    notifier,
	})

	if _, err := runner.Process(context.Background(), ok, orchestrator.Resume{}); err != nil {
		t.Fatalf("Process ok: %v", err)
	}
	if _, err := runner.Process(context.Background(), bad, orchestrator.Resume{}); err == nil {
		t.Fatal("expected failure for bad.mp3")
	}

	if len(notifier.events) != 2 {
		t.Fatalf("expected two events, got %+v", notifier.events)
	}
	done, failed := notifier.events[0], notifier.events[1]
	if done.event != notifications.EventRunCompleted || done.payload["source"] != "ok.mp3" {
		t.Fatalf("unexpected completion event %+v", done)
	}
	if done.payload["transcript"] != filepath.Join(cfg.Paths.OutputDir, "ok_transcript.txt") {
		t.Fatalf("completion event missing transcript path: %+v", done.payload)
	}
	if failed.event != notifications.EventRunFailed || failed.payload["error"] == "" {
		t.Fatalf("unexpected failure event %+v", failed)
	}
}

func TestNotifierErrorDoesNotFailRun(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAudit())
	src := sourceFile(t, cfg, "memo.wav")
	notifier := &fakeNotifier{err: errors.New("ntfy down")}

	runner := New(cfg, Deps{
		Prober:      &fakeProber{files: map[string]media.File{src: {Kind: media.KindAudio, Duration: 30}}},
		Segmenter:   &fakeSegmenter{dir: cfg.Paths.WorkDir},
		Transcriber: newFakeTranscriber(),
		Notifier:    notifier,
	})
	if _, err := runner.Process(context.Background(), src, orchestrator.Resume{}); err != nil {
		t.Fatalf("notifier failure must not fail the run: %v", err)
	}
}

func TestProcessDirPublishesBatchSummary(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutAudit())
	dir := filepath.Join(testsupport.BaseDir(cfg), "inbox")
	a, b := filepath.Join(dir, "a.wav"), filepath.Join(dir, "b.wav")
	testsupport.WriteMedia(t, a, 16)
	testsupport.WriteMedia(t, b, 16)
	notifier := &fakeNotifier{}

	runner := New(cfg, Deps{
		Prober: &fakeProber{files: map[string]media.File{
			a: {Kind: media.KindAudio, Duration: 30},
			b: {Kind: media.KindAudio, Duration: 30},
		}},
		Segmenter:   &fakeSegmenter{dir: cfg.Paths.WorkDir},
		Transcriber: newFakeTranscriber(),
		Notifier:    notifier,
	})
	if _, err := runner.ProcessDir(context.Background(), dir); err != nil {
		t.Fatalf("ProcessDir: %v", err)
	}
	last := notifier.events[len(notifier.events)-1]
	if last.event != notifications.EventBatchCompleted || last.payload["processed"] != 2 || last.payload["failed"] != 0 {
		t.Fatalf("unexpected batch event %+v", last)
	}
}
