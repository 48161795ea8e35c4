package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"recap/internal/config"
)

const userAgent = "recap/0.1"

// Event names a run milestone worth telling someone about.
type Event string

const (
	EventRunCompleted   Event = "run_completed"
	EventRunPartial     Event = "run_partial"
	EventRunFailed      Event = "run_failed"
	EventBatchCompleted Event = "batch_completed"
	EventTest           Event = "test"
)

// Payload carries event fields. Recognised keys: source, transcript,
// findings, missing, error, processed, failed, duration.
type Payload map[string]any

// Service publishes run events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed notifier when a topic is configured and
// a no-op otherwise.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{endpoint: topic, client: &http.Client{Timeout: timeout}}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	source := payload.text("source")
	switch event {
	case EventRunCompleted:
		body := "Transcript ready: " + source
		if n := payload.int("findings"); n > 0 {
			body += fmt.Sprintf("\n%d possible hallucination(s) flagged", n)
		}
		if path := payload.text("transcript"); path != "" {
			body += "\nFile: " + path
		}
		return message{title: "recap - Transcript Ready", body: body, tags: []string{"recap", "transcript", "completed"}}, true
	case EventRunPartial:
		return message{
			title:    "recap - Partial Transcript",
			body:     fmt.Sprintf("Transcript for %s is missing chunk(s) %s", source, payload.text("missing")),
			tags:     []string{"recap", "transcript", "partial"},
			priority: "high",
		}, true
	case EventRunFailed:
		errText := payload.text("error")
		if errText == "" {
			errText = "unknown"
		}
		return message{
			title:    "recap - Error",
			body:     fmt.Sprintf("Transcription of %s failed: %s", source, errText),
			tags:     []string{"recap", "error", "alert"},
			priority: "high",
		}, true
	case EventBatchCompleted:
		duration := payload.duration("duration").Round(time.Second)
		processed, failed := payload.int("processed"), payload.int("failed")
		if failed == 0 {
			return message{
				title: "recap - Folder Complete",
				body:  fmt.Sprintf("%d recording(s) transcribed in %s", processed, duration),
				tags:  []string{"recap", "batch", "completed"},
			}, true
		}
		return message{
			title: "recap - Folder Complete (with errors)",
			body:  fmt.Sprintf("%d succeeded, %d failed in %s", processed-failed, failed, duration),
			tags:  []string{"recap", "batch", "completed"},
		}, true
	case EventTest:
		return message{title: "recap - Test", body: "Notification test", tags: []string{"recap", "test"}, priority: "low"}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) int(key string) int {
	if v, ok := p[key].(int); ok {
		return v
	}
	return 0
}

func (p Payload) duration(key string) time.Duration {
	if v, ok := p[key].(time.Duration); ok && v > 0 {
		return v
	}
	return 0
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
