package gemini

import (
	"context"
	"fmt"
	"strings"

	"recap/internal/language"
	"recap/internal/services"
	"recap/internal/transcript"
	"recap/internal/transcription"
)

// Transcriber adapts Client to transcription.Backend.
type Transcriber struct {
	client *Client
	prompt string
}

// NewTranscriber builds a backend using prompt as the base instruction.
func NewTranscriber(client *Client, prompt string) *Transcriber {
	return &Transcriber{client: client, prompt: prompt}
}

// Name implements transcription.Backend.
func (t *Transcriber) Name() string { return serviceName }

// Transcribe implements transcription.Backend.
func (t *Transcriber) Transcribe(ctx context.Context, req transcription.Request) (transcript.Result, error) {
	text, err := t.client.GenerateWithMedia(ctx, req.Path, t.buildPrompt(req))
	if err != nil {
		return transcript.Result{}, err
	}
	segments, err := transcript.ParseLines(text)
	if err != nil {
		return transcript.Result{}, services.Wrap(services.ErrTransient, serviceName, "parse transcript", "malformed timestamps", err)
	}
	return transcript.Result{
		Source:   req.Path,
		Text:     transcript.JoinText(segments),
		Segments: segments,
		Language: language.ToISO2(req.Language),
	}, nil
}

func (t *Transcriber) buildPrompt(req transcription.Request) string {
	var b strings.Builder
	b.WriteString(t.prompt)
	if name := language.DisplayName(req.Language); name != "" {
		fmt.Fprintf(&b, "\n\nThe recording is expected to be in %s.", name)
	}
	if extra := strings.TrimSpace(req.Prompt); extra != "" {
		b.WriteString("\n\nContext:\n")
		b.WriteString(extra)
	}
	return b.String()
}
