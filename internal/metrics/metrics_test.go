package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.Chunk("gemini", "transcribed", 42*time.Second)
	r.Chunk("gemini", "transcribed", 10*time.Second)
	r.Chunk("gemini", "failed", 0)
	r.Retry("gemini")
	r.Findings(map[string]int{"HIGH": 2, "LOW": 0})
	r.RunFinished("partial", 90*time.Second, time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "textfile", "recap.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		`recap_chunks_total{backend="gemini",outcome="transcribed"} 2`,
		`recap_chunks_total{backend="gemini",outcome="failed"} 1`,
		`recap_transcription_retries_total{backend="gemini"} 1`,
		`recap_audit_findings_total{severity="HIGH"} 2`,
		`recap_runs_total{status="partial"} 1`,
		`recap_last_run_duration_seconds 90`,
		`recap_chunk_transcription_seconds_count 2`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in textfile:\n%s", want, text)
		}
	}
	if strings.Contains(text, `severity="LOW"`) {
		t.Fatal("zero counts should not create series")
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.Chunk("x", "failed", 0)
	r.Retry("x")
	r.RunFinished("done", time.Second, time.Now())
	if err := r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Fatalf("nil recorder should not fail: %v", err)
	}
}
