package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultsPresent(t *testing.T) {
	if !strings.Contains(Default(Transcription), "[HH:MM:SS - HH:MM:SS] Speaker: text") {
		t.Fatal("transcription prompt must describe the line format")
	}
	audit := Default(Audit)
	for _, want := range []string{"SEGMENT:", "SEVERITY:", "REASON:", "CORRECTED:", "no hallucination detected"} {
		if !strings.Contains(audit, want) {
			t.Fatalf("audit prompt missing %q", want)
		}
	}
	if Default("missing") != "" {
		t.Fatal("unknown prompt should be empty")
	}
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.txt")
	if err := os.WriteFile(path, []byte("  custom prompt \n"), 0o644); err != nil {
		t.Fatalf("write prompt: %v", err)
	}
	text, err := Load(Transcription, path)
	if err != nil || text != "custom prompt" {
		t.Fatalf("unexpected override %q %v", text, err)
	}
	if text, err := Load(Audit, ""); err != nil || text != Default(Audit) {
		t.Fatalf("expected default audit prompt, got %v", err)
	}
	if _, err := Load(Audit, filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("expected error for missing override")
	}
	empty := filepath.Join(t.TempDir(), "empty.txt")
	_ = os.WriteFile(empty, []byte("\n"), 0o644)
	if _, err := Load(Audit, empty); err == nil {
		t.Fatal("expected error for empty override")
	}
}
