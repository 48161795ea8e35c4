package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"recap/internal/media"
)

// WriteMedia creates a placeholder recording of size bytes (at least one)
// and returns its path. The body repeats the file stem so two placeholders
// never share content. Probing is stubbed in tests, so the bytes are never
// decoded.
func WriteMedia(t testing.TB, path string, size int64) string {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	pattern := []byte(media.Stem(path) + "\n")
	body := bytes.Repeat(pattern, int(size)/len(pattern)+1)[:size]
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
