package prompts

import (
	"embed"
	"fmt"
	"os"
	"strings"
)

//go:embed defaults/*.txt
var defaults embed.FS

// Name identifies a built-in prompt.
type Name string

const (
	Transcription Name = "transcription"
	Audit         Name = "audit"
)

// Default returns the built-in prompt text.
func Default(name Name) string {
	data, err := defaults.ReadFile("defaults/" + string(name) + ".txt")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Load returns the prompt at path, or the built-in prompt when path is empty.
func Load(name Name, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		text := Default(name)
		if text == "" {
			return "", fmt.Errorf("no built-in %s prompt", name)
		}
		return text, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s prompt: %w", name, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("%s prompt %s is empty", name, path)
	}
	return text, nil
}
