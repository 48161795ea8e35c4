package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"recap/internal/config"
)

func TestLoadDefaultConfigUsesEnvKeyAndExpandsPaths(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("XDG_CACHE_HOME", "")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantOutput := filepath.Join(tempHome, "recap")
	if cfg.Paths.OutputDir != wantOutput {
		t.Fatalf("unexpected output dir: got %q want %q", cfg.Paths.OutputDir, wantOutput)
	}
	if cfg.Paths.WorkDir != filepath.Join(tempHome, ".cache", "recap", "work") {
		t.Fatalf("unexpected work dir: %q", cfg.Paths.WorkDir)
	}
	if cfg.Gemini.APIKey != "test-key" {
		t.Fatalf("expected Gemini key from env, got %q", cfg.Gemini.APIKey)
	}
	if cfg.Media.ChunkSeconds != 2400 {
		t.Fatalf("expected 2400s chunk threshold, got %v", cfg.Media.ChunkSeconds)
	}
	if cfg.ChunkDuration() != 40*time.Minute {
		t.Fatalf("unexpected chunk duration %s", cfg.ChunkDuration())
	}
	attempts, base, maxDelay := cfg.RetryPolicy()
	if attempts != 3 || base != 2*time.Second || maxDelay != 30*time.Second {
		t.Fatalf("unexpected retry policy: %d %s %s", attempts, base, maxDelay)
	}
	if cfg.Audit.RequestsPerMinute != 5 {
		t.Fatalf("expected 5 audit requests per minute, got %d", cfg.Audit.RequestsPerMinute)
	}
	if cfg.Transcription.PartialResults {
		t.Fatal("expected partial results disabled by default")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.OutputDir, cfg.Paths.LogDir, cfg.Paths.StateDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "recap.toml")

	type payload struct {
		Media struct {
			ChunkSeconds float64 `toml:"chunk_seconds"`
		} `toml:"media"`
		Transcription struct {
			Backend        string `toml:"backend"`
			Workers        int    `toml:"workers"`
			PartialResults bool   `toml:"partial_results"`
		} `toml:"transcription"`
		Audit struct {
			Enabled bool `toml:"enabled"`
		} `toml:"audit"`
		OpenAI struct {
			APIKey string `toml:"api_key"`
		} `toml:"openai"`
	}
	custom := payload{}
	custom.Media.ChunkSeconds = 600
	custom.Transcription.Backend = "OpenAI"
	custom.Transcription.Workers = 2
	custom.Transcription.PartialResults = true
	custom.Audit.Enabled = false
	custom.OpenAI.APIKey = "abc123"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Transcription.Backend != config.BackendOpenAI {
		t.Fatalf("expected backend normalized to openai, got %q", cfg.Transcription.Backend)
	}
	if cfg.Media.ChunkSeconds != 600 {
		t.Fatalf("expected chunk seconds 600, got %v", cfg.Media.ChunkSeconds)
	}
	if cfg.Transcription.Workers != 2 || !cfg.Transcription.PartialResults {
		t.Fatalf("unexpected transcription section: %+v", cfg.Transcription)
	}
	if cfg.OpenAI.APIKey != "abc123" {
		t.Fatalf("expected OpenAI key from file, got %q", cfg.OpenAI.APIKey)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("GEMINI_API_KEY", "")
	os.Unsetenv("GEMINI_API_KEY")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GEMINI_API_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Gemini.APIKey != "from-dotenv" {
		t.Fatalf("expected key from .env, got %q", cfg.Gemini.APIKey)
	}
}

func TestCreateSample(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "sample-key")
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "chunk_seconds = 2400") {
		t.Fatalf("sample config missing chunk threshold: %s", contents)
	}

	var decoded config.Config
	if err := toml.Unmarshal(contents, &decoded); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Transcription.Backend != config.BackendGemini {
		t.Fatalf("unexpected backend %q", cfg.Transcription.Backend)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Default()
		cfg.Gemini.APIKey = "key"
		return cfg
	}

	cfg := valid()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults with key to validate: %v", err)
	}

	cfg = valid()
	cfg.Media.ChunkSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive chunk seconds")
	}

	cfg = valid()
	cfg.Media.DarkSampleFraction = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for dark sample fraction above 1")
	}

	cfg = valid()
	cfg.Transcription.Workers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero workers")
	}

	cfg = valid()
	cfg.Transcription.RetryMaxSeconds = 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when retry cap is below base")
	}

	cfg = valid()
	cfg.Transcription.Backend = "vosk"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown backend")
	}

	cfg = valid()
	cfg.Gemini.APIKey = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("expected missing gemini key error, got %v", err)
	}

	cfg = valid()
	cfg.Audit.RetranscribeSeverity = "SEVERE"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown retranscribe severity")
	}

	cfg = valid()
	cfg.Transcription.Backend = config.BackendWhisperX
	cfg.Audit.Enabled = false
	cfg.Gemini.APIKey = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected whisperx without audit to validate: %v", err)
	}
}
