package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	StateDir  string `toml:"state_dir"`
}

// Media controls probing, dark-video detection, and chunking.
type Media struct {
	ChunkSeconds           float64 `toml:"chunk_seconds"`
	DarkDetection          bool    `toml:"dark_detection"`
	DarkLuminanceThreshold float64 `toml:"dark_luminance_threshold"`
	// DarkSampleFraction is the share of sampled frames that must fall under
	// the luminance threshold before a video is treated as dark.
	DarkSampleFraction    float64 `toml:"dark_sample_fraction"`
	ExtractAudioFromVideo bool    `toml:"extract_audio_from_video"`
	AudioExtension        string  `toml:"audio_extension"`
	KeepChunks            bool    `toml:"keep_chunks"`
}

// Transcription controls backend selection, fan-out, and retry.
type Transcription struct {
	Backend               string `toml:"backend"`
	Language              string `toml:"language"`
	PromptPath            string `toml:"prompt_path"`
	Parallel              bool   `toml:"parallel"`
	Workers               int    `toml:"workers"`
	MaxAttempts           int    `toml:"max_attempts"`
	RetryBaseSeconds      int    `toml:"retry_base_seconds"`
	RetryMaxSeconds       int    `toml:"retry_max_seconds"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	PartialResults        bool   `toml:"partial_results"`
}

// Audit controls the hallucination audit pass.
type Audit struct {
	Enabled              bool   `toml:"enabled"`
	PromptPath           string `toml:"prompt_path"`
	RequestsPerMinute    int    `toml:"requests_per_minute"`
	Workers              int    `toml:"workers"`
	MaxRetranscribe      int    `toml:"max_retranscribe"`
	RetranscribeSeverity string `toml:"retranscribe_severity"`
}

// Gemini contains connection settings for the Gemini API.
type Gemini struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// OpenAI contains connection settings for the Whisper transcription API.
type OpenAI struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

// WhisperX contains settings for local WhisperX transcription.
type WhisperX struct {
	Model       string `toml:"model"`
	CUDAEnabled bool   `toml:"cuda_enabled"`
	VADMethod   string `toml:"vad_method"`
	HFToken     string `toml:"hf_token"`
}

// Server contains the endpoint of a local transcription server.
type Server struct {
	URL string `toml:"url"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics contains configuration for run metrics export.
type Metrics struct {
	Enabled  bool   `toml:"enabled"`
	Textfile string `toml:"textfile"`
}

// Notifications contains ntfy settings for run notifications.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Config encapsulates all configuration values for recap.
//
// Configuration sections by subsystem:
//   - Paths: work, output, log, and state directories
//   - Media: chunk threshold and dark-video policy
//   - Transcription: backend choice, worker pool, retry, partial results
//   - Audit: hallucination audit rate limit and re-transcription
//   - Gemini / OpenAI / WhisperX / Server: backend connection settings
//   - Logging: log format and level
//   - Metrics: Prometheus textfile export
//   - Notifications: ntfy topic for run notifications
type Config struct {
	Paths         Paths         `toml:"paths"`
	Media         Media         `toml:"media"`
	Transcription Transcription `toml:"transcription"`
	Audit         Audit         `toml:"audit"`
	Gemini        Gemini        `toml:"gemini"`
	OpenAI        OpenAI        `toml:"openai"`
	WhisperX      WhisperX      `toml:"whisperx"`
	Server        Server        `toml:"server"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/recap/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file in the working directory is
// loaded first so credential fallbacks can come from it.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	if err := loadDotEnv(); err != nil {
		return nil, "", false, err
	}

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads .env without overriding variables that are already set.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat .env: %w", err)
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("recap.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for extraction and splitting.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// ChunkDuration returns the chunk threshold as a duration.
func (c *Config) ChunkDuration() time.Duration {
	return time.Duration(c.Media.ChunkSeconds * float64(time.Second))
}

// RetryPolicy returns the transcription retry settings as durations.
func (c *Config) RetryPolicy() (attempts int, base, maxDelay time.Duration) {
	return c.Transcription.MaxAttempts,
		time.Duration(c.Transcription.RetryBaseSeconds) * time.Second,
		time.Duration(c.Transcription.RetryMaxSeconds) * time.Second
}

// StatePath returns the SQLite file that records chunk outcomes.
func (c *Config) StatePath() string {
	return filepath.Join(c.Paths.StateDir, "chunks.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultWorkDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "recap", "work")
	}
	return "~/.cache/recap/work"
}

// Encode renders cfg as TOML in the layout Load reads.
func Encode(cfg Config) ([]byte, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
