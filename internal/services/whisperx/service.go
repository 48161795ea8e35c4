package whisperx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"recap/internal/language"
	"recap/internal/media/command"
	"recap/internal/retry"
	"recap/internal/services"
	"recap/internal/transcript"
	"recap/internal/transcription"
)

const serviceName = "whisperx"

// AudioExtractor produces the 16 kHz WAV WhisperX consumes.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, src, dest string) error
}

// Transcriber runs WhisperX locally through uvx.
type Transcriber struct {
	cfg       Config
	extractor AudioExtractor
	workDir   string
	run       command.Runner
}

// NewTranscriber creates a WhisperX backend. Scratch files are written under
// workDir and removed after each call.
func NewTranscriber(cfg Config, extractor AudioExtractor, workDir string) *Transcriber {
	return &Transcriber{cfg: cfg, extractor: extractor, workDir: workDir, run: runWithTorchEnv}
}

// WithRunner sets a custom command runner (for testing).
func (t *Transcriber) WithRunner(run command.Runner) {
	if run != nil {
		t.run = run
	}
}

// Name implements transcription.Backend.
func (t *Transcriber) Name() string { return serviceName }

// Model returns the configured model name for logging.
func (t *Transcriber) Model() string {
	if t.cfg.Model != "" {
		return t.cfg.Model
	}
	return DefaultModel
}

// Transcribe implements transcription.Backend.
func (t *Transcriber) Transcribe(ctx context.Context, req transcription.Request) (transcript.Result, error) {
	if strings.TrimSpace(req.Path) == "" {
		return transcript.Result{}, retry.Permanent(services.Wrap(services.ErrValidation, serviceName, "transcribe", "source path required", nil))
	}
	if err := os.MkdirAll(t.workDir, 0o755); err != nil {
		return transcript.Result{}, fmt.Errorf("whisperx: ensure work dir: %w", err)
	}
	scratch, err := os.MkdirTemp(t.workDir, "whisperx-")
	if err != nil {
		return transcript.Result{}, fmt.Errorf("whisperx: scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	wav := filepath.Join(scratch, "audio.wav")
	if err := t.extractor.ExtractAudio(ctx, req.Path, wav); err != nil {
		return transcript.Result{}, services.Wrap(services.ErrMediaTool, serviceName, "extract audio", req.Path, err)
	}
	iso := language.ToISO2(req.Language)
	if _, err := t.run(ctx, UVXCommand, t.buildArgs(wav, scratch, iso)...); err != nil {
		if command.NotFound(err) {
			return transcript.Result{}, retry.Permanent(services.Wrap(services.ErrExternalTool, serviceName, "run", "uvx not found", err))
		}
		return transcript.Result{}, services.Wrap(services.ErrTransient, serviceName, "run", filepath.Base(req.Path), err)
	}
	segments, detected, err := LoadSegments(filepath.Join(scratch, "audio.json"))
	if err != nil {
		return transcript.Result{}, services.Wrap(services.ErrExternalTool, serviceName, "load output", "", err)
	}
	if detected == "" {
		detected = iso
	}
	return transcript.Result{
		Source:   req.Path,
		Segments: segments,
		Text:     transcript.JoinText(segments),
		Language: detected,
	}, nil
}

func (t *Transcriber) buildArgs(source, outputDir, iso string) []string {
	args := make([]string, 0, 40)
	if t.cfg.CUDAEnabled {
		args = append(args, "--index-url", CUDAIndexURL, "--extra-index-url", PypiIndexURL)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}
	args = append(args,
		"whisperx",
		source,
		"--model", t.Model(),
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--segment_resolution", SegmentResolution,
		"--chunk_size", ChunkSize,
		"--vad_onset", VADOnset,
		"--vad_offset", VADOffset,
		"--beam_size", BeamSize,
		"--temperature", Temperature,
	)
	vadMethod := t.cfg.VADMethod
	if vadMethod == "" {
		vadMethod = VADMethodSilero
	}
	args = append(args, "--vad_method", vadMethod)
	if vadMethod == VADMethodPyannote && t.cfg.HFToken != "" {
		args = append(args, "--hf_token", t.cfg.HFToken)
	}
	if iso != "" {
		args = append(args, "--language", iso)
	}
	if t.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}
	return args
}

type payload struct {
	Language string `json:"language"`
	Segments []struct {
		Text    string  `json:"text"`
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Speaker string  `json:"speaker"`
	} `json:"segments"`
}

// LoadSegments reads a WhisperX JSON file and returns its segments along
// with the detected language.
func LoadSegments(jsonPath string) ([]transcript.Segment, string, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, "", err
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", filepath.Base(jsonPath), err)
	}
	segments := make([]transcript.Segment, 0, len(p.Segments))
	for _, seg := range p.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, transcript.Segment{
			Start:   seg.Start,
			End:     seg.End,
			Speaker: transcript.NormalizeSpeaker(seg.Speaker),
			Text:    text,
		})
	}
	return segments, language.ToISO2(p.Language), nil
}

// runWithTorchEnv forces legacy torch.load behavior; torch 2.6 defaults to
// weights_only loading, which breaks pyannote checkpoints.
func runWithTorchEnv(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return output, ctxErr
		}
		if errors.Is(err, exec.ErrNotFound) {
			return output, err
		}
		return output, fmt.Errorf("%s: %w: %s", name, err, command.Excerpt(output))
	}
	return output, nil
}
