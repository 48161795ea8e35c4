// Package whisperx runs WhisperX through uvx as a local transcription
// backend.
//
// Each call extracts a mono 16 kHz WAV into a scratch directory, invokes
// WhisperX with JSON output, and maps the resulting segments (including
// diarized speaker labels when present) into a transcript.Result.
package whisperx
