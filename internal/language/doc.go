// Package language normalizes the language hints passed to transcription
// backends. Hints may be ISO 639 codes, BCP 47 tags, or English word forms;
// backends ask for the form they need (ISO 639-1 for Whisper and WhisperX, a
// display name for prompt text).
package language
