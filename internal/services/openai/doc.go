// Package openai is the Whisper API transcription backend, built on
// github.com/sashabaranov/go-openai. API and request errors are converted to
// services.StatusError so the shared retry policy can classify them.
package openai
