// Package gemini talks to the Gemini REST API: media goes up through the
// resumable Files API, is polled until ACTIVE, is referenced from a
// generateContent call, and is deleted afterwards.
//
// Transcriber turns the model's "[HH:MM:SS - HH:MM:SS] Speaker: text" lines
// into transcript segments. The audit stage reuses GenerateWithMedia with its
// own prompt.
package gemini
