// Package transcription sends one unit (a whole file or a single chunk) to a
// transcription backend and returns timed segments.
//
// Client owns the retry loop: transient failures (rate limits, timeouts, 5xx)
// are retried with capped exponential backoff, anything else fails at once.
// Both outcomes surface as *FailedError, which matches
// services.ErrTranscriptionFailed. Backends live under internal/services.
package transcription
