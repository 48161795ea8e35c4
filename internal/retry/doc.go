// Package retry implements the capped exponential backoff loop shared by the
// transcription client and the hallucination auditor.
//
// A Policy carries the attempt bound and delay range. Do classifies each
// failure with Retryable: remote rate limits, timeouts, and 5xx responses are
// retried, while context cancellation and anything wrapped with Permanent end
// the loop at once. Retry-After hints from services.StatusError take
// precedence over the computed backoff but never exceed the cap.
package retry
