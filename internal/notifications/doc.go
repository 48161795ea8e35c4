// Package notifications publishes run milestones to ntfy.
//
// NewService returns a no-op when no topic is configured, so the pipeline can
// publish unconditionally.
package notifications
