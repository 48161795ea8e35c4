// Package services defines shared utilities consumed by the pipeline stages
// and the remote backend integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, chunk indexes, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures can be traced
//     to the stage that produced them and mapped to CLI exit codes.
//   - StatusError, the common shape for remote non-success responses that
//     the retry policy inspects.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
