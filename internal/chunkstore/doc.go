// Package chunkstore persists chunk transcription outcomes and run history
// in a SQLite database under the state directory.
//
// Successful chunk results are keyed by source fingerprint, chunk index,
// planned bounds and backend, so an interrupted run can resume without
// re-transcribing chunks that already succeeded. Results are stored in
// chunk-local time; callers apply timeline offsets after loading.
package chunkstore
