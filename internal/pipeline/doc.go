// Package pipeline runs one recording, or a folder of them, through the
// whole transcription flow.
//
// A Runner probes the source, swaps dark video for its audio track, hands
// the unit to the chunk orchestrator, audits the merged transcript against
// the media it came from, and writes the transcript and report files. Each
// run gets a UUID that is attached to every log line and recorded in the
// chunk store; a file lock in the work directory keeps concurrent runs from
// sharing chunk files.
//
// Build wires the production collaborators from config. Tests construct a
// Runner with New and fakes.
package pipeline
