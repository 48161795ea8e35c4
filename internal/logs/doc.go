// Package logs reads the recap log file for the `recap logs` command.
//
// Tail returns the last N lines (optionally filtered by a substring such as a
// run id) together with the byte offset reached, and Follow keeps polling
// from that offset until the context is cancelled.
package logs
