// Package transcript holds the timed segment model shared by every stage and
// the line codec used by remote backends and saved transcript files.
package transcript
