// Package watch feeds media files dropped into a directory to the pipeline.
// Events are debounced per file so a recording still being copied is not
// picked up early.
package watch
