// Package segment plans chunk boundaries for long recordings and splits them
// into physical chunk files.
//
// Planning always covers the whole file, so chunk indices and boundaries stay
// stable across resumed runs. Spans have equal length: the chunk count is the
// duration divided by the chunk limit, rounded up, and the timeline is divided
// evenly between them. Splitting runs one extraction at a time and records the
// measured duration of every produced file.
package segment
