// Package probe measures input recordings: kind, duration, and whether a
// video is dark enough to be replaced by its audio track before segmentation.
package probe
