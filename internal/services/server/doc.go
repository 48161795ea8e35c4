// Package server is the backend for a transcription server on the local
// host. The request carries the absolute media path rather than the bytes.
package server
