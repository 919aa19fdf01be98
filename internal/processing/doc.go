// Package processing implements the deterministic transform from a raw
// captured image to an upload-ready one: dimension-bounded JPEG compression
// followed by a watermark burn-in.
//
// Both stages are fallback-safe. A failed compression leaves the original
// bytes untouched and its provenance marker unset so the stage retries on
// the next upload attempt; a failed watermark falls back to the compressed
// bytes. Stage completion markers on the record's provenance keep a resumed
// pipeline from redoing finished work.
package processing
