// Package server implements the HTTP surface of the service: the embedded
// web UI, the transcription and translation API, and the health, config,
// stats, and Prometheus metrics endpoints.
package server
