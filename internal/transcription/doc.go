// Package transcription implements the HTTP client for the Riva speech
// endpoints. It sends normalized audio as multipart form data with a
// bearer token, retries transient failures with exponential backoff, and
// reports failures as distinct error kinds callers can test with errors.Is.
package transcription
