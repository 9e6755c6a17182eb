package transcription

import "errors"

// Error kinds returned by the client. Wrap with fmt.Errorf("%w: ...") and
// test with errors.Is.
var (
	// ErrConfiguration means the backend base URL is missing or unusable.
	// It is returned before any network I/O happens.
	ErrConfiguration = errors.New("transcription backend not configured")

	// ErrCredentialUnavailable means the bearer token could not be loaded.
	// The request is not sent and not retried.
	ErrCredentialUnavailable = errors.New("transcription credential unavailable")

	// ErrInvalidRequest means the backend rejected the request as malformed.
	// Sending the same request again would fail the same way, so it is
	// never retried.
	ErrInvalidRequest = errors.New("transcription request rejected")

	// ErrBackendUnavailable means the backend could not produce a result
	// after all retry attempts were spent.
	ErrBackendUnavailable = errors.New("transcription backend unavailable")
)
