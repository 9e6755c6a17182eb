package audio

import "errors"

// Normalization failures are classified so callers can map them to distinct
// responses. Wrap with fmt.Errorf("%w: ...") and test with errors.Is.
var (
	// ErrUnsupportedFormat reports an input whose extension and content match
	// none of the supported formats.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrSizeLimitExceeded reports an input larger than the configured limit.
	// It is raised before any decoding work happens.
	ErrSizeLimitExceeded = errors.New("audio size limit exceeded")

	// ErrDurationOutOfRange reports decoded audio shorter than the minimum
	// useful duration.
	ErrDurationOutOfRange = errors.New("audio duration out of range")

	// ErrConversion reports a decode or resample failure (corrupt input,
	// missing codec, ffmpeg failure).
	ErrConversion = errors.New("audio conversion failed")
)
