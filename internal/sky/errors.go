package sky

import "errors"

// Request-level errors reject the whole render before any source is fetched.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidField   = errors.New("invalid field")
)

// Per-source errors are converted into LayerFailure values by the layer pipeline.
var (
	ErrFetchFailed           = errors.New("fetch failed")
	ErrNoImageData           = errors.New("no image data found in FITS")
	ErrUnparsableCoordinates = errors.New("FITS WCS not parseable")
	ErrAlignmentFailed       = errors.New("alignment failed")
)
