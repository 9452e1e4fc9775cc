package capture

import "errors"

var (
	// ErrNoFrames is returned when a replay directory holds no decodable
	// images.
	ErrNoFrames = errors.New("no frames found")

	// ErrClosed is returned by Frame after the source has been closed.
	ErrClosed = errors.New("source closed")
)
