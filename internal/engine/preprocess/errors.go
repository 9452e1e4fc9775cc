package preprocess

import "errors"

var (
	// ErrEmptyFrame is returned for frames with no pixel data.
	ErrEmptyFrame = errors.New("empty frame")
)
