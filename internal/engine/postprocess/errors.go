package postprocess

import "errors"

var (
	// ErrBadShape is returned when the output tensor does not carry a
	// recognizable pose head layout.
	ErrBadShape = errors.New("unexpected output shape")
)
