package onnx

import "errors"

var (
	// ErrClosed is returned by Run after the session has been closed.
	ErrClosed = errors.New("onnx session closed")
)
