// Package model contains domain values passed between pipeline layers.
package model

import (
	"image"
	"time"
)

// Frame is one captured video frame handed to the pipeline. Sources reuse
// nothing: the RGBA buffer belongs to the frame and is read-only downstream.
type Frame struct {
	RGBA       *image.RGBA // native-resolution pixels, alpha ignored
	Seq        uint64      // monotonically increasing per source
	CapturedAt time.Time   // capture timestamp
}

// Empty reports whether the frame has no usable pixels.
func (f Frame) Empty() bool {
	if f.RGBA == nil {
		return true
	}
	b := f.RGBA.Bounds()
	return b.Dx() <= 0 || b.Dy() <= 0
}

// Width returns the native frame width in pixels.
func (f Frame) Width() int {
	if f.RGBA == nil {
		return 0
	}
	return f.RGBA.Bounds().Dx()
}

// Height returns the native frame height in pixels.
func (f Frame) Height() int {
	if f.RGBA == nil {
		return 0
	}
	return f.RGBA.Bounds().Dy()
}

// RawOutput is the untyped tensor returned by one inference call. Shape
// carries the runtime's reported dimensions so the postprocessor can
// validate the layout instead of assuming it.
type RawOutput struct {
	Data  []float32
	Shape []int64
}
