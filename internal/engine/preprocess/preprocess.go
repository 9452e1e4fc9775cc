// Package preprocess turns captured frames into model input tensors.
package preprocess

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/movelab/stance/internal/domain/model"
)

// Prepare converts a frame into the flat planar layout the model consumes:
// the frame is scaled to a targetSize square, the red, green and blue
// channels are split into consecutive planes, and every value is normalized
// to [0, 1]. The returned slice holds exactly 3*targetSize*targetSize
// values.
func Prepare(frame model.Frame, targetSize int) ([]float32, error) {
	if targetSize <= 0 {
		return nil, fmt.Errorf("target size must be positive, got %d", targetSize)
	}
	if frame.Empty() {
		return nil, ErrEmptyFrame
	}

	img := resize(frame.RGBA, targetSize)

	plane := targetSize * targetSize
	out := make([]float32, 3*plane)
	for y := 0; y < targetSize; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+targetSize*4]
		base := y * targetSize
		for x := 0; x < targetSize; x++ {
			px := row[x*4:]
			out[base+x] = float32(px[0]) / 255
			out[plane+base+x] = float32(px[1]) / 255
			out[2*plane+base+x] = float32(px[2]) / 255
		}
	}
	return out, nil
}

// resize scales the frame to a square of side size. Aspect ratio is not
// preserved.
func resize(src *image.RGBA, size int) *image.RGBA {
	b := src.Bounds()
	if b.Dx() == size && b.Dy() == size && b.Min == (image.Point{}) {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
