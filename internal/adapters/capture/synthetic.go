package capture

import (
	"context"
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/movelab/stance/internal/domain/model"
)

const (
	defaultSyntheticWidth  = 640
	defaultSyntheticHeight = 480
	defaultPhaseStep       = 0.1
)

var (
	backgroundColor = color.RGBA{R: 24, G: 24, B: 28, A: 255}
	figureColor     = color.RGBA{R: 208, G: 208, B: 216, A: 255}
)

// SyntheticOption applies a configuration option to a Synthetic source.
type SyntheticOption func(*Synthetic)

// WithSyntheticSize sets the rendered frame dimensions.
func WithSyntheticSize(width, height int) SyntheticOption {
	return func(s *Synthetic) {
		if width > 0 && height > 0 {
			s.width = width
			s.height = height
		}
	}
}

// WithPhaseStep sets the per-frame animation advance in radians.
func WithPhaseStep(step float64) SyntheticOption {
	return func(s *Synthetic) {
		if step > 0 {
			s.step = step
		}
	}
}

// Synthetic renders an animated stick figure so the pipeline can run without
// a camera. The animation advances one fixed step per call, so two sources
// built with the same options produce the same frames.
type Synthetic struct {
	width  int
	height int
	step   float64

	mu     sync.Mutex
	phase  float64
	seq    uint64
	closed bool
}

// NewSynthetic creates a synthetic source.
func NewSynthetic(opts ...SyntheticOption) *Synthetic {
	s := &Synthetic{
		width:  defaultSyntheticWidth,
		height: defaultSyntheticHeight,
		step:   defaultPhaseStep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Frame renders the next animation frame. Every call produces new pixels, so
// the sequence number always advances.
func (s *Synthetic) Frame(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Frame{}, ErrClosed
	}
	s.phase += s.step
	s.seq++
	phase, seq := s.phase, s.seq
	s.mu.Unlock()

	return model.Frame{RGBA: s.render(phase), Seq: seq, CapturedAt: time.Now()}, nil
}

// Close stops the source. Later Frame calls return ErrClosed.
func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Synthetic) render(phase float64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	sway := 0.04 * math.Sin(phase)
	arm := 0.06 * math.Sin(phase)
	leg := 0.03 * math.Sin(phase+math.Pi)

	at := func(x, y float64) image.Point {
		return image.Point{X: int(x * float64(s.width-1)), Y: int(y * float64(s.height-1))}
	}

	neck := at(0.5+sway, 0.24)
	segments := [][2]image.Point{
		{neck, at(0.5, 0.55)},
		{at(0.42+sway, 0.28), at(0.58+sway, 0.28)},
		{at(0.42+sway, 0.28), at(0.38+sway+arm, 0.4)},
		{at(0.38+sway+arm, 0.4), at(0.36+sway+2*arm, 0.5)},
		{at(0.58+sway, 0.28), at(0.62+sway-arm, 0.4)},
		{at(0.62+sway-arm, 0.4), at(0.64+sway-2*arm, 0.5)},
		{at(0.45, 0.55), at(0.55, 0.55)},
		{at(0.45, 0.55), at(0.44+leg, 0.72)},
		{at(0.44+leg, 0.72), at(0.43+leg, 0.9)},
		{at(0.55, 0.55), at(0.56-leg, 0.72)},
		{at(0.56-leg, 0.72), at(0.57-leg, 0.9)},
	}
	for _, seg := range segments {
		line(img, seg[0], seg[1], figureColor)
	}
	disc(img, at(0.5+sway, 0.16), s.height/16, figureColor)
	return img
}

// line draws a one-pixel segment by stepping the longer axis.
func line(img *image.RGBA, a, b image.Point, c color.RGBA) {
	dx, dy := b.X-a.X, b.Y-a.Y
	steps := iabs(dx)
	if iabs(dy) > steps {
		steps = iabs(dy)
	}
	if steps == 0 {
		img.SetRGBA(a.X, a.Y, c)
		return
	}
	for i := 0; i <= steps; i++ {
		img.SetRGBA(a.X+dx*i/steps, a.Y+dy*i/steps, c)
	}
}

// disc fills a circle, clipped by the image bounds.
func disc(img *image.RGBA, center image.Point, r int, c color.RGBA) {
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			if x*x+y*y <= r*r {
				img.SetRGBA(center.X+x, center.Y+y, c)
			}
		}
	}
}

func iabs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
