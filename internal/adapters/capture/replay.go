package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/movelab/stance/internal/domain/model"
)

const defaultReplayFPS = 10.0

// ReplayOption applies a configuration option to a Replay source.
type ReplayOption func(*Replay)

// WithReplayFPS sets the playback rate in frames per second.
func WithReplayFPS(fps float64) ReplayOption {
	return func(r *Replay) {
		if fps > 0 {
			r.fps = fps
		}
	}
}

// WithReplayLoop controls whether playback wraps around or holds the last
// frame.
func WithReplayLoop(loop bool) ReplayOption {
	return func(r *Replay) {
		r.loop = loop
	}
}

// Replay plays a directory of images back as a frame source, in filename
// order at a fixed rate. The sequence number advances only when playback
// moves to a different image, so faster pollers see repeats for what they
// are.
type Replay struct {
	frames []*image.RGBA
	fps    float64
	loop   bool

	now   func() time.Time
	start time.Time

	mu      sync.Mutex
	lastIdx int
	seq     uint64
	closed  bool
}

// NewReplay loads every .jpg, .jpeg and .png under dir. Other entries are
// skipped; a directory without a single decodable image is an error.
func NewReplay(dir string, opts ...ReplayOption) (*Replay, error) {
	r := &Replay{
		fps:     defaultReplayFPS,
		loop:    true,
		now:     time.Now,
		lastIdx: -1,
	}
	for _, opt := range opts {
		opt(r)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read replay directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
		default:
			continue
		}
		img, err := loadImage(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", entry.Name(), err)
		}
		r.frames = append(r.frames, img)
	}
	if len(r.frames) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFrames, dir)
	}

	r.start = r.now()
	return r, nil
}

func loadImage(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	if rgba, ok := src.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba, nil
	}
	b := src.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	return rgba, nil
}

// Frame returns the image playback currently sits on.
func (r *Replay) Frame(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return model.Frame{}, ErrClosed
	}

	idx := int(r.now().Sub(r.start).Seconds() * r.fps)
	if r.loop {
		idx %= len(r.frames)
	} else if idx >= len(r.frames) {
		idx = len(r.frames) - 1
	}
	if idx != r.lastIdx {
		r.lastIdx = idx
		r.seq++
	}
	return model.Frame{RGBA: r.frames[idx], Seq: r.seq, CapturedAt: r.now()}, nil
}

// Close stops the source and releases the decoded frames.
func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.frames = nil
	return nil
}
