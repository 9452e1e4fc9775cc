package simulate

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/movelab/stance/internal/domain/model"
	"github.com/movelab/stance/internal/domain/pose"
	"github.com/movelab/stance/internal/engine"
)

// Stub runtime configuration constants.
const (
	stubInputSize     = 64
	defaultMinLatency = 1 * time.Millisecond
	defaultMaxLatency = 4 * time.Millisecond
	defaultRandomSeed = 42
)

// Gait animation constants.
const (
	phaseStep          = 0.35
	baseConfidence     = 0.82
	confidenceJitter   = 0.12
	keypointConfidence = 0.9
	armSwing           = 0.02
	legSwing           = 0.03
	bodySway           = 0.015
)

// StubOption applies a configuration option to the StubRuntime.
type StubOption func(*StubRuntime)

// WithStubLatencyRange sets the simulated inference latency range.
func WithStubLatencyRange(minLatency, maxLatency time.Duration) StubOption {
	return func(r *StubRuntime) {
		if minLatency > 0 && maxLatency > minLatency {
			r.minLatency = minLatency
			r.maxLatency = maxLatency
		}
	}
}

// WithStubInputSize overrides the input side length the stub session reports.
func WithStubInputSize(size int) StubOption {
	return func(r *StubRuntime) {
		if size > 0 {
			r.inputSize = size
		}
	}
}

// StubRuntime fabricates pose detections instead of running a model. It
// satisfies the engine runtime contract, so the full pipeline runs without
// onnxruntime or a model file on disk.
type StubRuntime struct {
	inputSize  int
	minLatency time.Duration
	maxLatency time.Duration
}

// NewStubRuntime creates a stub runtime with configuration options.
func NewStubRuntime(opts ...StubOption) *StubRuntime {
	r := &StubRuntime{
		inputSize:  stubInputSize,
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load ignores the model path and returns a session that synthesizes a
// walking figure.
func (r *StubRuntime) Load(_ context.Context, _ string) (engine.Session, error) {
	return &stubSession{
		inputSize:  r.inputSize,
		minLatency: r.minLatency,
		maxLatency: r.maxLatency,
		rng:        rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible runs
	}, nil
}

// stubSession animates a walking pose. Sampling loops for different
// participants share one session, so phase and rng are mutex-protected.
type stubSession struct {
	mu         sync.Mutex
	phase      float64
	rng        *rand.Rand
	inputSize  int
	minLatency time.Duration
	maxLatency time.Duration
}

// basePose is an upright figure in unit-square coordinates, y growing
// downward. Limbs swing around it as the gait phase advances.
var basePose = [pose.KeypointCount]pose.Point{
	pose.Nose:          {X: 0.50, Y: 0.12},
	pose.LeftEye:       {X: 0.48, Y: 0.10},
	pose.RightEye:      {X: 0.52, Y: 0.10},
	pose.LeftEar:       {X: 0.46, Y: 0.11},
	pose.RightEar:      {X: 0.54, Y: 0.11},
	pose.LeftShoulder:  {X: 0.42, Y: 0.28},
	pose.RightShoulder: {X: 0.58, Y: 0.28},
	pose.LeftElbow:     {X: 0.38, Y: 0.42},
	pose.RightElbow:    {X: 0.62, Y: 0.42},
	pose.LeftWrist:     {X: 0.36, Y: 0.55},
	pose.RightWrist:    {X: 0.64, Y: 0.55},
	pose.LeftHip:       {X: 0.45, Y: 0.55},
	pose.RightHip:      {X: 0.55, Y: 0.55},
	pose.LeftKnee:      {X: 0.44, Y: 0.72},
	pose.RightKnee:     {X: 0.56, Y: 0.72},
	pose.LeftAnkle:     {X: 0.44, Y: 0.90},
	pose.RightAnkle:    {X: 0.56, Y: 0.90},
}

// Run returns one fabricated detection in the pose head layout. The
// preprocessed input is ignored; only its cost was of interest upstream.
func (s *stubSession) Run(ctx context.Context, _ []float32) (model.RawOutput, error) {
	s.mu.Lock()
	phase := s.phase
	s.phase += phaseStep
	latency := s.minLatency + time.Duration(s.rng.Int63n(int64(s.maxLatency-s.minLatency)))
	conf := baseConfidence + confidenceJitter*s.rng.Float64()
	s.mu.Unlock()

	// Simulate inference latency
	select {
	case <-ctx.Done():
		return model.RawOutput{}, fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-time.After(latency):
	}

	values := 5 + 3*pose.KeypointCount
	data := make([]float32, values)
	data[4] = float32(conf)

	scale := float64(s.inputSize)
	sway := bodySway * math.Sin(phase/2)
	for id := pose.KeypointID(0); id < pose.KeypointCount; id++ {
		pt := basePose[id]
		x, y := pt.X+sway, pt.Y
		switch id {
		case pose.LeftElbow, pose.LeftWrist:
			x += armSwing * math.Sin(phase)
		case pose.RightElbow, pose.RightWrist:
			x -= armSwing * math.Sin(phase)
		case pose.LeftKnee, pose.LeftAnkle:
			x += legSwing * math.Sin(phase)
		case pose.RightKnee, pose.RightAnkle:
			x += legSwing * math.Sin(phase+math.Pi)
		}
		base := 5 + 3*int(id)
		data[base] = float32(x * scale)
		data[base+1] = float32(y * scale)
		data[base+2] = keypointConfidence
	}

	return model.RawOutput{Data: data, Shape: []int64{1, int64(values), 1}}, nil
}

func (s *stubSession) InputSize() int {
	return s.inputSize
}

func (s *stubSession) Close() error {
	return nil
}
