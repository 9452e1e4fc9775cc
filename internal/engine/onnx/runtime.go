// Package onnx runs pose models through the ONNX Runtime C library via the
// yalue/onnxruntime_go binding. The process-wide runtime environment is
// initialized once, on the first load, and stays up until the process exits.
package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/movelab/stance/internal/domain/model"
	"github.com/movelab/stance/internal/domain/pose"
	"github.com/movelab/stance/internal/engine"
	"github.com/movelab/stance/pkg/logger"
)

const (
	defaultInputSize  = 640
	defaultInputName  = "images"
	defaultOutputName = "output0"

	// valuesPerCandidate is the pose head row width: bounding box, person
	// confidence and one (x, y, confidence) triple per keypoint.
	valuesPerCandidate = 5 + 3*pose.KeypointCount
)

var (
	envOnce sync.Once
	envErr  error
)

// initEnvironment starts the process-wide onnxruntime environment. The first
// caller's library path wins; later values are ignored.
func initEnvironment(libraryPath string) error {
	envOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

// Runtime loads ONNX pose models into sessions with tensors bound once and
// reused for every frame.
type Runtime struct {
	libraryPath    string
	inputName      string
	outputName     string
	inputSize      int
	outputShape    []int64
	intraOpThreads int

	logger logger.Logger
}

// NewRuntime creates a runtime with the default YOLO pose graph names and
// input size.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{
		inputName:  defaultInputName,
		outputName: defaultOutputName,
		inputSize:  defaultInputSize,
		logger:     logger.Get().Named("engine").Named("onnx"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if len(r.outputShape) == 0 {
		r.outputShape = []int64{1, valuesPerCandidate, int64(candidateCount(r.inputSize))}
	}
	return r
}

// candidateCount returns the number of predictions a YOLO-family head emits
// for a square input: one per cell at strides 8, 16 and 32.
func candidateCount(size int) int {
	count := 0
	for _, stride := range []int{8, 16, 32} {
		cells := size / stride
		count += cells * cells
	}
	return count
}

// Load builds a session for the model at modelPath. The input and output
// tensors are allocated here and bound for the session lifetime.
func (r *Runtime) Load(ctx context.Context, modelPath string) (engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := initEnvironment(r.libraryPath); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime environment: %w", err)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(r.inputSize), int64(r.inputSize)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(r.outputShape...))
	if err != nil {
		_ = input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	sessOpts, err := r.sessionOptions()
	if err != nil {
		_ = input.Destroy()
		_ = output.Destroy()
		return nil, err
	}
	if sessOpts != nil {
		defer sessOpts.Destroy()
	}

	sess, err := ort.NewAdvancedSession(modelPath,
		[]string{r.inputName}, []string{r.outputName},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output},
		sessOpts,
	)
	if err != nil {
		_ = input.Destroy()
		_ = output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	r.logger.Info(ctx, "onnx session created",
		logger.String("path", modelPath),
		logger.Int("input_size", r.inputSize),
		logger.Any("output_shape", r.outputShape),
	)

	return &session{
		sess:   sess,
		input:  input,
		output: output,
		size:   r.inputSize,
	}, nil
}

func (r *Runtime) sessionOptions() (*ort.SessionOptions, error) {
	if r.intraOpThreads <= 0 {
		return nil, nil
	}
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	if err := opts.SetIntraOpNumThreads(r.intraOpThreads); err != nil {
		_ = opts.Destroy()
		return nil, fmt.Errorf("set intra-op threads: %w", err)
	}
	return opts, nil
}

// session wraps an AdvancedSession with its bound tensors. A session with
// fixed bindings is not reentrant, so Run serializes callers.
type session struct {
	mu     sync.Mutex
	sess   *ort.AdvancedSession
	input  *ort.Tensor[float32]
	output *ort.Tensor[float32]
	size   int
	closed bool
}

// Run copies input into the bound tensor, executes one forward pass and
// returns a copy of the output tensor. Cancellation is honored up to the
// point the forward pass starts; the pass itself cannot be interrupted.
func (s *session) Run(ctx context.Context, input []float32) (model.RawOutput, error) {
	want := 3 * s.size * s.size
	if len(input) != want {
		return model.RawOutput{}, fmt.Errorf("inference input has %d values, want %d: %w",
			len(input), want, engine.ErrInference)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.RawOutput{}, fmt.Errorf("%w: %w", engine.ErrInference, ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return model.RawOutput{}, err
	}

	copy(s.input.GetData(), input)
	if err := s.sess.Run(); err != nil {
		return model.RawOutput{}, fmt.Errorf("run onnx session: %w: %w", engine.ErrInference, err)
	}

	data := s.output.GetData()
	out := model.RawOutput{
		Data:  make([]float32, len(data)),
		Shape: append([]int64(nil), s.output.GetShape()...),
	}
	copy(out.Data, data)
	return out, nil
}

func (s *session) InputSize() int {
	return s.size
}

// Close destroys the session and its tensors. The session references the
// tensors, so it goes first.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.sess.Destroy(); err != nil {
		return fmt.Errorf("destroy onnx session: %w", err)
	}
	if err := s.input.Destroy(); err != nil {
		return fmt.Errorf("destroy input tensor: %w", err)
	}
	if err := s.output.Destroy(); err != nil {
		return fmt.Errorf("destroy output tensor: %w", err)
	}
	return nil
}
