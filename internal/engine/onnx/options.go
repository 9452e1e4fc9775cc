package onnx

import "github.com/movelab/stance/pkg/logger"

// Option applies a configuration option to the Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger.
func WithLogger(lg logger.Logger) Option {
	return func(r *Runtime) {
		if lg != nil {
			r.logger = lg
		}
	}
}

// WithLibraryPath points the runtime at a specific onnxruntime shared
// library instead of the platform default search path.
func WithLibraryPath(path string) Option {
	return func(r *Runtime) {
		if path != "" {
			r.libraryPath = path
		}
	}
}

// WithInputName overrides the model graph input name.
func WithInputName(name string) Option {
	return func(r *Runtime) {
		if name != "" {
			r.inputName = name
		}
	}
}

// WithOutputName overrides the model graph output name.
func WithOutputName(name string) Option {
	return func(r *Runtime) {
		if name != "" {
			r.outputName = name
		}
	}
}

// WithInputSize sets the square input side length the model expects.
func WithInputSize(size int) Option {
	return func(r *Runtime) {
		if size > 0 {
			r.inputSize = size
		}
	}
}

// WithOutputShape overrides the output tensor shape for models whose head
// does not emit the default [1, values, candidates] layout.
func WithOutputShape(dims ...int64) Option {
	return func(r *Runtime) {
		if len(dims) > 0 {
			r.outputShape = append([]int64(nil), dims...)
		}
	}
}

// WithIntraOpThreads caps the intra-op thread pool. Zero keeps the
// onnxruntime default.
func WithIntraOpThreads(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.intraOpThreads = n
		}
	}
}
