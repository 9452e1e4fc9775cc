// Package engine owns the pose model lifecycle: the runtime and session
// contracts, and the manager that loads the model once and shares the
// resulting session across all sampling loops.
package engine

import (
	"context"

	"github.com/movelab/stance/internal/domain/model"
)

// Runtime loads a model artifact into an executable session. Implementations
// wrap a concrete inference backend.
type Runtime interface {
	// Load reads and prepares the model at modelPath. It is called at most
	// once per load attempt; the manager deduplicates concurrent callers.
	Load(ctx context.Context, modelPath string) (Session, error)
}

// Session executes single-frame inference against a loaded model.
type Session interface {
	// Run executes exactly one forward pass: one preprocessed frame in,
	// one raw tensor out. There is no batching. Implementations that are
	// not safely reentrant must serialize calls internally. Failures wrap
	// ErrInference.
	Run(ctx context.Context, input []float32) (model.RawOutput, error)

	// InputSize returns the square input side length the session was
	// built for. Preprocessing must produce exactly 3*InputSize*InputSize
	// values.
	InputSize() int

	// Close releases the session. Only the manager calls this, at
	// process shutdown.
	Close() error
}
