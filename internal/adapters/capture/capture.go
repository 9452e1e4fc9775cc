// Package capture provides frame sources for the sampling loops.
package capture

import (
	"context"

	"github.com/movelab/stance/internal/domain/model"
)

// Source hands out the most recent frame. Implementations are safe for
// concurrent use. The returned frame's pixels are read-only downstream; a
// source must never write into a buffer it has already handed out.
type Source interface {
	// Frame returns the latest available frame. The sequence number
	// advances only when the pixel content does, so callers can detect
	// that nothing new has arrived since their previous call.
	Frame(ctx context.Context) (model.Frame, error)

	// Close releases the source.
	Close() error
}
