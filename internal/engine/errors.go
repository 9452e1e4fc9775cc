package engine

import "errors"

// Sentinel kinds for engine failures.
var (
	// ErrModelLoad marks a failed model load attempt. Fatal for the
	// attempt, retryable through a fresh Acquire.
	ErrModelLoad = errors.New("model load failed")
	// ErrInference marks a failed forward pass. Callers treat it as a
	// skippable per-tick failure.
	ErrInference = errors.New("inference failed")
)
