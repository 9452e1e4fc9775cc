package types

import "errors"

// Sentinel kinds shared by the session registry and its HTTP surface.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrUnknownParticipant = errors.New("participant has no configured source")
	ErrParticipantBusy    = errors.New("participant already bound to a session")
	ErrInvalidMode        = errors.New("invalid session mode")
	ErrNoBindings         = errors.New("session requires at least one binding")
	ErrNotStarted         = errors.New("service not started")
	ErrStoreDisabled      = errors.New("snapshot store not configured")
)
