package model

import (
	"time"

	"github.com/movelab/stance/internal/domain/biomech"
)

// SessionMode selects how participant snapshots are keyed.
type SessionMode string

const (
	// ModeStandard keys each snapshot by the participant who owns the
	// camera producing the frames.
	ModeStandard SessionMode = "standard"
	// ModeSupervised keys snapshots by the instrumented subject even
	// though another participant's camera (the operator's) captures them.
	ModeSupervised SessionMode = "supervised"
)

// Valid reports whether the mode is one of the defined session modes.
func (m SessionMode) Valid() bool {
	return m == ModeStandard || m == ModeSupervised
}

// Snapshot is the per-participant pipeline result for one tick. The
// publisher holds the current snapshot per participant key and replaces it
// wholesale; a snapshot is immutable once published.
type Snapshot struct {
	SessionID      string          `json:"sessionId"`
	ParticipantKey string          `json:"participantKey"`
	CapturedAt     time.Time       `json:"capturedAt"`
	FrameSeq       uint64          `json:"frameSeq"`
	Detected       bool            `json:"detected"`
	Angles         biomech.Angles  `json:"angles"`
	Metrics        biomech.Metrics `json:"metrics"`
}
