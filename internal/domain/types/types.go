// Package types contains common types used across the application
package types

import (
	"time"

	"github.com/movelab/stance/internal/domain/model"
)

// Binding attaches one participant's frame source to a session. In
// supervised sessions Subject names the instrumented person whose key the
// snapshots carry; empty means the participant is observing themselves.
type Binding struct {
	Participant string `json:"participant"`
	Subject     string `json:"subject,omitempty"`
}

// SessionInfo describes one instrumentation session.
type SessionInfo struct {
	ID        string            `json:"id"`
	Mode      model.SessionMode `json:"mode"`
	StartedAt time.Time         `json:"startedAt"`
	Bindings  []Binding         `json:"bindings"`
	Keys      []string          `json:"keys"`
}
