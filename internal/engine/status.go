package engine

// Status is the model lifecycle state exposed to observers.
type Status int

// Model lifecycle states.
const (
	StatusUninitialized Status = iota
	StatusLoading
	StatusReady
	StatusFailed
)

// String returns the stable wire name for the status.
func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so the status serializes as
// its wire name in JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
