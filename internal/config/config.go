// Package config defines service configuration and its loading rules.
//
// Configuration layers, lowest precedence first: compiled defaults, an
// optional YAML file named by STANCE_CONFIG, then STANCE_-prefixed
// environment variables. Validation runs after layering so every layer is
// checked the same way.
package config

import (
	"fmt"
	"time"

	"github.com/movelab/stance/internal/domain/model"
)

// Frame source kinds.
const (
	SourceSynthetic = "synthetic"
	SourceReplay    = "replay"
)

// SourceSpec declares a frame source owned by one participant. Sessions
// bind participants to these specs by name.
type SourceSpec struct {
	// Participant owns the source; doubles as the binding key.
	Participant string `koanf:"participant"`

	// Kind selects the implementation: synthetic or replay.
	Kind string `koanf:"kind"`

	// Dir is the image directory for replay sources.
	Dir string `koanf:"dir"`

	// FPS is the replay playback rate; zero keeps the source default.
	FPS float64 `koanf:"fps"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogLevels overrides the level per logger category, e.g. engine: debug.
	LogLevels map[string]string `koanf:"log_levels"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ModelPath locates the pose model artifact (ONNX).
	ModelPath string `koanf:"model_path"`

	// ONNXLibrary optionally points at the onnxruntime shared library;
	// empty leaves the runtime's own lookup in charge.
	ONNXLibrary string `koanf:"onnx_library"`

	// TargetSize is the square model input edge in pixels.
	TargetSize int `koanf:"target_size"`

	// SampleIntervalMS is the per-participant sampling cadence.
	SampleIntervalMS int `koanf:"sample_interval_ms"`

	// StaleAfterMS is the snapshot age that renders as stale; zero derives
	// three sampling intervals.
	StaleAfterMS int `koanf:"stale_after_ms"`

	// SnapshotDB is the SQLite path for snapshot persistence; empty
	// disables the store.
	SnapshotDB string `koanf:"snapshot_db"`

	// StoreBatchSize is the row count that triggers an immediate flush.
	StoreBatchSize int `koanf:"store_batch_size"`

	// StoreFlushMS is the periodic store flush cadence.
	StoreFlushMS int `koanf:"store_flush_ms"`

	// SessionMode keys snapshots: standard or supervised.
	SessionMode string `koanf:"session_mode"`

	// AutoStart opens a session over all configured sources at boot.
	AutoStart bool `koanf:"auto_start"`

	// Sources lists the configured frame sources.
	Sources []SourceSpec `koanf:"sources"`
}

// New creates a Config with compiled defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		Addr:             ":9080",
		ModelPath:        "models/yolov8n-pose.onnx",
		TargetSize:       640,
		SampleIntervalMS: 200,
		SnapshotDB:       "stance.db",
		StoreBatchSize:   32,
		StoreFlushMS:     2000,
		SessionMode:      string(model.ModeStandard),
		Sources: []SourceSpec{
			{Participant: "demo", Kind: SourceSynthetic},
		},
	}
}

// SampleInterval returns the sampling cadence as a duration.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.SampleIntervalMS) * time.Millisecond
}

// StaleAfter returns the age past which a snapshot renders as stale.
func (c *Config) StaleAfter() time.Duration {
	if c.StaleAfterMS > 0 {
		return time.Duration(c.StaleAfterMS) * time.Millisecond
	}
	return 3 * c.SampleInterval()
}

// StoreFlushInterval returns the store's periodic flush cadence.
func (c *Config) StoreFlushInterval() time.Duration {
	return time.Duration(c.StoreFlushMS) * time.Millisecond
}

// Mode returns the configured session mode as its domain type.
func (c *Config) Mode() model.SessionMode {
	return model.SessionMode(c.SessionMode)
}

// SourceFor returns the source spec bound to a participant.
func (c *Config) SourceFor(participant string) (SourceSpec, bool) {
	for i := range c.Sources {
		if c.Sources[i].Participant == participant {
			return c.Sources[i], true
		}
	}
	return SourceSpec{}, false
}

// Validate checks the layered configuration for contradictions.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.ModelPath == "" {
		return fmt.Errorf("%w: model_path must not be empty", ErrInvalidConfig)
	}
	if c.TargetSize <= 0 {
		return fmt.Errorf("%w: target_size must be positive", ErrInvalidConfig)
	}
	if c.SampleIntervalMS <= 0 {
		return fmt.Errorf("%w: sample_interval_ms must be positive", ErrInvalidConfig)
	}
	if c.StaleAfterMS < 0 {
		return fmt.Errorf("%w: stale_after_ms must not be negative", ErrInvalidConfig)
	}
	if c.StoreBatchSize < 0 {
		return fmt.Errorf("%w: store_batch_size must not be negative", ErrInvalidConfig)
	}
	if c.StoreFlushMS < 0 {
		return fmt.Errorf("%w: store_flush_ms must not be negative", ErrInvalidConfig)
	}
	if !c.Mode().Valid() {
		return fmt.Errorf("%w: session_mode must be standard or supervised", ErrInvalidConfig)
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for i := range c.Sources {
		if err := c.Sources[i].validate(); err != nil {
			return err
		}
		if _, dup := seen[c.Sources[i].Participant]; dup {
			return fmt.Errorf("%w: duplicate source for participant %q",
				ErrInvalidConfig, c.Sources[i].Participant)
		}
		seen[c.Sources[i].Participant] = struct{}{}
	}
	return nil
}

func (s *SourceSpec) validate() error {
	if s.Participant == "" {
		return fmt.Errorf("%w: source participant must not be empty", ErrInvalidConfig)
	}
	switch s.Kind {
	case SourceSynthetic:
	case SourceReplay:
		if s.Dir == "" {
			return fmt.Errorf("%w: replay source for %q needs a dir",
				ErrInvalidConfig, s.Participant)
		}
	default:
		return fmt.Errorf("%w: unknown source kind %q for participant %q",
			ErrInvalidConfig, s.Kind, s.Participant)
	}
	if s.FPS < 0 {
		return fmt.Errorf("%w: source fps must not be negative", ErrInvalidConfig)
	}
	return nil
}
