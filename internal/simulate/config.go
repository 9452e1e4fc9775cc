package simulate

import (
	"time"

	"github.com/movelab/stance/internal/domain/model"
)

// Config holds configuration for a simulation run
type Config struct {
	Participants int               // Number of synthetic participants
	Ticks        int               // Snapshots to collect per participant
	Interval     time.Duration     // Sampling cadence
	Mode         model.SessionMode // Session mode for the run
	UseONNX      bool              // Drive the real ONNX runtime instead of the stub
	ModelPath    string            // ONNX model path (real runtime only)
	LibraryPath  string            // onnxruntime shared library path (real runtime only)
	TargetSize   int               // Model input side length (real runtime only)
	LogFile      string            // Log file for simulation output
	Verbose      bool              // Enable verbose logging
}

// Stats holds simulation statistics
type Stats struct {
	SnapshotsCollected int
	Detections         int
	NoDetections       int
	Violations         int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
