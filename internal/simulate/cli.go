package simulate

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/movelab/stance/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "simulate_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the simulation tool.
func ShowHelp() {
	os.Stdout.WriteString(`Stance Pipeline Simulator
=========================

Runs the full capture-to-snapshot pipeline in-process against synthetic
frame sources and verifies the pipeline contract over the output.

Usage:
  go run cmd/simulate/main.go [options]

Options:
  -participants int
        Number of synthetic participants (default 2)
  -ticks int
        Snapshots to collect per participant (default 50)
  -interval duration
        Sampling cadence (default 200ms)
  -mode string
        Session mode: standard or supervised (default "standard")
  -onnx
        Drive the real ONNX runtime instead of the built-in stub
  -model string
        ONNX model path, used with -onnx (default "models/yolov8n-pose.onnx")
  -lib string
        onnxruntime shared library path, used with -onnx
  -size int
        Model input side length, used with -onnx (default 640)
  -timeout duration
        Overall run timeout (default 2m)
  -log string
        Log file for simulation output (default: simulate_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Quick run with the stub runtime
  go run cmd/simulate/main.go -participants 2 -ticks 50 -interval 100ms

  # Supervised-mode run
  go run cmd/simulate/main.go -mode supervised -participants 3

  # Exercise the real model
  go run cmd/simulate/main.go -onnx -model models/yolov8n-pose.onnx -lib /usr/lib/libonnxruntime.so
`)
}
