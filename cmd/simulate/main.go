package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/movelab/stance/internal/domain/model"
	"github.com/movelab/stance/internal/simulate"
)

// Default configuration constants.
const (
	defaultParticipants = 2
	defaultTicks        = 50
	defaultInterval     = 200 * time.Millisecond
	defaultTargetSize   = 640
	defaultRunTimeout   = 2 * time.Minute
)

func main() {
	var (
		participants = flag.Int("participants", defaultParticipants, "Number of synthetic participants")
		ticks        = flag.Int("ticks", defaultTicks, "Snapshots to collect per participant")
		interval     = flag.Duration("interval", defaultInterval, "Sampling cadence")
		mode         = flag.String("mode", string(model.ModeStandard), "Session mode: standard or supervised")
		useONNX      = flag.Bool("onnx", false, "Drive the real ONNX runtime instead of the built-in stub")
		modelPath    = flag.String("model", "models/yolov8n-pose.onnx", "ONNX model path (with -onnx)")
		libraryPath  = flag.String("lib", "", "onnxruntime shared library path (with -onnx)")
		targetSize   = flag.Int("size", defaultTargetSize, "Model input side length (with -onnx)")
		timeout      = flag.Duration("timeout", defaultRunTimeout, "Overall run timeout")
		logFile      = flag.String("log", "", "Log file for simulation output (default: simulate_log_TIMESTAMP.log)")
		verbose      = flag.Bool("verbose", false, "Enable verbose logging")
		help         = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	// Setup logging
	if err := simulate.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// Create simulation configuration
	config := &simulate.Config{
		Participants: *participants,
		Ticks:        *ticks,
		Interval:     *interval,
		Mode:         model.SessionMode(*mode),
		UseONNX:      *useONNX,
		ModelPath:    *modelPath,
		LibraryPath:  *libraryPath,
		TargetSize:   *targetSize,
		LogFile:      *logFile,
		Verbose:      *verbose,
	}

	// Run the simulation
	if err := simulate.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
