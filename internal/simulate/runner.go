package simulate

import (
	"context"
	"fmt"
	"time"

	"github.com/movelab/stance/internal/adapters/capture"
	"github.com/movelab/stance/internal/adapters/publisher"
	app "github.com/movelab/stance/internal/app"
	"github.com/movelab/stance/internal/domain/model"
	"github.com/movelab/stance/internal/domain/types"
	"github.com/movelab/stance/internal/engine"
	"github.com/movelab/stance/internal/engine/onnx"
	"github.com/movelab/stance/pkg/logger"
)

// Collector configuration constants.
const (
	collectorID          = "simulate"
	feedBuffer           = 256
	percentageMultiplier = 100
)

// Run executes one complete simulation pass: pipeline up, session opened,
// snapshots collected, invariants verified, aggregates reported.
func Run(ctx context.Context, config *Config) error {
	if config.Participants <= 0 || config.Ticks <= 0 {
		return fmt.Errorf("participants and ticks must be positive")
	}
	if config.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	mode := config.Mode
	if mode == "" {
		mode = model.ModeStandard
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", types.ErrInvalidMode, mode)
	}

	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting stance simulation",
		logger.Int("participants", config.Participants),
		logger.Int("ticks", config.Ticks),
		logger.String("interval", config.Interval.String()),
		logger.String("mode", string(mode)),
		logger.Bool("onnx", config.UseONNX))

	// Step 1: Build the runtime and one synthetic source per participant
	bindings := make([]types.Binding, config.Participants)
	keys := make([]string, config.Participants)
	opts := []app.Option{
		app.WithRuntime(buildRuntime(config)),
		app.WithModelPath(config.ModelPath),
		app.WithSampleInterval(config.Interval),
		app.WithSessionMode(mode),
	}
	for i := range bindings {
		participant := fmt.Sprintf("sim-%02d", i+1)
		b := types.Binding{Participant: participant}
		if mode == model.ModeSupervised {
			b.Subject = fmt.Sprintf("subject-%02d", i+1)
		}
		bindings[i] = b
		keys[i] = publisher.ResolveKey(mode, b.Participant, b.Subject)
		opts = append(opts, app.WithSource(participant, capture.NewSynthetic()))
	}

	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("service start failed: %w", err)
	}
	defer svc.Stop()

	// Step 2: Subscribe before the session opens so no snapshot is missed
	feed := make(chan model.Snapshot, feedBuffer)
	if err := svc.Subscribe(collectorID, feed); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}
	defer func() {
		_ = svc.Unsubscribe(collectorID)
	}()

	// Step 3: Open the session
	info, err := svc.StartSession(ctx, mode, bindings)
	if err != nil {
		return fmt.Errorf("session start failed: %w", err)
	}
	logger.Get().Info(ctx, "session opened",
		logger.String("sessionID", info.ID),
		logger.Int("bindings", len(info.Bindings)))

	// Step 4: Collect until every participant reached the tick quota
	collected, err := collectSnapshots(ctx, config, feed, keys, stats)
	if err != nil {
		return err
	}

	// Step 5: Close the session
	if err := svc.EndSession(ctx, info.ID); err != nil {
		return fmt.Errorf("session end failed: %w", err)
	}

	// Step 6: Verify invariants over everything collected
	violations := verifySnapshots(collected)
	stats.Violations = len(violations)

	// Step 7: Report aggregates
	reportRun(config, collected)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	if len(violations) > 0 {
		for _, v := range violations {
			logger.Get().Error(ctx, "invariant violation", logger.String("violation", v))
		}
		return fmt.Errorf("verification failed: %d invariant violations", len(violations))
	}

	logger.Get().Info(ctx, "simulation completed successfully")
	return nil
}

// buildRuntime selects the stub or the real ONNX runtime.
func buildRuntime(config *Config) engine.Runtime {
	if !config.UseONNX {
		return NewStubRuntime()
	}
	var opts []onnx.Option
	if config.TargetSize > 0 {
		opts = append(opts, onnx.WithInputSize(config.TargetSize))
	}
	if config.LibraryPath != "" {
		opts = append(opts, onnx.WithLibraryPath(config.LibraryPath))
	}
	return onnx.NewRuntime(opts...)
}

// collectSnapshots drains the feed until every expected key has the tick
// quota. Snapshots past a key's quota are discarded, so one fast
// participant cannot fill in for a stalled one.
func collectSnapshots(ctx context.Context, config *Config, feed <-chan model.Snapshot, keys []string, stats *Stats) (map[string][]model.Snapshot, error) {
	expected := make(map[string]bool, len(keys))
	for _, k := range keys {
		expected[k] = true
	}
	collected := make(map[string][]model.Snapshot, len(keys))

	done := func() bool {
		for _, k := range keys {
			if len(collected[k]) < config.Ticks {
				return false
			}
		}
		return true
	}

	for !done() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("collection interrupted: %w", ctx.Err())
		case snap := <-feed:
			if !expected[snap.ParticipantKey] || len(collected[snap.ParticipantKey]) >= config.Ticks {
				continue
			}
			collected[snap.ParticipantKey] = append(collected[snap.ParticipantKey], snap)
			stats.SnapshotsCollected++
			if snap.Detected {
				stats.Detections++
			} else {
				stats.NoDetections++
			}
			if config.Verbose {
				logger.Get().Debug(ctx, "snapshot collected",
					logger.String("key", snap.ParticipantKey),
					logger.Uint64("seq", snap.FrameSeq),
					logger.Bool("detected", snap.Detected))
			}
		}
	}
	return collected, nil
}

// displayFinalStats prints the final simulation statistics.
func displayFinalStats(stats *Stats) {
	var detectionRate float64
	if stats.SnapshotsCollected > 0 {
		detectionRate = float64(stats.Detections) / float64(stats.SnapshotsCollected) * percentageMultiplier
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("snapshotsCollected", stats.SnapshotsCollected),
		logger.Int("detections", stats.Detections),
		logger.Int("noDetections", stats.NoDetections),
		logger.Int("violations", stats.Violations),
		logger.Float64("detectionRate", detectionRate),
		logger.String("duration", stats.Duration.String()))
}
