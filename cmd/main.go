package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/movelab/stance/internal/adapters/capture"
	"github.com/movelab/stance/internal/adapters/http/api"
	"github.com/movelab/stance/internal/adapters/http/swagger"
	app "github.com/movelab/stance/internal/app"
	"github.com/movelab/stance/internal/config"
	"github.com/movelab/stance/internal/domain/types"
	"github.com/movelab/stance/internal/engine/onnx"
	"github.com/movelab/stance/pkg/logger"
	"github.com/movelab/stance/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			os.Stderr.WriteString("failed to flush logs: " + err.Error() + "\n")
		}
	}()

	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Per-category overrides let one noisy stage go to debug without
	// drowning the rest of the pipeline.
	for category, level := range cfg.LogLevels {
		if err := logger.SetCategoryLevelString(category, level); err != nil {
			loggerInstance.Warn(ctx, "invalid category log level; ignoring", logger.String("category", category), logger.String("level", level), logger.Error(err))
		}
	}

	// Build the frame sources declared in configuration.
	sources, err := buildSources(cfg)
	if err != nil {
		loggerInstance.Error(ctx, "failed to build frame sources", logger.Error(err))
		return
	}

	rt := onnx.NewRuntime(
		onnx.WithInputSize(cfg.TargetSize),
		onnx.WithLibraryPath(cfg.ONNXLibrary),
	)

	// Create and start the service with configuration options
	opts := []app.Option{
		app.WithLogger(loggerInstance),
		app.WithRuntime(rt),
		app.WithModelPath(cfg.ModelPath),
		app.WithSampleInterval(cfg.SampleInterval()),
		app.WithSessionMode(cfg.Mode()),
		app.WithStoreBatchSize(cfg.StoreBatchSize),
		app.WithStoreFlushInterval(cfg.StoreFlushInterval()),
	}
	if cfg.SnapshotDB != "" {
		opts = append(opts, app.WithSnapshotDB(cfg.SnapshotDB))
	}
	for participant, src := range sources {
		opts = append(opts, app.WithSource(participant, src))
	}

	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		loggerInstance.Error(ctx, "failed to start service", logger.Error(err))
		return
	}
	defer svc.Stop()

	// Optionally open a session covering every configured source, so the
	// pipeline produces data without waiting for an API call.
	if cfg.AutoStart {
		bindings := make([]types.Binding, 0, len(cfg.Sources))
		for _, spec := range cfg.Sources {
			bindings = append(bindings, types.Binding{Participant: spec.Participant})
		}
		info, err := svc.StartSession(ctx, cfg.Mode(), bindings)
		if err != nil {
			loggerInstance.Error(ctx, "failed to auto-start session", logger.Error(err))
			return
		}
		loggerInstance.Info(ctx, "auto-started session", logger.String("session_id", info.ID), logger.Int("bindings", len(info.Bindings)))
	}

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// Start service metrics updater
	go startServiceMetricsUpdater(ctx, svc)

	// HTTP mux and routes.
	mux := http.NewServeMux()

	// Register API docs under /api-docs
	swagger.Register(ctx, mux)

	// Register business API routes with the service dependency.
	apiServer := api.NewServer(svc, svc, cfg.StaleAfter())
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start the HTTP server
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

// buildSources constructs one frame source per configured participant.
// On error, sources built so far are closed before returning.
func buildSources(cfg *config.Config) (map[string]capture.Source, error) {
	sources := make(map[string]capture.Source, len(cfg.Sources))
	for _, spec := range cfg.Sources {
		var (
			src capture.Source
			err error
		)
		switch spec.Kind {
		case config.SourceSynthetic:
			src = capture.NewSynthetic()
		case config.SourceReplay:
			var ropts []capture.ReplayOption
			if spec.FPS > 0 {
				ropts = append(ropts, capture.WithReplayFPS(spec.FPS))
			}
			src, err = capture.NewReplay(spec.Dir, ropts...)
		default:
			err = fmt.Errorf("unknown source kind %q", spec.Kind)
		}
		if err != nil {
			for _, built := range sources {
				_ = built.Close()
			}
			return nil, fmt.Errorf("source for %q: %w", spec.Participant, err)
		}
		sources[spec.Participant] = src
	}
	return sources, nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval) // Update every 10 seconds
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval) // Update every 5 seconds
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	// Update memory usage
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	// Update goroutine count
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	// Update GC pause time
	if m.NumGC > 0 {
		// Calculate average GC pause time
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics updates service-level metrics.
func updateServiceMetrics(svc *app.Service) {
	// GetStats refreshes the session and loop gauges as a side effect,
	// which keeps them live even when no one polls /stats.
	svc.GetStats()
}
