// Package sampler runs the per-participant sampling loops that drive the
// pipeline: pull the latest frame, run the model, derive angles and metrics,
// publish the snapshot.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/movelab/stance/internal/domain/biomech"
	"github.com/movelab/stance/internal/domain/model"
	"github.com/movelab/stance/internal/engine"
	"github.com/movelab/stance/internal/engine/postprocess"
	"github.com/movelab/stance/internal/engine/preprocess"
	"github.com/movelab/stance/pkg/logger"
	"github.com/movelab/stance/pkg/metrics"
)

const defaultInterval = 200 * time.Millisecond

// Source hands the loop the latest frame.
type Source interface {
	Frame(ctx context.Context) (model.Frame, error)
}

// Provider hands the loop the shared inference session.
type Provider interface {
	Acquire(ctx context.Context) (engine.Session, error)
}

// Sink receives finished snapshots.
type Sink interface {
	Publish(model.Snapshot)
}

// Option applies a configuration option to the Loop.
type Option func(*Loop)

// WithInterval sets the sampling interval.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithLogger sets the loop logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Loop) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// Loop samples one participant on a fixed interval. The first tick fires
// immediately. Ticks never overlap: while one is in flight, due ticks are
// skipped outright rather than queued, so a slow model degrades the rate
// and nothing else. A failed tick leaves the previously published snapshot
// in place.
type Loop struct {
	sessionID string
	key       string

	source   Source
	provider Provider
	sink     Sink

	interval time.Duration

	inFlight atomic.Bool
	lastSeq  uint64 // touched only by the single in-flight tick
	wg       sync.WaitGroup

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewLoop creates a loop publishing under the given session and participant
// key.
func NewLoop(sessionID, key string, source Source, provider Provider, sink Sink, opts ...Option) *Loop {
	l := &Loop{
		sessionID: sessionID,
		key:       key,
		source:    source,
		provider:  provider,
		sink:      sink,
		interval:  defaultInterval,
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("sampler"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run drives the loop until ctx is canceled or Shutdown is called. It waits
// for an in-flight tick before returning, so the shared session cannot be
// torn down under a running inference.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	defer l.wg.Wait()

	l.logger.Info(ctx, "sampling loop started",
		logger.String("participant", l.key),
		logger.Any("interval", l.interval),
	)

	l.tick(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.shutdown:
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// Shutdown stops the loop and waits for it to finish.
func (l *Loop) Shutdown(ctx context.Context) error {
	close(l.shutdown)
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		l.logger.Warn(ctx, "sampler shutdown timed out", logger.String("participant", l.key))
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// tick starts one pipeline pass unless the previous one is still in flight.
func (l *Loop) tick(ctx context.Context) {
	if !l.inFlight.CompareAndSwap(false, true) {
		metrics.RecordTickSkipped()
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.inFlight.Store(false)
		l.process(ctx)
	}()
}

// process runs one full pipeline pass. Every failure path returns without
// publishing; the registry keeps the previous snapshot.
func (l *Loop) process(ctx context.Context) {
	start := time.Now()

	frame, err := l.source.Frame(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.RecordTickError("capture")
		l.logger.Warn(ctx, "frame capture failed",
			logger.String("participant", l.key),
			logger.Error(err),
		)
		return
	}
	if frame.Empty() {
		metrics.RecordEmptyFrame()
		return
	}
	if frame.Seq == l.lastSeq {
		// Nothing new from the source since the last tick.
		metrics.RecordStaleFrame()
		return
	}
	l.lastSeq = frame.Seq

	sess, err := l.provider.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.RecordTickError("model")
		l.logger.Warn(ctx, "session unavailable",
			logger.String("participant", l.key),
			logger.Error(err),
		)
		return
	}

	stageStart := time.Now()
	input, err := preprocess.Prepare(frame, sess.InputSize())
	if err != nil {
		if errors.Is(err, preprocess.ErrEmptyFrame) {
			metrics.RecordEmptyFrame()
			return
		}
		metrics.RecordTickError("preprocess")
		l.logger.Warn(ctx, "preprocess failed",
			logger.String("participant", l.key),
			logger.Error(err),
		)
		return
	}
	metrics.RecordStageLatency("preprocess", msSince(stageStart))

	stageStart = time.Now()
	raw, err := sess.Run(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.RecordTickError("inference")
		l.logger.Warn(ctx, "inference failed",
			logger.String("participant", l.key),
			logger.Error(err),
		)
		return
	}
	metrics.RecordStageLatency("inference", msSince(stageStart))

	stageStart = time.Now()
	skeleton, confidence, err := postprocess.Extract(raw, frame.Width(), frame.Height(), sess.InputSize())
	if err != nil {
		metrics.RecordTickError("postprocess")
		l.logger.Warn(ctx, "postprocess failed",
			logger.String("participant", l.key),
			logger.Error(err),
		)
		return
	}
	metrics.RecordStageLatency("postprocess", msSince(stageStart))

	snap := model.Snapshot{
		SessionID:      l.sessionID,
		ParticipantKey: l.key,
		CapturedAt:     frame.CapturedAt,
		FrameSeq:       frame.Seq,
	}

	stageStart = time.Now()
	if skeleton != nil {
		snap.Detected = true
		snap.Angles = biomech.ComputeAngles(skeleton)
		snap.Metrics = biomech.ComputeMetrics(skeleton)
		metrics.RecordDetection(confidence)
	} else {
		snap.Metrics = biomech.ComputeMetrics(nil)
		metrics.RecordNoDetection()
	}
	metrics.RecordStageLatency("biomech", msSince(stageStart))

	// A tick that outlived its binding must not publish.
	select {
	case <-ctx.Done():
		return
	case <-l.shutdown:
		return
	default:
	}

	l.sink.Publish(snap)
	metrics.RecordTickProcessed()
	metrics.RecordTickLatency(msSince(start))
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}
