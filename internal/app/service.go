// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/movelab/stance/internal/adapters/capture"
	"github.com/movelab/stance/internal/adapters/publisher"
	"github.com/movelab/stance/internal/adapters/sampler"
	"github.com/movelab/stance/internal/adapters/store"
	"github.com/movelab/stance/internal/domain/model"
	"github.com/movelab/stance/internal/domain/types"
	"github.com/movelab/stance/internal/engine"
	"github.com/movelab/stance/internal/engine/onnx"
	"github.com/movelab/stance/pkg/logger"
	"github.com/movelab/stance/pkg/metrics"
)

const (
	defaultSampleInterval = 200 * time.Millisecond
	defaultModelPath      = "models/yolov8n-pose.onnx"

	// storeSubscriberID is the publisher subscription feeding the store.
	storeSubscriberID = "store"
	// storeBuffer absorbs flush stalls without dropping snapshots.
	storeBuffer = 256

	// shutdownGrace bounds how long Stop waits for in-flight ticks.
	shutdownGrace = 5 * time.Second
)

// session tracks one running capture session and its per-participant loops.
type session struct {
	info   types.SessionInfo
	ctx    context.Context
	cancel context.CancelFunc
	loops  map[string]*sampler.Loop // by participant
	keys   map[string]string        // participant -> snapshot key
}

// Service owns the pipeline components and the session registry. It
// implements the API dependency surface.
type Service struct {
	mu sync.RWMutex

	// Core components
	runtime engine.Runtime
	manager *engine.Manager
	pub     *publisher.Publisher
	snaps   *store.Store
	sources map[string]capture.Source

	// Configuration
	modelPath     string
	interval      time.Duration
	mode          model.SessionMode
	dbPath        string
	batchSize     int
	flushInterval time.Duration

	// State
	sessions  map[string]*session
	started   bool
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithRuntime sets the inference runtime backing the model manager.
func WithRuntime(rt engine.Runtime) Option {
	return func(s *Service) {
		if rt != nil {
			s.runtime = rt
		}
	}
}

// WithModelPath sets the model file handed to the runtime on first use.
func WithModelPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.modelPath = path
		}
	}
}

// WithSampleInterval sets the per-participant sampling interval.
func WithSampleInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSessionMode sets the mode applied when a session request leaves it
// blank.
func WithSessionMode(mode model.SessionMode) Option {
	return func(s *Service) {
		if mode.Valid() {
			s.mode = mode
		}
	}
}

// WithSource registers a frame source for a participant. The service owns
// registered sources and closes them on Stop.
func WithSource(participant string, src capture.Source) Option {
	return func(s *Service) {
		if participant != "" && src != nil {
			s.sources[participant] = src
		}
	}
}

// WithSnapshotDB enables snapshot persistence at the given SQLite path.
func WithSnapshotDB(path string) Option {
	return func(s *Service) {
		s.dbPath = path
	}
}

// WithStoreBatchSize sets the persistence batch size.
func WithStoreBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithStoreFlushInterval sets the persistence flush interval.
func WithStoreFlushInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(lg logger.Logger) Option {
	return func(s *Service) {
		if lg != nil {
			s.logger = lg
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		modelPath: defaultModelPath,
		interval:  defaultSampleInterval,
		mode:      model.ModeStandard,
		sources:   make(map[string]capture.Source),
		sessions:  make(map[string]*session),
		logger:    nil, // Will be replaced when service starts
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes the service components. The model itself is not loaded
// here; the manager loads it lazily on the first tick that needs it.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("app")
	}
	if s.runtime == nil {
		s.runtime = onnx.NewRuntime()
	}

	s.logger.Info(ctx, "starting stance service...")

	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	s.manager = engine.NewManager(s.runtime, s.modelPath)
	s.pub = publisher.NewPublisher()

	if s.dbPath != "" {
		opts := []store.Option{}
		if s.batchSize > 0 {
			opts = append(opts, store.WithBatchSize(s.batchSize))
		}
		if s.flushInterval > 0 {
			opts = append(opts, store.WithFlushInterval(s.flushInterval))
		}
		snaps, err := store.New(s.dbPath, opts...)
		if err != nil {
			s.runCancel()
			return fmt.Errorf("open snapshot store: %w", err)
		}
		s.snaps = snaps

		feed := make(chan model.Snapshot, storeBuffer)
		if err := s.pub.Subscribe(storeSubscriberID, feed); err != nil {
			s.runCancel()
			_ = snaps.Close()
			s.snaps = nil
			return fmt.Errorf("subscribe snapshot store: %w", err)
		}
		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			s.snaps.Consume(s.runCtx, feed)
		}()
		go func() {
			defer s.wg.Done()
			s.snaps.Run(s.runCtx)
		}()
	}

	// Surface model lifecycle transitions in the logs.
	s.wg.Add(1)
	go s.watchModel()

	s.started = true
	s.logger.Info(ctx, "stance service started",
		logger.String("modelPath", s.modelPath),
		logger.Any("sampleInterval", s.interval),
		logger.String("mode", string(s.mode)),
		logger.Int("participants", len(s.sources)),
		logger.Bool("storeEnabled", s.snaps != nil),
	)

	return nil
}

func (s *Service) watchModel() {
	defer s.wg.Done()
	ch, cancel := s.manager.Watch()
	defer cancel()
	for {
		select {
		case <-s.runCtx.Done():
			return
		case status, ok := <-ch:
			if !ok {
				return
			}
			s.logger.Info(s.runCtx, "model status",
				logger.String("status", status.String()),
			)
		}
	}
}

// Stop gracefully shuts down the service: sessions first, then the store,
// the model and the sources.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	s.logger.Info(context.Background(), "stopping stance service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	for _, sess := range sessions {
		s.teardown(shutdownCtx, sess)
	}

	s.runCancel()
	s.wg.Wait()

	if s.snaps != nil {
		if err := s.snaps.Close(); err != nil {
			s.logger.Warn(context.Background(), "snapshot store close failed", logger.Error(err))
		}
		s.snaps = nil
	}
	if s.manager != nil {
		_ = s.manager.Close()
	}
	if s.pub != nil {
		s.pub.Close()
	}
	for _, src := range s.sources {
		_ = src.Close()
	}

	metrics.UpdateActiveSessions(0)
	metrics.UpdateActiveLoops(0)

	s.logger.Info(context.Background(), "stance service stopped")
}

// StartSession validates the bindings, spawns one sampling loop per
// participant and registers the session. Validation is all-or-nothing: a bad
// binding anywhere starts no loops at all.
func (s *Service) StartSession(ctx context.Context, mode model.SessionMode, bindings []types.Binding) (types.SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return types.SessionInfo{}, types.ErrNotStarted
	}
	if mode == "" {
		mode = s.mode
	}
	if !mode.Valid() {
		return types.SessionInfo{}, fmt.Errorf("%w: %q", types.ErrInvalidMode, mode)
	}
	if len(bindings) == 0 {
		return types.SessionInfo{}, types.ErrNoBindings
	}

	requested := make(map[string]bool, len(bindings))
	for _, b := range bindings {
		if _, ok := s.sources[b.Participant]; !ok {
			return types.SessionInfo{}, fmt.Errorf("%w: %q", types.ErrUnknownParticipant, b.Participant)
		}
		if requested[b.Participant] || s.participantBound(b.Participant) {
			return types.SessionInfo{}, fmt.Errorf("%w: %q", types.ErrParticipantBusy, b.Participant)
		}
		requested[b.Participant] = true
	}

	sessCtx, cancel := context.WithCancel(s.runCtx)
	sess := &session{
		info: types.SessionInfo{
			ID:        uuid.NewString(),
			Mode:      mode,
			StartedAt: time.Now().UTC(),
		},
		ctx:    sessCtx,
		cancel: cancel,
		loops:  make(map[string]*sampler.Loop, len(bindings)),
		keys:   make(map[string]string, len(bindings)),
	}
	for _, b := range bindings {
		s.spawnLoop(sess, b)
	}
	s.sessions[sess.info.ID] = sess

	metrics.UpdateActiveSessions(len(s.sessions))
	metrics.UpdateActiveLoops(s.loopCount())
	s.logger.Info(ctx, "session started",
		logger.String("sessionID", sess.info.ID),
		logger.String("mode", string(mode)),
		logger.Any("keys", sess.info.Keys),
	)

	return copyInfo(sess.info), nil
}

// EndSession cancels the session's loops, waits for in-flight ticks and
// drops the session's snapshots.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", types.ErrSessionNotFound, sessionID)
	}
	delete(s.sessions, sessionID)
	active := len(s.sessions)
	s.mu.Unlock()

	s.teardown(ctx, sess)

	s.mu.RLock()
	loops := s.loopCount()
	s.mu.RUnlock()
	metrics.UpdateActiveSessions(active)
	metrics.UpdateActiveLoops(loops)

	s.logger.Info(ctx, "session ended", logger.String("sessionID", sessionID))
	return nil
}

// Bind adds a participant loop to a running session.
func (s *Service) Bind(ctx context.Context, sessionID string, b types.Binding) (types.SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return types.SessionInfo{}, types.ErrNotStarted
	}
	sess, ok := s.sessions[sessionID]
	if !ok {
		return types.SessionInfo{}, fmt.Errorf("%w: %q", types.ErrSessionNotFound, sessionID)
	}
	if _, ok := s.sources[b.Participant]; !ok {
		return types.SessionInfo{}, fmt.Errorf("%w: %q", types.ErrUnknownParticipant, b.Participant)
	}
	if s.participantBound(b.Participant) {
		return types.SessionInfo{}, fmt.Errorf("%w: %q", types.ErrParticipantBusy, b.Participant)
	}

	s.spawnLoop(sess, b)
	metrics.UpdateActiveLoops(s.loopCount())
	s.logger.Info(ctx, "participant bound",
		logger.String("sessionID", sessionID),
		logger.String("participant", b.Participant),
	)
	return copyInfo(sess.info), nil
}

// Unbind stops one participant's loop without ending the session.
func (s *Service) Unbind(ctx context.Context, sessionID, participant string) (types.SessionInfo, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return types.SessionInfo{}, fmt.Errorf("%w: %q", types.ErrSessionNotFound, sessionID)
	}
	loop, ok := sess.loops[participant]
	if !ok {
		s.mu.Unlock()
		return types.SessionInfo{}, fmt.Errorf("%w: %q not bound", types.ErrUnknownParticipant, participant)
	}
	key := sess.keys[participant]
	delete(sess.loops, participant)
	delete(sess.keys, participant)
	kept := sess.info.Bindings[:0]
	for _, bound := range sess.info.Bindings {
		if bound.Participant != participant {
			kept = append(kept, bound)
		}
	}
	sess.info.Bindings = kept
	keys := sess.info.Keys[:0]
	for _, k := range sess.info.Keys {
		if k != key {
			keys = append(keys, k)
		}
	}
	sess.info.Keys = keys
	info := copyInfo(sess.info)
	s.mu.Unlock()

	if err := loop.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "loop shutdown failed",
			logger.String("participant", participant),
			logger.Error(err),
		)
	}
	s.pub.Remove(key)

	s.mu.RLock()
	loops := s.loopCount()
	s.mu.RUnlock()
	metrics.UpdateActiveLoops(loops)

	s.logger.Info(ctx, "participant unbound",
		logger.String("sessionID", sessionID),
		logger.String("participant", participant),
	)
	return info, nil
}

// Sessions lists running sessions, oldest first.
func (s *Service) Sessions(ctx context.Context) []types.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, copyInfo(sess.info))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// spawnLoop starts one sampling loop under the session's context. Callers
// hold the lock and have already validated the binding.
func (s *Service) spawnLoop(sess *session, b types.Binding) {
	key := publisher.ResolveKey(sess.info.Mode, b.Participant, b.Subject)
	loop := sampler.NewLoop(sess.info.ID, key, s.sources[b.Participant], s.manager, s.pub,
		sampler.WithInterval(s.interval),
	)
	sess.loops[b.Participant] = loop
	sess.keys[b.Participant] = key
	sess.info.Bindings = append(sess.info.Bindings, b)
	sess.info.Keys = append(sess.info.Keys, key)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		loop.Run(sess.ctx)
	}()
}

// teardown cancels a session and waits for its loops, then drops the
// session's published snapshots.
func (s *Service) teardown(ctx context.Context, sess *session) {
	sess.cancel()
	for participant, loop := range sess.loops {
		if err := loop.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "loop shutdown failed",
				logger.String("participant", participant),
				logger.Error(err),
			)
		}
	}
	for _, key := range sess.keys {
		s.pub.Remove(key)
	}
}

// participantBound reports whether any session holds a loop for the
// participant. Callers hold the lock.
func (s *Service) participantBound(participant string) bool {
	for _, sess := range s.sessions {
		if _, ok := sess.loops[participant]; ok {
			return true
		}
	}
	return false
}

// loopCount counts loops across sessions. Callers hold the lock.
func (s *Service) loopCount() int {
	n := 0
	for _, sess := range s.sessions {
		n += len(sess.loops)
	}
	return n
}

func copyInfo(info types.SessionInfo) types.SessionInfo {
	out := info
	out.Bindings = append([]types.Binding(nil), info.Bindings...)
	out.Keys = append([]string(nil), info.Keys...)
	return out
}

// ModelStatus reports the model lifecycle state.
func (s *Service) ModelStatus() engine.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.manager == nil {
		return engine.StatusUninitialized
	}
	return s.manager.Status()
}

// Latest returns the current snapshot for a participant key.
func (s *Service) Latest(key string) (model.Snapshot, bool) {
	s.mu.RLock()
	pub := s.pub
	s.mu.RUnlock()
	if pub == nil {
		return model.Snapshot{}, false
	}
	return pub.Latest(key)
}

// All returns the current snapshot per participant key.
func (s *Service) All() map[string]model.Snapshot {
	s.mu.RLock()
	pub := s.pub
	s.mu.RUnlock()
	if pub == nil {
		return map[string]model.Snapshot{}
	}
	return pub.All()
}

// Subscribe registers a snapshot subscriber channel under id.
func (s *Service) Subscribe(id string, ch chan<- model.Snapshot) error {
	s.mu.RLock()
	pub := s.pub
	s.mu.RUnlock()
	if pub == nil {
		return types.ErrNotStarted
	}
	return pub.Subscribe(id, ch)
}

// Unsubscribe removes a snapshot subscriber.
func (s *Service) Unsubscribe(id string) error {
	s.mu.RLock()
	pub := s.pub
	s.mu.RUnlock()
	if pub == nil {
		return types.ErrNotStarted
	}
	return pub.Unsubscribe(id)
}

// History returns persisted snapshots for a participant key.
func (s *Service) History(ctx context.Context, key string, since time.Time, limit int) ([]model.Snapshot, error) {
	s.mu.RLock()
	snaps := s.snaps
	s.mu.RUnlock()
	if snaps == nil {
		return nil, types.ErrStoreDisabled
	}
	return snaps.History(ctx, key, since, limit)
}

// SummarizeSession aggregates a session's persisted snapshots.
func (s *Service) SummarizeSession(ctx context.Context, sessionID string) (store.SessionSummary, error) {
	s.mu.RLock()
	snaps := s.snaps
	s.mu.RUnlock()
	if snaps == nil {
		return store.SessionSummary{}, types.ErrStoreDisabled
	}
	return snaps.SummarizeSession(ctx, sessionID)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":          s.started,
		"mode":             string(s.mode),
		"sampleIntervalMs": s.interval.Milliseconds(),
		"participants":     len(s.sources),
		"storeEnabled":     s.snaps != nil,
	}

	if s.started {
		loops := s.loopCount()
		stats["modelStatus"] = s.manager.Status().String()
		stats["activeSessions"] = len(s.sessions)
		stats["activeLoops"] = loops
		stats["snapshots"] = len(s.pub.All())

		// Keep the gauges fresh
		metrics.UpdateActiveSessions(len(s.sessions))
		metrics.UpdateActiveLoops(loops)
	}

	return stats
}
