package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/movelab/stance/pkg/logger"
	"github.com/movelab/stance/pkg/metrics"
)

// statusBuffer sizes watcher channels. A watcher that falls this far behind
// misses intermediate transitions but always sees a later one.
const statusBuffer = 8

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(lg logger.Logger) Option {
	return func(m *Manager) {
		if lg != nil {
			m.logger = lg
		}
	}
}

// Manager loads the model once and hands the shared session to every
// caller. Acquire is idempotent: the first caller triggers the load,
// concurrent callers wait on the same in-flight attempt, later callers get
// the cached session. After a failed load the manager returns to an
// unloaded state so the next Acquire retries; it never retries on its own.
type Manager struct {
	runtime   Runtime
	modelPath string

	group singleflight.Group

	mu       sync.Mutex
	session  Session
	status   Status
	watchers []chan Status

	logger logger.Logger
}

// NewManager creates a manager for the model at modelPath.
func NewManager(runtime Runtime, modelPath string, opts ...Option) *Manager {
	m := &Manager{
		runtime:   runtime,
		modelPath: modelPath,
		status:    StatusUninitialized,
		logger:    logger.Get().Named("engine"),
	}
	for _, opt := range opts {
		opt(m)
	}
	metrics.UpdateModelStatus(int(m.status))
	return m
}

// Acquire returns the shared session, loading the model on first use.
// Every concurrent caller of a failing load receives an error wrapping
// ErrModelLoad together with the cause.
func (m *Manager) Acquire(ctx context.Context) (Session, error) {
	if s := m.current(); s != nil {
		return s, nil
	}

	v, err, _ := m.group.Do("load", func() (any, error) {
		// A load may have completed between the fast path and entering
		// the flight group.
		if s := m.current(); s != nil {
			return s, nil
		}
		return m.load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(Session), nil
}

func (m *Manager) load(ctx context.Context) (Session, error) {
	m.setStatus(StatusLoading)
	m.logger.Info(ctx, "loading model", logger.String("path", m.modelPath))

	start := time.Now()
	sess, err := m.runtime.Load(ctx, m.modelPath)
	elapsed := time.Since(start)
	if err != nil {
		m.setStatus(StatusFailed)
		metrics.RecordModelLoadError()
		m.logger.Error(ctx, "model load failed",
			logger.String("path", m.modelPath),
			logger.Error(err),
		)
		return nil, fmt.Errorf("load model %q: %w: %w", m.modelPath, ErrModelLoad, err)
	}

	m.mu.Lock()
	m.session = sess
	m.mu.Unlock()
	m.setStatus(StatusReady)

	metrics.RecordModelLoadLatency(float64(elapsed.Milliseconds()))
	m.logger.Info(ctx, "model ready",
		logger.String("path", m.modelPath),
		logger.Int("input_size", sess.InputSize()),
		logger.Any("elapsed", elapsed),
	)
	return sess, nil
}

func (m *Manager) current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Status returns the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Watch subscribes to status transitions. The channel is seeded with the
// current status and receives every later transition; a slow watcher drops
// intermediate values rather than blocking the manager. The cancel func
// detaches and closes the channel.
func (m *Manager) Watch() (<-chan Status, func()) {
	ch := make(chan Status, statusBuffer)

	m.mu.Lock()
	m.watchers = append(m.watchers, ch)
	ch <- m.status
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, w := range m.watchers {
				if w == ch {
					m.watchers = append(m.watchers[:i], m.watchers[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
	return ch, cancel
}

// setStatus records the transition and notifies watchers. Sends happen
// under the manager lock so a concurrent Watch cancel cannot race a send
// on a closed channel.
func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == s {
		return
	}
	m.status = s
	metrics.UpdateModelStatus(int(s))
	for _, w := range m.watchers {
		select {
		case w <- s:
		default:
		}
	}
}

// Close releases the loaded session, if any. Called once at shutdown, after
// every sampling loop has stopped.
func (m *Manager) Close() error {
	m.mu.Lock()
	sess := m.session
	m.session = nil
	m.mu.Unlock()

	if sess == nil {
		return nil
	}
	m.setStatus(StatusUninitialized)
	if err := sess.Close(); err != nil {
		return fmt.Errorf("close model session: %w", err)
	}
	return nil
}
