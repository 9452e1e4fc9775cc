// Package store persists published snapshots to SQLite for history queries
// and session summaries.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/movelab/stance/internal/domain/model"
	"github.com/movelab/stance/pkg/logger"
	"github.com/movelab/stance/pkg/metrics"
)

const (
	defaultBatchSize     = 32
	defaultFlushInterval = 2 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id          TEXT NOT NULL,
	participant_key     TEXT NOT NULL,
	captured_at         INTEGER NOT NULL,
	frame_seq           INTEGER NOT NULL,
	detected            INTEGER NOT NULL,
	angles              TEXT NOT NULL,
	balance_score       INTEGER NOT NULL,
	symmetry_score      INTEGER NOT NULL,
	postural_efficiency INTEGER NOT NULL,
	com_x               DOUBLE NOT NULL,
	com_y               DOUBLE NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_lookup
	ON snapshots (participant_key, captured_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_session
	ON snapshots (session_id);
`

// Store buffers snapshots and writes them to SQLite in batches: a full batch
// flushes immediately, a timer flushes stragglers, Stop and Close flush what
// remains. A batch that fails to write is logged and dropped; persistence is
// an observer of the pipeline, never a brake on it.
type Store struct {
	db *sql.DB

	batchSize int
	interval  time.Duration

	mu      sync.Mutex
	buffer  []model.Snapshot
	running bool

	stopCh chan struct{}
	doneCh chan struct{}

	logger logger.Logger
}

// New opens (creating if needed) the SQLite database at path and ensures the
// schema.
func New(path string, opts ...Option) (*Store, error) {
	s := &Store{
		batchSize: defaultBatchSize,
		interval:  defaultFlushInterval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		logger:    logger.Get().Named("store"),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshot schema: %w", err)
	}

	s.db = db
	return s, nil
}

// Append buffers one snapshot, flushing synchronously when the batch is
// full.
func (s *Store) Append(snap model.Snapshot) {
	s.mu.Lock()
	s.buffer = append(s.buffer, snap)
	full := len(s.buffer) >= s.batchSize
	metrics.UpdateStoreBufferSize(len(s.buffer))
	s.mu.Unlock()

	if full {
		s.flush()
	}
}

// Consume drains a snapshot subscription into the buffer until ctx ends or
// the channel closes.
func (s *Store) Consume(ctx context.Context, ch <-chan model.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			s.Append(snap)
		}
	}
}

// Run drives the periodic flush loop until ctx is canceled or Stop is
// called, flushing one last time on the way out.
func (s *Store) Run(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.flush()
			return
		case <-s.stopCh:
			s.flush()
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

// Stop ends the flush loop and waits for it. Safe to call when Run was never
// started, and safe to call twice.
func (s *Store) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
}

// Close stops the loop, flushes what remains and closes the database.
func (s *Store) Close() error {
	s.Stop()
	s.flush()
	return s.db.Close()
}

// flush writes the buffered rows in one transaction.
func (s *Store) flush() {
	s.mu.Lock()
	batch := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	start := time.Now()
	if err := s.writeBatch(batch); err != nil {
		metrics.RecordStoreError()
		s.logger.Error(context.Background(), "snapshot batch write failed",
			logger.Int("rows", len(batch)),
			logger.Error(err),
		)
		return
	}

	metrics.RecordStoreRows(len(batch))
	metrics.RecordStoreFlushLatency(float64(time.Since(start)) / float64(time.Millisecond))
	metrics.UpdateStoreBufferSize(0)
}

func (s *Store) writeBatch(batch []model.Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO snapshots (
		session_id, participant_key, captured_at, frame_seq, detected,
		angles, balance_score, symmetry_score, postural_efficiency,
		com_x, com_y
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range batch {
		snap := &batch[i]
		angles, err := json.Marshal(snap.Angles)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode angles: %w", err)
		}
		detected := 0
		if snap.Detected {
			detected = 1
		}
		if _, err := stmt.Exec(
			snap.SessionID, snap.ParticipantKey, snap.CapturedAt.UnixMilli(),
			snap.FrameSeq, detected, string(angles),
			snap.Metrics.BalanceScore, snap.Metrics.SymmetryScore,
			snap.Metrics.PosturalEfficiency,
			snap.Metrics.CenterOfMass.X, snap.Metrics.CenterOfMass.Y,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert snapshot: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}
