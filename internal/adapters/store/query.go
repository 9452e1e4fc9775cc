package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/movelab/stance/internal/domain/model"
)

const defaultHistoryLimit = 100

// ParticipantSummary aggregates one participant's rows within a session.
// Score statistics cover detected samples only; the detection rate covers
// everything.
type ParticipantSummary struct {
	ParticipantKey string  `json:"participant_key"`
	Samples        int     `json:"samples"`
	DetectionRate  float64 `json:"detection_rate"`
	MeanBalance    float64 `json:"mean_balance"`
	StddevBalance  float64 `json:"stddev_balance"`
	MeanSymmetry   float64 `json:"mean_symmetry"`
	StddevSymmetry float64 `json:"stddev_symmetry"`
	MeanEfficiency float64 `json:"mean_efficiency"`
}

// SessionSummary is the per-session aggregate view.
type SessionSummary struct {
	SessionID    string               `json:"session_id"`
	Participants []ParticipantSummary `json:"participants"`
}

// History returns a participant's snapshots captured at or after since,
// newest first. A non-positive limit falls back to the default. Buffered
// rows are flushed first so reads always see the latest writes.
func (s *Store) History(ctx context.Context, key string, since time.Time, limit int) ([]model.Snapshot, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	s.flush()

	rows, err := s.db.QueryContext(ctx, `SELECT
		session_id, participant_key, captured_at, frame_seq, detected,
		angles, balance_score, symmetry_score, postural_efficiency,
		com_x, com_y
	FROM snapshots
	WHERE participant_key = ? AND captured_at >= ?
	ORDER BY captured_at DESC
	LIMIT ?`, key, since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []model.Snapshot
	for rows.Next() {
		var (
			snap       model.Snapshot
			capturedAt int64
			detected   int
			angles     string
		)
		if err := rows.Scan(
			&snap.SessionID, &snap.ParticipantKey, &capturedAt, &snap.FrameSeq,
			&detected, &angles,
			&snap.Metrics.BalanceScore, &snap.Metrics.SymmetryScore,
			&snap.Metrics.PosturalEfficiency,
			&snap.Metrics.CenterOfMass.X, &snap.Metrics.CenterOfMass.Y,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		snap.CapturedAt = time.UnixMilli(capturedAt)
		snap.Detected = detected != 0
		if err := json.Unmarshal([]byte(angles), &snap.Angles); err != nil {
			return nil, fmt.Errorf("decode angles: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history rows: %w", err)
	}
	return out, nil
}

// SummarizeSession aggregates a session's rows per participant. An unknown
// session yields an empty summary, not an error; session existence is the
// registry's business.
func (s *Store) SummarizeSession(ctx context.Context, sessionID string) (SessionSummary, error) {
	s.flush()

	rows, err := s.db.QueryContext(ctx, `SELECT
		participant_key, detected, balance_score, symmetry_score, postural_efficiency
	FROM snapshots
	WHERE session_id = ?`, sessionID)
	if err != nil {
		return SessionSummary{}, fmt.Errorf("query session rows: %w", err)
	}
	defer rows.Close()

	type acc struct {
		samples    int
		detected   int
		balance    []float64
		symmetry   []float64
		efficiency []float64
	}
	byKey := make(map[string]*acc)

	for rows.Next() {
		var (
			key                           string
			detected                      int
			balance, symmetry, efficiency float64
		)
		if err := rows.Scan(&key, &detected, &balance, &symmetry, &efficiency); err != nil {
			return SessionSummary{}, fmt.Errorf("scan session row: %w", err)
		}
		a := byKey[key]
		if a == nil {
			a = &acc{}
			byKey[key] = a
		}
		a.samples++
		if detected != 0 {
			a.detected++
			a.balance = append(a.balance, balance)
			a.symmetry = append(a.symmetry, symmetry)
			a.efficiency = append(a.efficiency, efficiency)
		}
	}
	if err := rows.Err(); err != nil {
		return SessionSummary{}, fmt.Errorf("read session rows: %w", err)
	}

	summary := SessionSummary{SessionID: sessionID}
	for key, a := range byKey {
		summary.Participants = append(summary.Participants, ParticipantSummary{
			ParticipantKey: key,
			Samples:        a.samples,
			DetectionRate:  float64(a.detected) / float64(a.samples),
			MeanBalance:    meanOf(a.balance),
			StddevBalance:  stddevOf(a.balance),
			MeanSymmetry:   meanOf(a.symmetry),
			StddevSymmetry: stddevOf(a.symmetry),
			MeanEfficiency: meanOf(a.efficiency),
		})
	}
	sort.Slice(summary.Participants, func(i, j int) bool {
		return summary.Participants[i].ParticipantKey < summary.Participants[j].ParticipantKey
	})
	return summary, nil
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

func stddevOf(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}
