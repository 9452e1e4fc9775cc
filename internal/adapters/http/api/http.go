// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/movelab/stance/internal/adapters/store"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatusReporter
	SnapshotReader
	SessionRegistry
	HistoryReader
	StreamSource
}

// SessionSummary mirrors the read shape returned by history aggregation.
type SessionSummary = store.SessionSummary

// ParticipantSummary mirrors the per-participant slice of a session summary.
type ParticipantSummary = store.ParticipantSummary

const (
	// defaultStaleAfter covers three ticks at the default sampling interval.
	defaultStaleAfter = 600 * time.Millisecond

	// defaultHistoryLimit caps rows returned by a single history query.
	defaultHistoryLimit = 1000
)

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	metricsHandler   *MetricsHandler
	statsHandler     *StatsHandler
	schemaHandler    *SchemaHandler
	snapshotsHandler *SnapshotsHandler
	sessionsHandler  *SessionsHandler
	historyHandler   *HistoryHandler
	streamHandler    *StreamHandler
}

// NewServer creates a new API server with all handlers. staleAfter bounds
// how old a snapshot may get before single-key reads report it as stale; a
// non-positive value falls back to the default.
func NewServer(deps Dependencies, statsProvider StatsProvider, staleAfter time.Duration) *Server {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &Server{
		healthHandler:    NewHealthHandler(deps),
		metricsHandler:   NewMetricsHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		schemaHandler:    NewSchemaHandler(),
		snapshotsHandler: NewSnapshotsHandler(deps, staleAfter),
		sessionsHandler:  NewSessionsHandler(deps, deps),
		historyHandler:   NewHistoryHandler(deps, defaultHistoryLimit),
		streamHandler:    NewStreamHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.metricsHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/schema", MetricsMiddleware(s.schemaHandler.HandleSchema, "schema"))
	mux.HandleFunc("/snapshots", MetricsMiddleware(s.snapshotsHandler.HandleList, "snapshots"))
	mux.HandleFunc("/snapshots/", MetricsMiddleware(s.snapshotsHandler.HandleGet, "snapshot"))
	mux.HandleFunc("/sessions", MetricsMiddleware(s.sessionsHandler.HandleSessions, "sessions"))
	mux.HandleFunc("/sessions/", MetricsMiddleware(s.sessionsHandler.HandleSession, "session"))
	mux.HandleFunc("/history/", MetricsMiddleware(s.historyHandler.HandleHistory, "history"))
	// The upgrade needs the raw ResponseWriter, so no metrics wrapper here.
	mux.HandleFunc("/stream/", s.streamHandler.HandleStream)
}

type ackResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
