package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/movelab/stance/internal/domain/model"
)

// HistoryReader exposes persisted snapshot queries.
type HistoryReader interface {
	History(ctx context.Context, key string, since time.Time, limit int) ([]model.Snapshot, error)
	SummarizeSession(ctx context.Context, sessionID string) (SessionSummary, error)
}

// HistoryHandler handles persisted snapshot queries.
type HistoryHandler struct {
	deps     HistoryReader
	maxLimit int
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(deps HistoryReader, maxLimit int) *HistoryHandler {
	return &HistoryHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleHistory handles GET /history/{key}?since=RFC3339&limit=N requests.
func (h *HistoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_history"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/history/")
	if key == "" || strings.Contains(key, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, errors.New("invalid since; must be RFC3339")))
			return
		}
		since = ts
	}

	limit := h.maxLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		if n > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}

	rows, err := h.deps.History(r.Context(), key, since, limit)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	if rows == nil {
		rows = []model.Snapshot{}
	}
	writeJSON(w, http.StatusOK, rows)
}
