package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/movelab/stance/internal/domain/model"
)

// Display states for single-key snapshot reads.
const (
	StateOK       = "ok"
	StateNoPerson = "no_person"
	StateStale    = "stale"
)

// SnapshotReader exposes the live snapshot table.
type SnapshotReader interface {
	Latest(key string) (model.Snapshot, bool)
	All() map[string]model.Snapshot
}

// SnapshotsHandler handles live snapshot reads.
type SnapshotsHandler struct {
	deps       SnapshotReader
	staleAfter time.Duration
	now        func() time.Time
}

// NewSnapshotsHandler creates a new snapshots handler.
func NewSnapshotsHandler(deps SnapshotReader, staleAfter time.Duration) *SnapshotsHandler {
	return &SnapshotsHandler{deps: deps, staleAfter: staleAfter, now: time.Now}
}

// HandleList handles GET /snapshots requests.
func (h *SnapshotsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.All())
}

type snapshotResponse struct {
	State    string         `json:"state"`
	Snapshot model.Snapshot `json:"snapshot"`
}

// HandleGet handles GET /snapshots/{key} requests.
func (h *SnapshotsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_snapshot"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/snapshots/")
	if key == "" || strings.Contains(key, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	snap, ok := h.deps.Latest(key)
	if !ok {
		writeError(w, http.StatusNotFound, "no_data", NewKind(op, ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{State: h.state(snap), Snapshot: snap})
}

// state ranks staleness above detection: a frozen feed reads as stale even
// when its last good frame had a person in it.
func (h *SnapshotsHandler) state(snap model.Snapshot) string {
	if h.now().Sub(snap.CapturedAt) > h.staleAfter {
		return StateStale
	}
	if !snap.Detected {
		return StateNoPerson
	}
	return StateOK
}
