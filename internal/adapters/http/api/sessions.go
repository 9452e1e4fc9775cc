package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/movelab/stance/internal/domain/model"
	"github.com/movelab/stance/internal/domain/types"
)

// SessionRegistry defines the control surface for capture sessions.
type SessionRegistry interface {
	Sessions(ctx context.Context) []types.SessionInfo
	StartSession(ctx context.Context, mode model.SessionMode, bindings []types.Binding) (types.SessionInfo, error)
	EndSession(ctx context.Context, sessionID string) error
}

// SessionsHandler handles session lifecycle requests.
type SessionsHandler struct {
	registry SessionRegistry
	history  HistoryReader
}

// NewSessionsHandler creates a new sessions handler. The history reader backs
// the per-session summary route.
func NewSessionsHandler(registry SessionRegistry, history HistoryReader) *SessionsHandler {
	return &SessionsHandler{registry: registry, history: history}
}

// startSessionRequest mirrors the request schema for POST /sessions.
type startSessionRequest struct {
	Mode     string          `json:"mode"`
	Bindings []types.Binding `json:"bindings"`
}

func (s startSessionRequest) validate() error {
	if len(s.Bindings) == 0 {
		return errors.New("missing bindings")
	}
	for _, b := range s.Bindings {
		if strings.TrimSpace(b.Participant) == "" {
			return errors.New("binding missing participant")
		}
	}
	if s.Mode != "" && !model.SessionMode(s.Mode).Valid() {
		return fmt.Errorf("invalid mode %q", s.Mode)
	}
	return nil
}

// HandleSessions handles GET and POST /sessions requests.
func (h *SessionsHandler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.start(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *SessionsHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions := h.registry.Sessions(r.Context())
	if sessions == nil {
		sessions = []types.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *SessionsHandler) start(w http.ResponseWriter, r *http.Request) {
	const op = "api.start_session"
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
		return
	}
	info, err := h.registry.StartSession(r.Context(), model.SessionMode(req.Mode), req.Bindings)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// HandleSession handles DELETE /sessions/{id} and GET /sessions/{id}/summary.
func (h *SessionsHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	const op = "api.session"
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	id, rest, _ := strings.Cut(path, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	switch {
	case rest == "" && r.Method == http.MethodDelete:
		h.end(w, r, id)
	case rest == "summary" && r.Method == http.MethodGet:
		h.summary(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (h *SessionsHandler) end(w http.ResponseWriter, r *http.Request, id string) {
	const op = "api.end_session"
	if err := h.registry.EndSession(r.Context(), id); err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "ended"})
}

func (h *SessionsHandler) summary(w http.ResponseWriter, r *http.Request, id string) {
	const op = "api.session_summary"
	summary, err := h.history.SummarizeSession(r.Context(), id)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
