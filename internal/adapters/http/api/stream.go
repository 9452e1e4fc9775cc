package api

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/movelab/stance/internal/domain/model"
	"github.com/movelab/stance/pkg/metrics"
)

// Websocket timing and buffer knobs. pongWait must exceed pingInterval or
// healthy clients get dropped between pings.
const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 15 * time.Second
	wsPongWait     = 40 * time.Second
	wsSendBuffer   = 16
	wsReadLimit    = 512
)

// StreamSource exposes snapshot fan-out for live subscribers.
type StreamSource interface {
	Subscribe(id string, ch chan<- model.Snapshot) error
	Unsubscribe(id string) error
	Latest(key string) (model.Snapshot, bool)
}

// StreamHandler upgrades /stream/{key} requests to websockets and pushes
// snapshots for that key as they are published.
type StreamHandler struct {
	deps     StreamSource
	upgrader websocket.Upgrader
	clients  atomic.Int64
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(deps StreamSource) *StreamHandler {
	return &StreamHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// HandleStream handles GET /stream/{key} requests.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	const op = "api.stream"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/stream/")
	if key == "" || strings.Contains(key, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	// Subscribe before upgrading so failures can still produce a plain
	// HTTP error response.
	id := "ws-" + uuid.NewString()
	updates := make(chan model.Snapshot, wsSendBuffer)
	if err := h.deps.Subscribe(id, updates); err != nil {
		writeDomainError(w, op, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote its own error response.
		_ = h.deps.Unsubscribe(id)
		return
	}
	metrics.UpdateWSClients(int(h.clients.Add(1)))
	defer func() {
		_ = h.deps.Unsubscribe(id)
		_ = conn.Close()
		metrics.UpdateWSClients(int(h.clients.Add(-1)))
	}()

	// The client sends no data, but reading is what surfaces pongs and
	// close frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Seed the stream with the current snapshot so clients render
	// immediately instead of waiting out a sampling interval.
	if snap, ok := h.deps.Latest(key); ok {
		if err := h.send(conn, snap); err != nil {
			return
		}
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case snap := <-updates:
			if snap.ParticipantKey != key {
				continue
			}
			if err := h.send(conn, snap); err != nil {
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) send(conn *websocket.Conn, snap model.Snapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(snap); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	metrics.RecordWSMessage()
	return nil
}
