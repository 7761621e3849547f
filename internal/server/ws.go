package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/preview"
)

const wsWriteTimeout = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// ReadingsHandler pushes every preview snapshot (mode, selection, readings and
// MIDI values, without the image) to WebSocket clients as JSON.
type ReadingsHandler struct {
	hub    *preview.Hub
	logger *slog.Logger
}

// NewReadingsHandler creates a new ReadingsHandler reading from hub.
func NewReadingsHandler(hub *preview.Hub, logger *slog.Logger) *ReadingsHandler {
	return &ReadingsHandler{hub: hub, logger: logger}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *ReadingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	snaps, cancel := h.hub.Subscribe(8)
	defer cancel()

	// Drain client messages so close frames are noticed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if latest, ok := h.hub.Latest(); ok {
		if err := h.send(conn, latest); err != nil {
			return
		}
	}

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if err := h.send(conn, snap); err != nil {
				h.logger.Debug("websocket client gone", "error", err)
				return
			}
		}
	}
}

func (h *ReadingsHandler) send(conn *websocket.Conn, snap preview.Snapshot) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(snap)
}
