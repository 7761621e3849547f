package server

import (
	"fmt"
	"net/http"

	"github.com/ayusman/mudra/internal/preview"
)

// StreamHandler serves the preview as MJPEG.
type StreamHandler struct {
	hub *preview.Hub
}

// NewStreamHandler creates a new StreamHandler reading from hub.
func NewStreamHandler(hub *preview.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// ServeHTTP streams MJPEG frames to connected clients until they disconnect.
// While mapping mode holds the preview frozen, the last frame is repeated.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	snaps, cancel := h.hub.Subscribe(2)
	defer cancel()

	if latest, ok := h.hub.Latest(); ok {
		if err := writePart(w, latest.JPEG); err != nil {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if err := writePart(w, snap.JPEG); err != nil {
				return
			}
		}
	}
}

// writePart writes one MJPEG frame. Snapshots without an image are skipped.
func writePart(w http.ResponseWriter, jpeg []byte) error {
	if len(jpeg) == 0 {
		return nil
	}

	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
