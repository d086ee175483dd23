package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayusman/bagwatch/internal/app"
)

// StreamHandler serves the live camera view as MJPEG. Frames come from the
// pipeline's snapshot buffer, so streaming never competes with detection
// for camera reads.
type StreamHandler struct {
	app *app.App
}

// NewStreamHandler creates a new StreamHandler backed by the pipeline.
func NewStreamHandler(a *app.App) *StreamHandler {
	return &StreamHandler{app: a}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(66 * time.Millisecond) // ~15 FPS
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		jpeg := h.app.Snapshot()
		if jpeg == nil {
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(jpeg))
		w.Write(jpeg)
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
