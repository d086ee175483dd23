package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/bagwatch/internal/app"
	"github.com/ayusman/bagwatch/internal/engine"
)

// MonitorHandler controls the monitoring pipeline over HTTP.
type MonitorHandler struct {
	app *app.App
}

// NewMonitorHandler creates a new MonitorHandler around the pipeline.
func NewMonitorHandler(a *app.App) *MonitorHandler {
	return &MonitorHandler{app: a}
}

// ServeHTTP routes /api/monitor/start and /api/monitor/stop.
func (h *MonitorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(r.URL.Path, "/api/monitor/")
	switch action {
	case "start":
		h.start(w, r)
	case "stop":
		h.stop(w, r)
	default:
		writeError(w, http.StatusNotFound, "unknown monitor action")
	}
}

type monitorResponse struct {
	Monitoring bool   `json:"monitoring"`
	SessionID  string `json:"session_id,omitempty"`
}

// start handles POST /api/monitor/start.
func (h *MonitorHandler) start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, err := h.app.StartMonitoring()
	if err != nil {
		if errors.Is(err, engine.ErrSessionActive) {
			writeError(w, http.StatusConflict, "monitoring already active")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, monitorResponse{Monitoring: true, SessionID: id})
}

// stop handles POST /api/monitor/stop.
func (h *MonitorHandler) stop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := h.app.StopMonitoring(); err != nil {
		if errors.Is(err, engine.ErrNoSession) {
			writeError(w, http.StatusConflict, "monitoring not active")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, monitorResponse{Monitoring: false})
}

// Status handles GET /api/status and reports the live session counters.
func (h *MonitorHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	st, err := h.app.Engine().Status()
	if err != nil {
		if errors.Is(err, engine.ErrNoSession) {
			writeJSON(w, http.StatusOK, monitorResponse{Monitoring: false})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}
