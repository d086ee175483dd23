package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/bagwatch/internal/store"
)

// AlertHandler acknowledges alerts.
type AlertHandler struct {
	store *store.Store
}

// NewAlertHandler creates a new AlertHandler with the given store.
func NewAlertHandler(s *store.Store) *AlertHandler {
	return &AlertHandler{store: s}
}

// ServeHTTP routes /api/alerts/{id}/ack.
func (h *AlertHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/alerts/")
	id, rest, _ := strings.Cut(path, "/")
	if id == "" || rest != "ack" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := h.store.Alerts().Acknowledge(id, time.Now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to acknowledge alert")
		return
	}

	alert, err := h.store.Alerts().GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load alert")
		return
	}
	writeJSON(w, http.StatusOK, alertToResponse(alert))
}
