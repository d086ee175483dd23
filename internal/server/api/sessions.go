package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/bagwatch/internal/store"
)

// SessionHandler serves session records for the review UI.
type SessionHandler struct {
	store *store.Store
}

// NewSessionHandler creates a new SessionHandler with the given store.
func NewSessionHandler(s *store.Store) *SessionHandler {
	return &SessionHandler{store: s}
}

// ServeHTTP routes /api/sessions, /api/sessions/{id} and
// /api/sessions/{id}/incidents. A session can be deleted with
// DELETE /api/sessions/{id}; everything else is read-only.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.TrimPrefix(path, "/")
	id, rest, _ := strings.Cut(path, "/")

	if r.Method == http.MethodDelete && id != "" && rest == "" {
		h.delete(w, r, id)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if path == "" {
		h.list(w, r)
		return
	}

	switch rest {
	case "":
		h.get(w, r, id)
	case "incidents":
		h.incidents(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

type sessionResponse struct {
	ID              string  `json:"id"`
	StartedAt       string  `json:"started_at"`
	EndedAt         *string `json:"ended_at,omitempty"`
	Active          bool    `json:"active"`
	FrameCount      int     `json:"frame_count"`
	IncidentCount   int     `json:"incident_count"`
	EscalationCount int     `json:"escalation_count"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

func sessionToResponse(s *store.Session) sessionResponse {
	return sessionResponse{
		ID:              s.ID,
		StartedAt:       s.StartedAt.Format(time.RFC3339),
		EndedAt:         formatTimePtr(s.EndedAt),
		Active:          s.Active,
		FrameCount:      s.FrameCount,
		IncidentCount:   s.IncidentCount,
		EscalationCount: s.EscalationCount,
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

// list handles GET /api/sessions.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.Sessions().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	resp := listSessionsResponse{Sessions: make([]sessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, sessionToResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// get handles GET /api/sessions/{id}.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, sessionToResponse(sess))
}

// delete handles DELETE /api/sessions/{id}. The session's incidents and
// their records are removed with it.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Sessions().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// incidents handles GET /api/sessions/{id}/incidents.
func (h *SessionHandler) incidents(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.store.Sessions().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	incidents, err := h.store.Incidents().ListBySession(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}
	resp := listIncidentsResponse{Incidents: make([]incidentResponse, 0, len(incidents))}
	for _, inc := range incidents {
		resp.Incidents = append(resp.Incidents, incidentToResponse(inc))
	}
	writeJSON(w, http.StatusOK, resp)
}
