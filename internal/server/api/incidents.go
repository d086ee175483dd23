package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/bagwatch/internal/store"
)

// IncidentHandler serves incident records and their sub-resources.
type IncidentHandler struct {
	store *store.Store
}

// NewIncidentHandler creates a new IncidentHandler with the given store.
func NewIncidentHandler(s *store.Store) *IncidentHandler {
	return &IncidentHandler{store: s}
}

// ServeHTTP routes /api/incidents, /api/incidents/{id} and the
// frames/analyses/alerts sub-resources. An incident can be deleted with
// DELETE /api/incidents/{id}; everything else is read-only.
func (h *IncidentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/incidents")
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
	case "frames":
		h.frames(w, r, id)
	case "analyses":
		h.analyses(w, r, id)
	case "alerts":
		h.alerts(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

type incidentResponse struct {
	ID                  string   `json:"id"`
	SessionID           string   `json:"session_id"`
	StartedAt           string   `json:"started_at"`
	EndedAt             *string  `json:"ended_at,omitempty"`
	Active              bool     `json:"active"`
	EndReason           string   `json:"end_reason,omitempty"`
	FrameCount          int      `json:"frame_count"`
	MaxHandCount        int      `json:"max_hand_count"`
	MaxConfidence       float64  `json:"max_confidence"`
	EscalationThreshold int      `json:"escalation_threshold"`
	BatchesSent         int      `json:"batches_sent"`
	ThreatConfirmed     bool     `json:"threat_confirmed"`
	ThreatConfidence    *float64 `json:"threat_confidence,omitempty"`
	ThreatExplanation   string   `json:"threat_explanation,omitempty"`
	Alerted             bool     `json:"alerted"`
}

type listIncidentsResponse struct {
	Incidents []incidentResponse `json:"incidents"`
}

func incidentToResponse(inc *store.Incident) incidentResponse {
	return incidentResponse{
		ID:                  inc.ID,
		SessionID:           inc.SessionID,
		StartedAt:           inc.StartedAt.Format(time.RFC3339),
		EndedAt:             formatTimePtr(inc.EndedAt),
		Active:              inc.Active,
		EndReason:           string(inc.EndReason),
		FrameCount:          inc.FrameCount,
		MaxHandCount:        inc.MaxHandCount,
		MaxConfidence:       inc.MaxConfidence,
		EscalationThreshold: inc.EscalationThreshold,
		BatchesSent:         inc.BatchesSent,
		ThreatConfirmed:     inc.ThreatConfirmed,
		ThreatConfidence:    inc.ThreatConfidence,
		ThreatExplanation:   inc.ThreatExplanation,
		Alerted:             inc.Alerted,
	}
}

// list handles GET /api/incidents.
func (h *IncidentHandler) list(w http.ResponseWriter, r *http.Request) {
	incidents, err := h.store.Incidents().List()
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

// get handles GET /api/incidents/{id}.
func (h *IncidentHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	inc, err := h.store.Incidents().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load incident")
		return
	}
	writeJSON(w, http.StatusOK, incidentToResponse(inc))
}

// delete handles DELETE /api/incidents/{id}. Frames, analyses and alerts
// are removed with the incident.
func (h *IncidentHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Incidents().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "incident not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete incident")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

type frameResponse struct {
	FrameNumber       int     `json:"frame_number"`
	GlobalFrameNumber int     `json:"global_frame_number"`
	Timestamp         string  `json:"timestamp"`
	HandCount         int     `json:"hand_count"`
	Confidence        float64 `json:"confidence"`
	HandData          string  `json:"hand_data,omitempty"`
	ImageData         string  `json:"image_data,omitempty"`
}

// frames handles GET /api/incidents/{id}/frames. A ?last=N query limits the
// result to the N most recent frames, still in chronological order.
func (h *IncidentHandler) frames(w http.ResponseWriter, r *http.Request, id string) {
	var frames []*store.Frame
	var err error
	if raw := r.URL.Query().Get("last"); raw != "" {
		n, perr := strconv.Atoi(raw)
		if perr != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "last must be a positive integer")
			return
		}
		frames, err = h.store.Frames().LastN(id, n)
	} else {
		frames, err = h.store.Frames().ListByIncident(id)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list frames")
		return
	}
	out := make([]frameResponse, 0, len(frames))
	for _, f := range frames {
		out = append(out, frameResponse{
			FrameNumber:       f.FrameNumber,
			GlobalFrameNumber: f.GlobalFrameNumber,
			Timestamp:         f.Timestamp.Format(time.RFC3339),
			HandCount:         f.HandCount,
			Confidence:        f.Confidence,
			HandData:          f.HandData,
			ImageData:         f.ImageData,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"frames": out})
}

type analysisResponse struct {
	BatchSeq       int     `json:"batch_seq"`
	Status         string  `json:"status"`
	DispatchedAt   string  `json:"dispatched_at"`
	ResolvedAt     *string `json:"resolved_at,omitempty"`
	FrameStart     int     `json:"frame_start"`
	FrameEnd       int     `json:"frame_end"`
	ThreatDetected bool    `json:"threat_detected"`
	Confidence     float64 `json:"confidence"`
	Explanation    string  `json:"explanation,omitempty"`
	LatencyMs      int64   `json:"latency_ms,omitempty"`
}

// analyses handles GET /api/incidents/{id}/analyses.
func (h *IncidentHandler) analyses(w http.ResponseWriter, r *http.Request, id string) {
	analyses, err := h.store.Analyses().ListByIncident(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list analyses")
		return
	}
	out := make([]analysisResponse, 0, len(analyses))
	for _, a := range analyses {
		out = append(out, analysisResponse{
			BatchSeq:       a.BatchSeq,
			Status:         string(a.Status),
			DispatchedAt:   a.DispatchedAt.Format(time.RFC3339),
			ResolvedAt:     formatTimePtr(a.ResolvedAt),
			FrameStart:     a.FrameStart,
			FrameEnd:       a.FrameEnd,
			ThreatDetected: a.ThreatDetected,
			Confidence:     a.Confidence,
			Explanation:    a.Explanation,
			LatencyMs:      a.LatencyMs,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": out})
}

type alertResponse struct {
	ID               string  `json:"id"`
	IncidentID       string  `json:"incident_id"`
	Kind             string  `json:"kind"`
	SentAt           string  `json:"sent_at"`
	Message          string  `json:"message"`
	AudioPlayed      bool    `json:"audio_played"`
	NotificationSent bool    `json:"notification_sent"`
	Acknowledged     bool    `json:"acknowledged"`
	AcknowledgedAt   *string `json:"acknowledged_at,omitempty"`
}

func alertToResponse(a *store.Alert) alertResponse {
	return alertResponse{
		ID:               a.ID,
		IncidentID:       a.IncidentID,
		Kind:             string(a.Kind),
		SentAt:           a.SentAt.Format(time.RFC3339),
		Message:          a.Message,
		AudioPlayed:      a.AudioPlayed,
		NotificationSent: a.NotificationSent,
		Acknowledged:     a.Acknowledged,
		AcknowledgedAt:   formatTimePtr(a.AcknowledgedAt),
	}
}

// alerts handles GET /api/incidents/{id}/alerts.
func (h *IncidentHandler) alerts(w http.ResponseWriter, r *http.Request, id string) {
	alerts, err := h.store.Alerts().ListByIncident(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, alertToResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": out})
}
