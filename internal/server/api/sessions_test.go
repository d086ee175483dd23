package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ayusman/bagwatch/internal/store"
)

func TestSessionHandler_ListAndGet(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(s)

	ended := time.Now()
	sess := &store.Session{
		ID:              "sess-9",
		StartedAt:       ended.Add(-time.Minute),
		EndedAt:         &ended,
		Active:          false,
		FrameCount:      120,
		IncidentCount:   2,
		EscalationCount: 3,
	}
	if err := s.Sessions().Create(sess); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var listResp listSessionsResponse
	if err := json.NewDecoder(rec.Body).Decode(&listResp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(listResp.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(listResp.Sessions))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/sessions/sess-9", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var resp sessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.FrameCount != 120 || resp.IncidentCount != 2 || resp.EscalationCount != 3 {
		t.Errorf("unexpected counters: %+v", resp)
	}
	if resp.EndedAt == nil {
		t.Error("expected ended_at to be set")
	}
}

func TestSessionHandler_Incidents(t *testing.T) {
	s := newTestStore(t)
	inc := seedIncident(t, s)
	handler := NewSessionHandler(s)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+inc.SessionID+"/incidents", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var resp listIncidentsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Incidents) != 1 || resp.Incidents[0].ID != inc.ID {
		t.Fatalf("unexpected incidents: %+v", resp.Incidents)
	}
}

func TestSessionHandler_NotFound(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(s)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/missing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestSessionHandler_Delete(t *testing.T) {
	s := newTestStore(t)
	inc := seedIncident(t, s)
	handler := NewSessionHandler(s)

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/"+inc.SessionID, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	if _, err := s.Sessions().GetByID(inc.SessionID); err == nil {
		t.Error("session should be gone after delete")
	}
	// Incidents cascade with the session.
	if _, err := s.Incidents().GetByID(inc.ID); err == nil {
		t.Error("incident should be gone with its session")
	}
}

func TestSessionHandler_DeleteMissing(t *testing.T) {
	s := newTestStore(t)
	handler := NewSessionHandler(s)

	req := httptest.NewRequest(http.MethodDelete, "/api/sessions/missing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestAlertHandler_Acknowledge(t *testing.T) {
	s := newTestStore(t)
	inc := seedIncident(t, s)

	alert := &store.Alert{
		ID:         "alert-1",
		IncidentID: inc.ID,
		Kind:       store.AlertHandDetected,
		SentAt:     time.Now(),
		Message:    "Attention. Hands detected near your bag.",
	}
	if err := s.Alerts().Create(alert); err != nil {
		t.Fatalf("failed to create alert: %v", err)
	}

	handler := NewAlertHandler(s)
	req := httptest.NewRequest(http.MethodPost, "/api/alerts/alert-1/ack", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var resp alertResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Acknowledged || resp.AcknowledgedAt == nil {
		t.Errorf("expected alert to be acknowledged: %+v", resp)
	}
}

func TestAlertHandler_AcknowledgeMissing(t *testing.T) {
	s := newTestStore(t)
	handler := NewAlertHandler(s)

	req := httptest.NewRequest(http.MethodPost, "/api/alerts/missing/ack", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}
