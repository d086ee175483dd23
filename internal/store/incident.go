package store

import (
	"database/sql"
	"errors"
	"time"
)

// EndReason explains why an incident was closed.
type EndReason string

const (
	// EndReasonNoDetection means hands left the frame.
	EndReasonNoDetection EndReason = "no-detection"
	// EndReasonThreatConfirmed means a classifier verdict confirmed a threat.
	EndReasonThreatConfirmed EndReason = "threat-confirmed"
	// EndReasonSessionStopped means the owning session was stopped.
	EndReasonSessionStopped EndReason = "session-stopped"
)

// Incident represents a contiguous run of positive hand detections within
// one session.
type Incident struct {
	ID                  string
	SessionID           string
	StartedAt           time.Time
	EndedAt             *time.Time
	Active              bool
	EndReason           EndReason
	FrameCount          int
	MaxHandCount        int
	MaxConfidence       float64
	EscalationThreshold int
	BatchesSent         int
	ThreatConfirmed     bool
	ThreatConfidence    *float64
	ThreatExplanation   string
	Alerted             bool
	AlertSentAt         *time.Time
}

// IncidentRepository provides CRUD operations for incidents.
type IncidentRepository struct {
	db *sql.DB
}

// Incidents returns the incident repository for this store.
func (s *Store) Incidents() *IncidentRepository {
	return &IncidentRepository{db: s.db}
}

// Create inserts a new incident.
func (r *IncidentRepository) Create(inc *Incident) error {
	_, err := r.db.Exec(
		`INSERT INTO incidents (id, session_id, started_at, ended_at, active, end_reason,
			frame_count, max_hand_count, max_confidence, escalation_threshold, batches_sent,
			threat_confirmed, threat_confidence, threat_explanation, alerted, alert_sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.SessionID, inc.StartedAt, nullTime(inc.EndedAt), inc.Active, string(inc.EndReason),
		inc.FrameCount, inc.MaxHandCount, inc.MaxConfidence, inc.EscalationThreshold, inc.BatchesSent,
		inc.ThreatConfirmed, nullFloat(inc.ThreatConfidence), inc.ThreatExplanation,
		inc.Alerted, nullTime(inc.AlertSentAt),
	)
	return err
}

// Update writes the mutable fields of an incident.
func (r *IncidentRepository) Update(inc *Incident) error {
	result, err := r.db.Exec(
		`UPDATE incidents SET ended_at = ?, active = ?, end_reason = ?, frame_count = ?,
			max_hand_count = ?, max_confidence = ?, batches_sent = ?,
			threat_confirmed = ?, threat_confidence = ?, threat_explanation = ?,
			alerted = ?, alert_sent_at = ?
		 WHERE id = ?`,
		nullTime(inc.EndedAt), inc.Active, string(inc.EndReason), inc.FrameCount,
		inc.MaxHandCount, inc.MaxConfidence, inc.BatchesSent,
		inc.ThreatConfirmed, nullFloat(inc.ThreatConfidence), inc.ThreatExplanation,
		inc.Alerted, nullTime(inc.AlertSentAt), inc.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Delete removes an incident along with its frames, analyses and alerts.
func (r *IncidentRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM incidents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// GetByID retrieves an incident by its ID.
func (r *IncidentRepository) GetByID(id string) (*Incident, error) {
	row := r.db.QueryRow(incidentSelect+` WHERE id = ?`, id)
	return scanIncident(row)
}

// ListBySession retrieves all incidents for a session, oldest first.
func (r *IncidentRepository) ListBySession(sessionID string) ([]*Incident, error) {
	rows, err := r.db.Query(incidentSelect+` WHERE session_id = ? ORDER BY started_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIncidents(rows)
}

// List retrieves all incidents, most recent first.
func (r *IncidentRepository) List() ([]*Incident, error) {
	rows, err := r.db.Query(incidentSelect + ` ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIncidents(rows)
}

const incidentSelect = `SELECT id, session_id, started_at, ended_at, active, end_reason,
	frame_count, max_hand_count, max_confidence, escalation_threshold, batches_sent,
	threat_confirmed, threat_confidence, threat_explanation, alerted, alert_sent_at
 FROM incidents`

func scanIncident(row rowScanner) (*Incident, error) {
	inc := &Incident{}
	var endedAt, alertSentAt sql.NullTime
	var threatConfidence sql.NullFloat64
	var endReason string

	err := row.Scan(&inc.ID, &inc.SessionID, &inc.StartedAt, &endedAt, &inc.Active, &endReason,
		&inc.FrameCount, &inc.MaxHandCount, &inc.MaxConfidence, &inc.EscalationThreshold,
		&inc.BatchesSent, &inc.ThreatConfirmed, &threatConfidence, &inc.ThreatExplanation,
		&inc.Alerted, &alertSentAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	inc.EndReason = EndReason(endReason)
	if endedAt.Valid {
		t := endedAt.Time
		inc.EndedAt = &t
	}
	if alertSentAt.Valid {
		t := alertSentAt.Time
		inc.AlertSentAt = &t
	}
	if threatConfidence.Valid {
		c := threatConfidence.Float64
		inc.ThreatConfidence = &c
	}
	return inc, nil
}

func collectIncidents(rows *sql.Rows) ([]*Incident, error) {
	var incidents []*Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}
