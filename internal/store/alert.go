package store

import (
	"database/sql"
	"errors"
	"time"
)

// AlertKind identifies what triggered an alert.
type AlertKind string

const (
	// AlertHandDetected fires when an incident starts.
	AlertHandDetected AlertKind = "hand_detected"
	// AlertEscalation fires when a frame batch is submitted for analysis.
	AlertEscalation AlertKind = "escalation"
	// AlertThreatConfirmed fires when a verdict confirms a threat.
	AlertThreatConfirmed AlertKind = "threat_confirmed"
)

// Alert is one user notification. Rows are append-only; acknowledgment is the
// only mutation.
type Alert struct {
	ID               string
	IncidentID       string
	Kind             AlertKind
	SentAt           time.Time
	Message          string
	AudioPlayed      bool
	NotificationSent bool
	Acknowledged     bool
	AcknowledgedAt   *time.Time
}

// AlertRepository provides CRUD operations for alerts.
type AlertRepository struct {
	db *sql.DB
}

// Alerts returns the alert repository for this store.
func (s *Store) Alerts() *AlertRepository {
	return &AlertRepository{db: s.db}
}

// Create inserts a new alert.
func (r *AlertRepository) Create(a *Alert) error {
	_, err := r.db.Exec(
		`INSERT INTO alerts (id, incident_id, kind, sent_at, message, audio_played,
			notification_sent, acknowledged, acknowledged_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.IncidentID, string(a.Kind), a.SentAt, a.Message,
		a.AudioPlayed, a.NotificationSent, a.Acknowledged, nullTime(a.AcknowledgedAt),
	)
	return err
}

// MarkDelivered records the delivery channels that succeeded.
func (r *AlertRepository) MarkDelivered(id string, audioPlayed, notificationSent bool) error {
	result, err := r.db.Exec(
		`UPDATE alerts SET audio_played = ?, notification_sent = ? WHERE id = ?`,
		audioPlayed, notificationSent, id,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Acknowledge marks an alert as acknowledged by the user.
func (r *AlertRepository) Acknowledge(id string, at time.Time) error {
	result, err := r.db.Exec(
		`UPDATE alerts SET acknowledged = 1, acknowledged_at = ? WHERE id = ?`,
		at, id,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// GetByID retrieves an alert by its ID.
func (r *AlertRepository) GetByID(id string) (*Alert, error) {
	row := r.db.QueryRow(alertSelect+` WHERE id = ?`, id)
	return scanAlert(row)
}

// ListByIncident retrieves all alerts for an incident, oldest first.
func (r *AlertRepository) ListByIncident(incidentID string) ([]*Alert, error) {
	rows, err := r.db.Query(alertSelect+` WHERE incident_id = ? ORDER BY sent_at ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

const alertSelect = `SELECT id, incident_id, kind, sent_at, message, audio_played,
	notification_sent, acknowledged, acknowledged_at
 FROM alerts`

func scanAlert(row rowScanner) (*Alert, error) {
	a := &Alert{}
	var kind string
	var acknowledgedAt sql.NullTime

	err := row.Scan(&a.ID, &a.IncidentID, &kind, &a.SentAt, &a.Message,
		&a.AudioPlayed, &a.NotificationSent, &a.Acknowledged, &acknowledgedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	a.Kind = AlertKind(kind)
	if acknowledgedAt.Valid {
		t := acknowledgedAt.Time
		a.AcknowledgedAt = &t
	}
	return a, nil
}
