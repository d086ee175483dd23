package store

import (
	"database/sql"
	"errors"
	"time"
)

// Session represents one monitoring run, bounding zero or more incidents.
type Session struct {
	ID              string
	StartedAt       time.Time
	EndedAt         *time.Time
	Active          bool
	FrameCount      int
	IncidentCount   int
	EscalationCount int
}

// SessionRepository provides CRUD operations for sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a new session.
func (r *SessionRepository) Create(sess *Session) error {
	_, err := r.db.Exec(
		`INSERT INTO sessions (id, started_at, ended_at, active, frame_count, incident_count, escalation_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.StartedAt, nullTime(sess.EndedAt), sess.Active,
		sess.FrameCount, sess.IncidentCount, sess.EscalationCount,
	)
	return err
}

// Update writes the mutable fields of a session.
func (r *SessionRepository) Update(sess *Session) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET ended_at = ?, active = ?, frame_count = ?, incident_count = ?, escalation_count = ?
		 WHERE id = ?`,
		nullTime(sess.EndedAt), sess.Active, sess.FrameCount,
		sess.IncidentCount, sess.EscalationCount, sess.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Delete removes a session. Its incidents and their frames, analyses and
// alerts go with it through the cascading foreign keys.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	row := r.db.QueryRow(
		`SELECT id, started_at, ended_at, active, frame_count, incident_count, escalation_count
		 FROM sessions WHERE id = ?`, id,
	)
	return scanSession(row)
}

// GetActive retrieves the currently active session, if any.
func (r *SessionRepository) GetActive() (*Session, error) {
	row := r.db.QueryRow(
		`SELECT id, started_at, ended_at, active, frame_count, incident_count, escalation_count
		 FROM sessions WHERE active = 1 ORDER BY started_at DESC LIMIT 1`,
	)
	return scanSession(row)
}

// List retrieves all sessions, most recent first.
func (r *SessionRepository) List() ([]*Session, error) {
	rows, err := r.db.Query(
		`SELECT id, started_at, ended_at, active, frame_count, incident_count, escalation_count
		 FROM sessions ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	sess := &Session{}
	var endedAt sql.NullTime

	err := row.Scan(&sess.ID, &sess.StartedAt, &endedAt, &sess.Active,
		&sess.FrameCount, &sess.IncidentCount, &sess.EscalationCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}
	return sess, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
