package store

import (
	"database/sql"
	"time"
)

// Frame is one detection frame recorded inside an incident. Rows are
// append-only and never mutated.
type Frame struct {
	ID                int64
	IncidentID        string
	FrameNumber       int // sequence within the incident, starts at 1
	GlobalFrameNumber int // sequence within the owning session
	Timestamp         time.Time
	Detected          bool
	HandCount         int
	Confidence        float64
	HandData          string // JSON array of per-hand detection records
	ImageData         string // optional base64 JPEG snapshot
}

// FrameRepository provides append and range reads for incident frames.
type FrameRepository struct {
	db *sql.DB
}

// Frames returns the frame repository for this store.
func (s *Store) Frames() *FrameRepository {
	return &FrameRepository{db: s.db}
}

// Append inserts a frame record and fills in its row ID.
func (r *FrameRepository) Append(f *Frame) error {
	handData := f.HandData
	if handData == "" {
		handData = "[]"
	}

	var imageData sql.NullString
	if f.ImageData != "" {
		imageData = sql.NullString{String: f.ImageData, Valid: true}
	}

	result, err := r.db.Exec(
		`INSERT INTO incident_frames (incident_id, frame_number, global_frame_number, timestamp,
			detected, hand_count, confidence, hand_data, image_data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.IncidentID, f.FrameNumber, f.GlobalFrameNumber, f.Timestamp,
		f.Detected, f.HandCount, f.Confidence, handData, imageData,
	)
	if err != nil {
		return err
	}

	f.ID, err = result.LastInsertId()
	return err
}

// ListByIncident retrieves all frames of an incident in sequence order.
func (r *FrameRepository) ListByIncident(incidentID string) ([]*Frame, error) {
	rows, err := r.db.Query(frameSelect+` WHERE incident_id = ? ORDER BY frame_number ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFrames(rows)
}

// LastN retrieves the most recent n frames of an incident in chronological
// order. Used by the dashboard API to show what a batch contained.
func (r *FrameRepository) LastN(incidentID string, n int) ([]*Frame, error) {
	rows, err := r.db.Query(
		frameSelect+` WHERE incident_id = ? ORDER BY frame_number DESC LIMIT ?`,
		incidentID, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	frames, err := collectFrames(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
		frames[i], frames[j] = frames[j], frames[i]
	}
	return frames, nil
}

// CountByIncident returns the number of frames recorded for an incident.
func (r *FrameRepository) CountByIncident(incidentID string) (int, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM incident_frames WHERE incident_id = ?`, incidentID,
	).Scan(&n)
	return n, err
}

const frameSelect = `SELECT id, incident_id, frame_number, global_frame_number, timestamp,
	detected, hand_count, confidence, hand_data, COALESCE(image_data, '')
 FROM incident_frames`

func collectFrames(rows *sql.Rows) ([]*Frame, error) {
	var frames []*Frame
	for rows.Next() {
		f := &Frame{}
		err := rows.Scan(&f.ID, &f.IncidentID, &f.FrameNumber, &f.GlobalFrameNumber,
			&f.Timestamp, &f.Detected, &f.HandCount, &f.Confidence, &f.HandData, &f.ImageData)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}
