package store

import (
	"database/sql"
	"errors"
	"time"
)

// AnalysisStatus tracks the lifecycle of an escalation batch.
type AnalysisStatus string

const (
	// AnalysisPending means the batch is in flight to the classifier.
	AnalysisPending AnalysisStatus = "pending"
	// AnalysisResolved means the classifier answered and the verdict was
	// applied to a still-active incident.
	AnalysisResolved AnalysisStatus = "resolved"
	// AnalysisFailed means the classifier call errored or timed out.
	AnalysisFailed AnalysisStatus = "failed"
	// AnalysisStale means the verdict arrived after the incident closed and
	// was recorded for audit only.
	AnalysisStale AnalysisStatus = "stale"
)

// Analysis records one escalation batch and its verdict. An incident
// accumulates analyses with strictly increasing batch sequence numbers.
type Analysis struct {
	ID             int64
	IncidentID     string
	BatchSeq       int
	Status         AnalysisStatus
	DispatchedAt   time.Time
	ResolvedAt     *time.Time
	FrameStart     int
	FrameEnd       int
	ThreatDetected bool
	Confidence     float64
	Explanation    string
	RawResponse    string
	LatencyMs      int64
	TokensUsed     int
}

// AnalysisRepository provides CRUD operations for analyses.
type AnalysisRepository struct {
	db *sql.DB
}

// Analyses returns the analysis repository for this store.
func (s *Store) Analyses() *AnalysisRepository {
	return &AnalysisRepository{db: s.db}
}

// Create inserts a new analysis record and fills in its row ID.
func (r *AnalysisRepository) Create(a *Analysis) error {
	result, err := r.db.Exec(
		`INSERT INTO analyses (incident_id, batch_seq, status, dispatched_at, resolved_at,
			frame_start, frame_end, threat_detected, confidence, explanation, raw_response,
			latency_ms, tokens_used)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.IncidentID, a.BatchSeq, string(a.Status), a.DispatchedAt, nullTime(a.ResolvedAt),
		a.FrameStart, a.FrameEnd, a.ThreatDetected, a.Confidence, a.Explanation, a.RawResponse,
		a.LatencyMs, a.TokensUsed,
	)
	if err != nil {
		return err
	}

	a.ID, err = result.LastInsertId()
	return err
}

// Resolve writes the verdict fields of an analysis identified by incident and
// batch sequence.
func (r *AnalysisRepository) Resolve(a *Analysis) error {
	result, err := r.db.Exec(
		`UPDATE analyses SET status = ?, resolved_at = ?, threat_detected = ?, confidence = ?,
			explanation = ?, raw_response = ?, latency_ms = ?, tokens_used = ?
		 WHERE incident_id = ? AND batch_seq = ?`,
		string(a.Status), nullTime(a.ResolvedAt), a.ThreatDetected, a.Confidence,
		a.Explanation, a.RawResponse, a.LatencyMs, a.TokensUsed,
		a.IncidentID, a.BatchSeq,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// GetByBatch retrieves the analysis for one (incident, batch_seq) pair.
func (r *AnalysisRepository) GetByBatch(incidentID string, batchSeq int) (*Analysis, error) {
	row := r.db.QueryRow(analysisSelect+` WHERE incident_id = ? AND batch_seq = ?`, incidentID, batchSeq)
	return scanAnalysis(row)
}

// ListByIncident retrieves all analyses of an incident in batch order.
func (r *AnalysisRepository) ListByIncident(incidentID string) ([]*Analysis, error) {
	rows, err := r.db.Query(analysisSelect+` WHERE incident_id = ? ORDER BY batch_seq ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []*Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

const analysisSelect = `SELECT id, incident_id, batch_seq, status, dispatched_at, resolved_at,
	frame_start, frame_end, threat_detected, confidence, explanation, raw_response,
	latency_ms, tokens_used
 FROM analyses`

func scanAnalysis(row rowScanner) (*Analysis, error) {
	a := &Analysis{}
	var status string
	var resolvedAt sql.NullTime

	err := row.Scan(&a.ID, &a.IncidentID, &a.BatchSeq, &status, &a.DispatchedAt, &resolvedAt,
		&a.FrameStart, &a.FrameEnd, &a.ThreatDetected, &a.Confidence, &a.Explanation,
		&a.RawResponse, &a.LatencyMs, &a.TokensUsed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	a.Status = AnalysisStatus(status)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return a, nil
}
