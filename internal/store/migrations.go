package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Sessions table - one row per monitoring run
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			active INTEGER NOT NULL DEFAULT 1,
			frame_count INTEGER NOT NULL DEFAULT 0,
			incident_count INTEGER NOT NULL DEFAULT 0,
			escalation_count INTEGER NOT NULL DEFAULT 0
		)`,

		// Incidents table - one row per contiguous run of positive detections
		`CREATE TABLE IF NOT EXISTS incidents (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			active INTEGER NOT NULL DEFAULT 1,
			end_reason TEXT NOT NULL DEFAULT '',
			frame_count INTEGER NOT NULL DEFAULT 0,
			max_hand_count INTEGER NOT NULL DEFAULT 0,
			max_confidence REAL NOT NULL DEFAULT 0,
			escalation_threshold INTEGER NOT NULL DEFAULT 10,
			batches_sent INTEGER NOT NULL DEFAULT 0,
			threat_confirmed INTEGER NOT NULL DEFAULT 0,
			threat_confidence REAL,
			threat_explanation TEXT,
			alerted INTEGER NOT NULL DEFAULT 0,
			alert_sent_at DATETIME
		)`,

		// Incident frames table - append-only per-frame detection data
		`CREATE TABLE IF NOT EXISTS incident_frames (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			incident_id TEXT NOT NULL REFERENCES incidents(id) ON DELETE CASCADE,
			frame_number INTEGER NOT NULL,
			global_frame_number INTEGER NOT NULL,
			timestamp DATETIME NOT NULL,
			detected INTEGER NOT NULL DEFAULT 0,
			hand_count INTEGER NOT NULL DEFAULT 0,
			confidence REAL NOT NULL DEFAULT 0,
			hand_data TEXT NOT NULL DEFAULT '[]',
			image_data TEXT
		)`,

		// Analyses table - one row per escalation batch sent to the classifier
		`CREATE TABLE IF NOT EXISTS analyses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			incident_id TEXT NOT NULL REFERENCES incidents(id) ON DELETE CASCADE,
			batch_seq INTEGER NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('pending', 'resolved', 'failed', 'stale')),
			dispatched_at DATETIME NOT NULL,
			resolved_at DATETIME,
			frame_start INTEGER NOT NULL,
			frame_end INTEGER NOT NULL,
			threat_detected INTEGER NOT NULL DEFAULT 0,
			confidence REAL NOT NULL DEFAULT 0,
			explanation TEXT NOT NULL DEFAULT '',
			raw_response TEXT NOT NULL DEFAULT '',
			latency_ms INTEGER NOT NULL DEFAULT 0,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			UNIQUE(incident_id, batch_seq)
		)`,

		// Alerts table - append-only log of user notifications
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			incident_id TEXT NOT NULL REFERENCES incidents(id) ON DELETE CASCADE,
			kind TEXT NOT NULL CHECK(kind IN ('hand_detected', 'escalation', 'threat_confirmed')),
			sent_at DATETIME NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			audio_played INTEGER NOT NULL DEFAULT 0,
			notification_sent INTEGER NOT NULL DEFAULT 0,
			acknowledged INTEGER NOT NULL DEFAULT 0,
			acknowledged_at DATETIME
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_incidents_session_id ON incidents(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_incident_frames_incident_id ON incident_frames(incident_id)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_incident_id ON analyses(incident_id)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_incident_id ON alerts(incident_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
