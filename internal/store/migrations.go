package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Sessions table - one row per pipeline run
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			window_size INTEGER NOT NULL,
			buffer_size INTEGER NOT NULL,
			sample_rate_hz REAL NOT NULL
		)`,

		// Estimates table - heart-rate estimates produced during a session
		`CREATE TABLE IF NOT EXISTS estimates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			bpm REAL NOT NULL,
			channel TEXT NOT NULL,
			red_bpm REAL NOT NULL,
			green_bpm REAL NOT NULL,
			blue_bpm REAL NOT NULL,
			magnitude REAL NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_estimates_session_id ON estimates(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
