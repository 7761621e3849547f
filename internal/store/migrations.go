package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Mapping sessions table - one row per stint in mapping mode
		`CREATE TABLE IF NOT EXISTS mapping_sessions (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			selections INTEGER NOT NULL DEFAULT 0,
			last_slot TEXT NOT NULL DEFAULT ''
		)`,

		// Mapping selections table - every slot chosen during a session
		`CREATE TABLE IF NOT EXISTS mapping_selections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES mapping_sessions(id) ON DELETE CASCADE,
			slot TEXT NOT NULL,
			cc INTEGER NOT NULL,
			selected_at DATETIME NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_mapping_sessions_started_at ON mapping_sessions(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_mapping_selections_session_id ON mapping_selections(session_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
