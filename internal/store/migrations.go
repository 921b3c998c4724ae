package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per benchmark run; latencies in milliseconds.
		`CREATE TABLE IF NOT EXISTS benchmark_runs (
			id TEXT PRIMARY KEY,
			iterations INTEGER NOT NULL,
			version TEXT NOT NULL DEFAULT '',
			compiled_avg_ms REAL NOT NULL DEFAULT 0,
			compiled_min_ms REAL NOT NULL DEFAULT 0,
			compiled_max_ms REAL NOT NULL DEFAULT 0,
			compiled_p50_ms REAL NOT NULL DEFAULT 0,
			compiled_p95_ms REAL NOT NULL DEFAULT 0,
			compiled_count INTEGER NOT NULL DEFAULT 0,
			compiled_errors INTEGER NOT NULL DEFAULT 0,
			interpreted_avg_ms REAL NOT NULL DEFAULT 0,
			interpreted_min_ms REAL NOT NULL DEFAULT 0,
			interpreted_max_ms REAL NOT NULL DEFAULT 0,
			interpreted_p50_ms REAL NOT NULL DEFAULT 0,
			interpreted_p95_ms REAL NOT NULL DEFAULT 0,
			interpreted_count INTEGER NOT NULL DEFAULT 0,
			speedup REAL NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Gestures that passed the stability gate
		`CREATE TABLE IF NOT EXISTS emissions (
			id TEXT PRIMARY KEY,
			gesture TEXT NOT NULL,
			gesture_id INTEGER NOT NULL,
			confidence REAL NOT NULL CHECK(confidence >= 0 AND confidence <= 1),
			method TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_benchmark_runs_created_at ON benchmark_runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_emissions_created_at ON emissions(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}
