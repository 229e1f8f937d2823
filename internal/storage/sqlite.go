package storage

import (
	"fmt"

	"go.uber.org/zap"
)

// Collections names the vector tables created by the migrations. Each
// collection lives in table "vec_<name>".
var Collections = []string{"tools", "servers"}

// CollectionTable returns the table backing a vector collection.
func CollectionTable(collection string) string {
	return "vec_" + collection
}

// runMigrations executes database schema migrations.
func (s *SQLiteStorage) runMigrations() error {
	if !s.enabled || s.db == nil {
		return nil
	}

	if err := s.createMigrationsTable(); err != nil {
		return err
	}

	version, err := s.getCurrentMigrationVersion()
	if err != nil {
		return err
	}

	migrations := []migration{
		{version: 1, name: "initial_schema", up: s.migration001InitialSchema},
		{version: 2, name: "vector_collections", up: s.migration002VectorCollections},
		{version: 3, name: "checkpoints", up: s.migration003Checkpoints},
		{version: 4, name: "search_history_thread", up: s.migration004SearchHistoryThread},
	}

	for _, m := range migrations {
		if version < m.version {
			s.log().Debug("running migration", zap.Int("version", m.version), zap.String("name", m.name))
			if err := m.up(); err != nil {
				return fmt.Errorf("migration %d failed: %w", m.version, err)
			}
			if err := s.setMigrationVersion(m.version, m.name); err != nil {
				return err
			}
		}
	}

	return nil
}

// migration represents a single database migration.
type migration struct {
	version int
	name    string
	up      func() error
}

// createMigrationsTable creates the schema_migrations table.
func (s *SQLiteStorage) createMigrationsTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`
	_, err := s.db.Exec(query)
	return err
}

// getCurrentMigrationVersion returns the highest applied migration version.
func (s *SQLiteStorage) getCurrentMigrationVersion() (int, error) {
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")

	var version int
	if err := row.Scan(&version); err != nil {
		return 0, err
	}

	return version, nil
}

// setMigrationVersion records a migration as applied.
func (s *SQLiteStorage) setMigrationVersion(version int, name string) error {
	_, err := s.db.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", version, name)
	return err
}

// migration001InitialSchema creates search history and the embedding cache.
func (s *SQLiteStorage) migration001InitialSchema() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS search_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			search_id TEXT NOT NULL UNIQUE,
			query_hash TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL,
			results_count INTEGER NOT NULL,
			failed INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return fmt.Errorf("failed to create search_history table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_search_history_timestamp
		ON search_history(timestamp DESC)
	`); err != nil {
		return fmt.Errorf("failed to create search_history timestamp index: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS embedding_cache (
			cache_key TEXT PRIMARY KEY,
			vector BLOB NOT NULL,
			version TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create embedding_cache table: %w", err)
	}

	return nil
}

// migration002VectorCollections creates one table per vector collection.
func (s *SQLiteStorage) migration002VectorCollections() error {
	for _, collection := range Collections {
		table := CollectionTable(collection)
		if _, err := s.db.Exec(fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				document TEXT NOT NULL,
				vector BLOB NOT NULL,
				dimension INTEGER NOT NULL,
				metadata BLOB,
				updated_at TEXT NOT NULL
			)
		`, table)); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table, err)
		}
	}
	return nil
}

// migration003Checkpoints creates the workflow checkpoint log.
func (s *SQLiteStorage) migration003Checkpoints() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			state BLOB NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (thread_id, seq)
		)
	`); err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	return nil
}

// migration004SearchHistoryThread adds the thread and latency columns.
func (s *SQLiteStorage) migration004SearchHistoryThread() error {
	for _, stmt := range []string{
		"ALTER TABLE search_history ADD COLUMN thread_id TEXT NOT NULL DEFAULT ''",
		"ALTER TABLE search_history ADD COLUMN duration_ms INTEGER NOT NULL DEFAULT 0",
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to alter search_history: %w", err)
		}
	}
	return nil
}
