package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// migration represents a single schema migration.
type migration struct {
	version     int
	description string
	apply       func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations beyond the
// version-1 bootstrap (applied separately via schemaSQL, per the fallback
// rule that version 1 may ship as a minimal bootstrap schema). New
// migrations are appended at the end; never modify existing entries.
var migrations = []migration{
	{
		version:     1,
		description: "bootstrap schema (applied via schemaSQL)",
		apply:       func(tx *sql.Tx) error { return nil },
	},
	{
		version:     2,
		description: "add source-sync bookkeeping to documents",
		apply: func(tx *sql.Tx) error {
			for _, stmt := range []string{
				"ALTER TABLE documents ADD COLUMN last_full_sync_at INTEGER",
				"CREATE INDEX IF NOT EXISTS idx_documents_app_source ON documents(app_source)",
			} {
				if _, err := tx.Exec(stmt); err != nil {
					slog.Debug("migration 2: statement may already be applied", "sql", stmt, "error", err)
				}
			}
			return nil
		},
	},
	{
		version:     3,
		description: "add embedding model index for per-model refresh queries",
		apply: func(tx *sql.Tx) error {
			for _, stmt := range []string{
				"CREATE INDEX IF NOT EXISTS idx_embeddings_meta_model ON embeddings_meta(model)",
			} {
				if _, err := tx.Exec(stmt); err != nil {
					slog.Debug("migration 3: statement may already be applied", "sql", stmt, "error", err)
				}
			}
			return nil
		},
	},
}

// Migrate runs all pending schema migrations, recording applied versions
// in schema_version. It refuses to re-run a migration already applied and
// reports MigrationMissing if the next step's version has no registered
// migration (the bootstrap path at version 1 being the sole exception).
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	next := current + 1
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if m.version != next {
			return &MigrationMissingError{Version: next}
		}

		slog.Info("applying migration", "version", m.version, "description", m.description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}

		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_version (version, description) VALUES (?, ?)",
			m.version, m.description); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
		next++
	}

	return nil
}

// MigrationMissingError is returned when the runner needs to apply a
// version with no registered migration and no bootstrap fallback applies.
type MigrationMissingError struct {
	Version int
}

func (e *MigrationMissingError) Error() string {
	return fmt.Sprintf("store: no migration registered for version %d", e.Version)
}
