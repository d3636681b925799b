package database

import (
	"embed"
	"fmt"

	"imghost/internal/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// RunMigrations creates the schema. Every statement is idempotent, so the
// base schema is safe to re-apply; the version row only records history.
func (db *DB) RunMigrations() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	content, err := migrationFS.ReadFile("migrations/001_init.sql")
	if err != nil {
		return fmt.Errorf("failed to read 001_init.sql: %w", err)
	}

	if _, err := db.Exec(string(content)); err != nil {
		return fmt.Errorf("failed to apply schema migration: %w", err)
	}

	_, err = db.Exec(`INSERT INTO schema_migrations (version) VALUES ('001_init') ON CONFLICT (version) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to update migration version: %w", err)
	}

	// Upgrade statements for existing installations (safe to run repeatedly)
	upgradeSQL := `
		ALTER TABLE security_events ADD COLUMN IF NOT EXISTS request_uri TEXT NOT NULL DEFAULT '';
		ALTER TABLE r2_operations ADD COLUMN IF NOT EXISTS file_key TEXT;
	`
	if _, err := db.Exec(upgradeSQL); err != nil {
		logger.DB.Warn().Err(err).Msg("upgrade statements had errors (may be already applied)")
	}

	logger.DB.Info().Msg("schema migration completed")
	return nil
}
