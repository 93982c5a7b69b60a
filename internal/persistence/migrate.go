package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rcliao/commentlens/internal/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	description TEXT NOT NULL,
	applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Migration is one embedded schema file, named NNN_description.sql.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationStatus pairs a migration with whether it has been applied.
type MigrationStatus struct {
	Version     int
	Description string
	Applied     bool
}

// MigrationManager applies the embedded schema files in version order
type MigrationManager struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *SQLiteDB) *MigrationManager {
	return &MigrationManager{
		db:  db.db,
		log: logger.Get().With().Str("component", "migrations").Logger(),
	}
}

// Migrate applies every migration not yet recorded in schema_migrations.
func (m *MigrationManager) Migrate(ctx context.Context) error {
	status, err := m.Status(ctx)
	if err != nil {
		return err
	}

	available, err := embeddedMigrations()
	if err != nil {
		return err
	}

	applied := 0
	for i, s := range status {
		if s.Applied {
			continue
		}
		if err := m.apply(ctx, available[i]); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", s.Version, err)
		}
		applied++
	}

	if applied > 0 {
		m.log.Info().Int("applied", applied).Msg("Schema migrated")
	}
	return nil
}

// Status lists every embedded migration in version order.
func (m *MigrationManager) Status(ctx context.Context) ([]MigrationStatus, error) {
	if _, err := m.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	done, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}

	available, err := embeddedMigrations()
	if err != nil {
		return nil, err
	}

	status := make([]MigrationStatus, len(available))
	for i, mig := range available {
		status[i] = MigrationStatus{Version: mig.Version, Description: mig.Description, Applied: done[mig.Version]}
	}
	return status, nil
}

// Rollback forgets the last applied migration. Schema changes are not reverted.
func (m *MigrationManager) Rollback(ctx context.Context) error {
	var last sql.NullInt64
	if err := m.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&last); err != nil {
		return fmt.Errorf("failed to find last migration: %w", err)
	}
	if !last.Valid {
		return fmt.Errorf("no migrations to rollback")
	}

	if _, err := m.db.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = ?`, last.Int64); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	m.log.Warn().Int64("version", last.Int64).Msg("Migration record removed; schema changes must be reverted by hand")
	return nil
}

func (m *MigrationManager) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[v] = true
	}
	return done, rows.Err()
}

func (m *MigrationManager) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_migrations (version, description) VALUES (?, ?)`,
		mig.Version, mig.Description,
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	m.log.Debug().Int("version", mig.Version).Str("description", mig.Description).Msg("Applied migration")
	return nil
}

// embeddedMigrations reads migrations/*.sql sorted by version. Files that
// do not start with a numeric prefix are an error.
func embeddedMigrations() ([]Migration, error) {
	names, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	out := make([]Migration, 0, len(names))
	for _, entry := range names {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}

		prefix, rest, ok := strings.Cut(strings.TrimSuffix(name, ".sql"), "_")
		version, err := strconv.Atoi(prefix)
		if !ok || err != nil {
			return nil, fmt.Errorf("migration %s: expected NNN_description.sql", name)
		}

		body, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		out = append(out, Migration{
			Version:     version,
			Description: strings.ReplaceAll(rest, "_", " "),
			SQL:         string(body),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
