package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// Migration is one forward-only schema change. Versions are global across
// all packages that register migrations, so each package owns a range.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// migrationLockID serializes concurrent Migrate calls from several replicas.
const migrationLockID = 7_421_903

// Migrate applies every migration whose version is not yet recorded in
// schema_migrations, in version order, inside one transaction guarded by an
// advisory lock. Duplicate versions are rejected before anything runs.
func (c *Client) Migrate(ctx context.Context, migrations []Migration) error {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Version == sorted[i-1].Version {
			return sserr.Newf(sserr.CodeInternalConfiguration,
				"postgres: duplicate migration version %d", sorted[i].Version)
		}
	}

	tx, err := c.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
		return wrapError(err, "postgres: failed to acquire migration lock")
	}
	if _, err := tx.Exec(ctx, createMigrationsTable); err != nil {
		return wrapError(err, "postgres: failed to create schema_migrations")
	}

	applied := make(map[int]bool)
	rows, err := tx.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return wrapError(err, "postgres: failed to read schema_migrations")
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return wrapError(err, "postgres: failed to read schema_migrations")
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return wrapError(err, "postgres: failed to read schema_migrations")
	}

	for _, m := range sorted {
		if applied[m.Version] {
			continue
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			return wrapError(err, fmt.Sprintf("postgres: migration %d (%s) failed", m.Version, m.Name))
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.Version, m.Name); err != nil {
			return wrapError(err, "postgres: failed to record migration")
		}
		slog.InfoContext(ctx, "postgres: applied migration",
			"version", m.Version, "name", m.Name)
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapError(err, "postgres: failed to commit migrations")
	}
	return nil
}
