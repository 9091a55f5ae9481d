// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the server builds
// without a C toolchain. Tests open ":memory:" databases.
//
// All timestamps are written in UTC with the monotonic reading stripped so that
// ORDER BY created_at on the stored text sorts chronologically.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements every repository interface.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/circuitpad.db" → file-based database (persistent)
//   - ":memory:"           → in-memory database, one per connection
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	steps := []struct {
		name string
		sql  string
	}{
		{"accounts", `
			CREATE TABLE IF NOT EXISTS accounts (
				id            TEXT PRIMARY KEY,
				github_id     INTEGER,
				handle        TEXT NOT NULL UNIQUE,
				email         TEXT NOT NULL DEFAULT '',
				avatar_url    TEXT NOT NULL DEFAULT '',
				password_hash TEXT NOT NULL DEFAULT '',
				created_at    DATETIME NOT NULL,
				updated_at    DATETIME NOT NULL
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_github_id
				ON accounts(github_id) WHERE github_id IS NOT NULL;
		`},
		{"orgs", `
			CREATE TABLE IF NOT EXISTS orgs (
				id               TEXT PRIMARY KEY,
				name             TEXT NOT NULL UNIQUE,
				owner_account_id TEXT NOT NULL REFERENCES accounts(id),
				created_at       DATETIME NOT NULL
			);
			CREATE TABLE IF NOT EXISTS org_members (
				org_id     TEXT NOT NULL REFERENCES orgs(id) ON DELETE CASCADE,
				account_id TEXT NOT NULL REFERENCES accounts(id),
				PRIMARY KEY (org_id, account_id)
			);
		`},
		{"packages", `
			CREATE TABLE IF NOT EXISTS packages (
				id                        TEXT PRIMARY KEY,
				creator_account_id        TEXT NOT NULL,
				owner_org_id              TEXT NOT NULL DEFAULT '',
				owner_name                TEXT NOT NULL,
				unscoped_name             TEXT NOT NULL,
				description               TEXT NOT NULL DEFAULT '',
				website                   TEXT NOT NULL DEFAULT '',
				license                   TEXT NOT NULL DEFAULT '',
				is_private                INTEGER NOT NULL DEFAULT 0,
				type                      TEXT NOT NULL DEFAULT 'package',
				default_view              TEXT NOT NULL DEFAULT 'files',
				star_count                INTEGER NOT NULL DEFAULT 0,
				github_repo_full_name     TEXT NOT NULL DEFAULT '',
				latest_package_release_id TEXT NOT NULL DEFAULT '',
				latest_version            TEXT NOT NULL DEFAULT '',
				forked_from_package_id    TEXT NOT NULL DEFAULT '',
				created_at                DATETIME NOT NULL,
				updated_at                DATETIME NOT NULL,
				UNIQUE (owner_name, unscoped_name)
			);
			CREATE INDEX IF NOT EXISTS idx_packages_created_at ON packages(created_at);
			CREATE TABLE IF NOT EXISTS package_stars (
				package_id TEXT NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
				account_id TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (package_id, account_id)
			);
		`},
		{"package_releases", `
			CREATE TABLE IF NOT EXISTS package_releases (
				id                      TEXT PRIMARY KEY,
				package_id              TEXT NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
				version                 TEXT NOT NULL,
				is_latest               INTEGER NOT NULL DEFAULT 0,
				is_locked               INTEGER NOT NULL DEFAULT 0,
				build_status            TEXT NOT NULL DEFAULT 'pending',
				build_started_at        DATETIME,
				build_completed_at      DATETIME,
				build_logs              TEXT NOT NULL DEFAULT '',
				latest_package_build_id TEXT NOT NULL DEFAULT '',
				created_at              DATETIME NOT NULL,
				updated_at              DATETIME NOT NULL,
				UNIQUE (package_id, version)
			);
			CREATE TABLE IF NOT EXISTS package_builds (
				id                 TEXT PRIMARY KEY,
				package_release_id TEXT NOT NULL REFERENCES package_releases(id) ON DELETE CASCADE,
				status             TEXT NOT NULL DEFAULT 'pending',
				logs               TEXT NOT NULL DEFAULT '',
				exit_code          INTEGER NOT NULL DEFAULT 0,
				started_at         DATETIME,
				completed_at       DATETIME,
				created_at         DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_package_builds_release ON package_builds(package_release_id);
		`},
		{"package_files", `
			CREATE TABLE IF NOT EXISTS package_files (
				id                 TEXT PRIMARY KEY,
				package_release_id TEXT NOT NULL REFERENCES package_releases(id) ON DELETE CASCADE,
				file_path          TEXT NOT NULL,
				content_text       TEXT NOT NULL DEFAULT '',
				content_base64     TEXT NOT NULL DEFAULT '',
				created_at         DATETIME NOT NULL,
				updated_at         DATETIME NOT NULL,
				UNIQUE (package_release_id, file_path)
			);
		`},
		{"package_domains", `
			CREATE TABLE IF NOT EXISTS package_domains (
				id                          TEXT PRIMARY KEY,
				package_id                  TEXT NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
				points_to                   TEXT NOT NULL,
				package_release_id          TEXT NOT NULL DEFAULT '',
				package_build_id            TEXT NOT NULL DEFAULT '',
				tag                         TEXT NOT NULL DEFAULT '',
				fully_qualified_domain_name TEXT NOT NULL UNIQUE,
				creator_account_id          TEXT NOT NULL DEFAULT '',
				verification_token          TEXT NOT NULL DEFAULT '',
				created_at                  DATETIME NOT NULL,
				updated_at                  DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_package_domains_created_at ON package_domains(created_at);
		`},
	}

	for _, step := range steps {
		if _, err := db.conn.Exec(step.sql); err != nil {
			return fmt.Errorf("creating %s tables: %w", step.name, err)
		}
	}
	return nil
}

// now returns the current time in the form we store it.
func now() time.Time {
	return time.Now().UTC().Round(0)
}

// stamp normalizes a caller-provided timestamp, falling back to now.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return now()
	}
	return t.UTC().Round(0)
}

// timeArg binds an optional timestamp, NULL when unset.
func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Round(0)
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// The pure Go driver has no exported error code constants for this.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// nullTime converts a scanned sql.NullTime into the *time.Time the models use.
func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// withTx runs fn in a transaction, committing on success.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// checkAffected turns a zero-row UPDATE/DELETE into the given error.
func checkAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
