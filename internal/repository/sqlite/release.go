package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/circuitpad/internal/apperror"
	"github.com/sakif/circuitpad/internal/model"
	"github.com/sakif/circuitpad/internal/repository"
)

var (
	_ repository.ReleaseRepository = (*DB)(nil)
	_ repository.BuildRepository   = (*DB)(nil)
)

const releaseColumns = `id, package_id, version, is_latest, is_locked, build_status, build_started_at,
	build_completed_at, build_logs, latest_package_build_id, created_at, updated_at`

func scanRelease(row interface{ Scan(...any) error }, r *model.PackageRelease) error {
	var started, completed sql.NullTime
	err := row.Scan(
		&r.ID, &r.PackageID, &r.Version, &r.IsLatest, &r.IsLocked, &r.BuildStatus, &started,
		&completed, &r.BuildLogs, &r.LatestPackageBuildID, &r.CreatedAt, &r.UpdatedAt,
	)
	r.BuildStartedAt = nullTime(started)
	r.BuildCompletedAt = nullTime(completed)
	return err
}

// CreateRelease inserts a release. When IsLatest is set, every other release
// of the package loses the flag and the package's latest pointer moves, all
// in the same transaction, so a package never has two latest releases.
func (db *DB) CreateRelease(ctx context.Context, r *model.PackageRelease) error {
	r.ID = xid.New().String()
	r.CreatedAt = stamp(r.CreatedAt)
	r.UpdatedAt = r.CreatedAt
	if r.BuildStatus == "" {
		r.BuildStatus = model.BuildPending
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO package_releases (id, package_id, version, is_latest, is_locked, build_status,
				build_logs, created_at, updated_at)
			 VALUES (?, ?, ?, 0, ?, ?, '', ?, ?)`,
			r.ID, r.PackageID, r.Version, r.IsLocked, string(r.BuildStatus), r.CreatedAt, r.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("package_release", r.Version)
			}
			return fmt.Errorf("sqlite: creating release %s: %w", r.Version, err)
		}
		if r.IsLatest {
			return markLatest(ctx, tx, r.PackageID, r.ID, r.Version)
		}
		return nil
	})
}

// markLatest makes releaseID the package's single latest release.
func markLatest(ctx context.Context, tx *sql.Tx, packageID, releaseID, version string) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE package_releases SET is_latest = (id = ?) WHERE package_id = ?`, releaseID, packageID,
	); err != nil {
		return fmt.Errorf("sqlite: moving latest flag: %w", err)
	}
	result, err := tx.ExecContext(ctx,
		`UPDATE packages SET latest_package_release_id = ?, latest_version = ?, updated_at = ? WHERE id = ?`,
		releaseID, version, now(), packageID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: pointing package at latest release: %w", err)
	}
	return checkAffected(result, apperror.NotFound("package", packageID))
}

// GetReleaseByID retrieves a release by ID.
func (db *DB) GetReleaseByID(ctx context.Context, id string) (*model.PackageRelease, error) {
	return db.getRelease(ctx, id, `SELECT `+releaseColumns+` FROM package_releases WHERE id = ?`, id)
}

// GetReleaseByVersion retrieves a package's release with the given version.
func (db *DB) GetReleaseByVersion(ctx context.Context, packageID, version string) (*model.PackageRelease, error) {
	return db.getRelease(ctx, packageID+"@"+version,
		`SELECT `+releaseColumns+` FROM package_releases WHERE package_id = ? AND version = ?`, packageID, version)
}

// GetLatestRelease returns the release flagged latest, or the newest release
// when none is flagged.
func (db *DB) GetLatestRelease(ctx context.Context, packageID string) (*model.PackageRelease, error) {
	return db.getRelease(ctx, packageID,
		`SELECT `+releaseColumns+` FROM package_releases WHERE package_id = ?
		 ORDER BY is_latest DESC, created_at DESC, id DESC LIMIT 1`, packageID)
}

func (db *DB) getRelease(ctx context.Context, label, query string, args ...any) (*model.PackageRelease, error) {
	var r model.PackageRelease
	if err := scanRelease(db.conn.QueryRowContext(ctx, query, args...), &r); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("package_release", label)
		}
		return nil, fmt.Errorf("sqlite: getting release %s: %w", label, err)
	}
	return &r, nil
}

// ListReleases returns a package's releases, newest first.
func (db *DB) ListReleases(ctx context.Context, packageID string) ([]model.PackageRelease, error) {
	return db.listReleases(ctx,
		`SELECT `+releaseColumns+` FROM package_releases WHERE package_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, packageID, repository.MaxListLimit)
}

// ListStaleReleases returns pending releases not updated since before.
func (db *DB) ListStaleReleases(ctx context.Context, before time.Time) ([]model.PackageRelease, error) {
	return db.listReleases(ctx,
		`SELECT `+releaseColumns+` FROM package_releases WHERE build_status = ? AND updated_at < ?
		 ORDER BY updated_at LIMIT ?`, string(model.BuildPending), before.UTC().Round(0), repository.MaxListLimit)
}

func (db *DB) listReleases(ctx context.Context, query string, args ...any) ([]model.PackageRelease, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing releases: %w", err)
	}
	defer rows.Close()

	var releases []model.PackageRelease
	for rows.Next() {
		var r model.PackageRelease
		if err := scanRelease(rows, &r); err != nil {
			return nil, fmt.Errorf("sqlite: scanning release row: %w", err)
		}
		releases = append(releases, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating releases: %w", err)
	}
	return releases, nil
}

// UpdateRelease writes the lock flag and, when IsLatest is set, moves the
// latest flag onto this release. Clearing IsLatest on the current latest
// release just drops the flag.
func (db *DB) UpdateRelease(ctx context.Context, r *model.PackageRelease) error {
	r.UpdatedAt = now()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE package_releases SET is_locked = ?, is_latest = ?, updated_at = ? WHERE id = ?`,
			r.IsLocked, r.IsLatest, r.UpdatedAt, r.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating release %s: %w", r.ID, err)
		}
		if err := checkAffected(result, apperror.NotFound("package_release", r.ID)); err != nil {
			return err
		}
		if r.IsLatest {
			return markLatest(ctx, tx, r.PackageID, r.ID, r.Version)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE packages SET latest_package_release_id = '', latest_version = ''
			 WHERE id = ? AND latest_package_release_id = ?`, r.PackageID, r.ID)
		if err != nil {
			return fmt.Errorf("sqlite: clearing latest release pointer: %w", err)
		}
		return nil
	})
}

const buildColumns = `id, package_release_id, status, logs, exit_code, started_at, completed_at, created_at`

func scanBuild(row interface{ Scan(...any) error }, b *model.PackageBuild) error {
	var started, completed sql.NullTime
	err := row.Scan(&b.ID, &b.PackageReleaseID, &b.Status, &b.Logs, &b.ExitCode, &started, &completed, &b.CreatedAt)
	b.StartedAt = nullTime(started)
	b.CompletedAt = nullTime(completed)
	return err
}

// CreateBuild inserts a pending build and resets the release's build fields to it.
func (db *DB) CreateBuild(ctx context.Context, b *model.PackageBuild) error {
	b.ID = xid.New().String()
	b.CreatedAt = now()
	b.Status = model.BuildPending
	b.StartedAt, b.CompletedAt = nil, nil

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO package_builds (id, package_release_id, status, logs, exit_code, created_at)
			 VALUES (?, ?, ?, '', 0, ?)`,
			b.ID, b.PackageReleaseID, string(b.Status), b.CreatedAt,
		); err != nil {
			return fmt.Errorf("sqlite: creating build for release %s: %w", b.PackageReleaseID, err)
		}
		result, err := tx.ExecContext(ctx,
			`UPDATE package_releases
			 SET latest_package_build_id = ?, build_status = ?, build_started_at = NULL,
			     build_completed_at = NULL, build_logs = '', updated_at = ?
			 WHERE id = ?`,
			b.ID, string(b.Status), b.CreatedAt, b.PackageReleaseID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: attaching build to release: %w", err)
		}
		return checkAffected(result, apperror.NotFound("package_release", b.PackageReleaseID))
	})
}

// GetBuildByID retrieves a build by ID.
func (db *DB) GetBuildByID(ctx context.Context, id string) (*model.PackageBuild, error) {
	var b model.PackageBuild
	err := scanBuild(db.conn.QueryRowContext(ctx,
		`SELECT `+buildColumns+` FROM package_builds WHERE id = ?`, id), &b)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("package_build", id)
		}
		return nil, fmt.Errorf("sqlite: getting build %s: %w", id, err)
	}
	return &b, nil
}

// ListBuilds returns a release's builds, newest first.
func (db *DB) ListBuilds(ctx context.Context, releaseID string) ([]model.PackageBuild, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+buildColumns+` FROM package_builds WHERE package_release_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, releaseID, repository.MaxListLimit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing builds: %w", err)
	}
	defer rows.Close()

	var builds []model.PackageBuild
	for rows.Next() {
		var b model.PackageBuild
		if err := scanBuild(rows, &b); err != nil {
			return nil, fmt.Errorf("sqlite: scanning build row: %w", err)
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating builds: %w", err)
	}
	return builds, nil
}

// UpdateBuild stores a build's progress. The release mirrors the build only
// while it is the release's latest build, so a superseded build finishing
// late cannot overwrite a newer one's status.
func (db *DB) UpdateBuild(ctx context.Context, b *model.PackageBuild) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE package_builds SET status = ?, logs = ?, exit_code = ?, started_at = ?, completed_at = ?
			 WHERE id = ?`,
			string(b.Status), b.Logs, b.ExitCode, timeArg(b.StartedAt), timeArg(b.CompletedAt), b.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating build %s: %w", b.ID, err)
		}
		if err := checkAffected(result, apperror.NotFound("package_build", b.ID)); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE package_releases
			 SET build_status = ?, build_logs = ?, build_started_at = ?, build_completed_at = ?, updated_at = ?
			 WHERE id = ? AND latest_package_build_id = ?`,
			string(b.Status), b.Logs, timeArg(b.StartedAt), timeArg(b.CompletedAt), now(), b.PackageReleaseID, b.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: mirroring build onto release: %w", err)
		}
		return nil
	})
}
