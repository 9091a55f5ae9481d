package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/xid"
	"github.com/sakif/circuitpad/internal/apperror"
	"github.com/sakif/circuitpad/internal/model"
	"github.com/sakif/circuitpad/internal/repository"
)

var _ repository.PackageRepository = (*DB)(nil)

const packageColumns = `id, creator_account_id, owner_org_id, owner_name, unscoped_name, description,
	website, license, is_private, type, default_view, star_count, github_repo_full_name,
	latest_package_release_id, latest_version, forked_from_package_id, created_at, updated_at`

func scanPackage(row interface{ Scan(...any) error }, p *model.Package) error {
	return row.Scan(
		&p.ID, &p.CreatorAccountID, &p.OwnerOrgID, &p.OwnerName, &p.UnscopedName, &p.Description,
		&p.Website, &p.License, &p.IsPrivate, &p.Type, &p.DefaultView, &p.StarCount, &p.GitHubRepoFullName,
		&p.LatestPackageReleaseID, &p.LatestVersion, &p.ForkedFromPackageID, &p.CreatedAt, &p.UpdatedAt,
	)
}

// CreatePackage inserts a package. (owner_name, unscoped_name) is unique.
func (db *DB) CreatePackage(ctx context.Context, p *model.Package) error {
	p.ID = xid.New().String()
	p.CreatedAt = stamp(p.CreatedAt)
	p.UpdatedAt = p.CreatedAt

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO packages (id, creator_account_id, owner_org_id, owner_name, unscoped_name, description,
			website, license, is_private, type, default_view, star_count, github_repo_full_name,
			latest_package_release_id, latest_version, forked_from_package_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, '', '', ?, ?, ?)`,
		p.ID, p.CreatorAccountID, p.OwnerOrgID, p.OwnerName, p.UnscopedName, p.Description,
		p.Website, p.License, p.IsPrivate, string(p.Type), p.DefaultView, p.GitHubRepoFullName,
		p.ForkedFromPackageID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("package", p.Name())
		}
		return fmt.Errorf("sqlite: creating package %s: %w", p.Name(), err)
	}
	return nil
}

// GetPackageByID retrieves a package by ID.
func (db *DB) GetPackageByID(ctx context.Context, id string) (*model.Package, error) {
	var p model.Package
	err := scanPackage(db.conn.QueryRowContext(ctx,
		`SELECT `+packageColumns+` FROM packages WHERE id = ?`, id,
	), &p)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("package", id)
		}
		return nil, fmt.Errorf("sqlite: getting package %s: %w", id, err)
	}
	return &p, nil
}

// GetPackageByName retrieves a package by its "owner/name" halves.
func (db *DB) GetPackageByName(ctx context.Context, owner, name string) (*model.Package, error) {
	var p model.Package
	err := scanPackage(db.conn.QueryRowContext(ctx,
		`SELECT `+packageColumns+` FROM packages WHERE owner_name = ? AND unscoped_name = ?`, owner, name,
	), &p)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("package", owner+"/"+name)
		}
		return nil, fmt.Errorf("sqlite: getting package %s/%s: %w", owner, name, err)
	}
	return &p, nil
}

// ListPackages returns packages matching the filter, newest first.
//
// The WHERE clause is assembled from fixed fragments; user input only ever
// reaches the query through ? placeholders.
func (db *DB) ListPackages(ctx context.Context, f repository.PackageFilter) ([]model.Package, error) {
	var (
		where []string
		args  []any
	)

	where = append(where, `(is_private = 0 OR creator_account_id = ?)`)
	args = append(args, f.ViewerAccountID)

	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		where = append(where, `(LOWER(unscoped_name) LIKE ? OR LOWER(description) LIKE ? OR LOWER(owner_name) LIKE ?)`)
		args = append(args, like, like, like)
	}
	if f.OwnerName != "" {
		where = append(where, `owner_name = ?`)
		args = append(args, f.OwnerName)
	}
	if f.StarredBy != "" {
		where = append(where, `EXISTS (SELECT 1 FROM package_stars s WHERE s.package_id = packages.id AND s.account_id = ?)`)
		args = append(args, f.StarredBy)
	}

	limit := repository.ClampLimit(f.Limit)
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+packageColumns+` FROM packages
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing packages: %w", err)
	}
	defer rows.Close()

	packages := make([]model.Package, 0, limit)
	for rows.Next() {
		var p model.Package
		if err := scanPackage(rows, &p); err != nil {
			return nil, fmt.Errorf("sqlite: scanning package row: %w", err)
		}
		packages = append(packages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating packages: %w", err)
	}
	return packages, nil
}

// UpdatePackage writes every mutable column. Star count and latest release
// are maintained by their own operations and are not touched here.
func (db *DB) UpdatePackage(ctx context.Context, p *model.Package) error {
	p.UpdatedAt = now()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE packages
		 SET owner_org_id = ?, owner_name = ?, unscoped_name = ?, description = ?, website = ?,
		     license = ?, is_private = ?, type = ?, default_view = ?, github_repo_full_name = ?, updated_at = ?
		 WHERE id = ?`,
		p.OwnerOrgID, p.OwnerName, p.UnscopedName, p.Description, p.Website,
		p.License, p.IsPrivate, string(p.Type), p.DefaultView, p.GitHubRepoFullName, p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("package", p.Name())
		}
		return fmt.Errorf("sqlite: updating package %s: %w", p.ID, err)
	}
	return checkAffected(result, apperror.NotFound("package", p.ID))
}

// DeletePackage removes a package; releases, files, stars and domains cascade.
func (db *DB) DeletePackage(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM packages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting package %s: %w", id, err)
	}
	return checkAffected(result, apperror.NotFound("package", id))
}

// AddStar records a star and recounts. Starring twice is a no-op.
func (db *DB) AddStar(ctx context.Context, packageID, accountID string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO package_stars (package_id, account_id, created_at) VALUES (?, ?, ?)`,
			packageID, accountID, now(),
		); err != nil {
			return fmt.Errorf("sqlite: starring package %s: %w", packageID, err)
		}
		return recountStars(ctx, tx, packageID)
	})
}

// RemoveStar deletes a star and recounts. Removing a missing star is a no-op.
func (db *DB) RemoveStar(ctx context.Context, packageID, accountID string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM package_stars WHERE package_id = ? AND account_id = ?`, packageID, accountID,
		); err != nil {
			return fmt.Errorf("sqlite: unstarring package %s: %w", packageID, err)
		}
		return recountStars(ctx, tx, packageID)
	})
}

func recountStars(ctx context.Context, tx *sql.Tx, packageID string) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE packages SET star_count = (SELECT COUNT(*) FROM package_stars WHERE package_id = ?) WHERE id = ?`,
		packageID, packageID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recounting stars for %s: %w", packageID, err)
	}
	return checkAffected(result, apperror.NotFound("package", packageID))
}
