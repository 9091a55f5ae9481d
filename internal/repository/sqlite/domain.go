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

var _ repository.DomainRepository = (*DB)(nil)

const domainColumns = `id, package_id, points_to, package_release_id, package_build_id, tag,
	fully_qualified_domain_name, creator_account_id, verification_token, created_at, updated_at`

func scanDomain(row interface{ Scan(...any) error }, d *model.PackageDomain) error {
	return row.Scan(
		&d.ID, &d.PackageID, &d.PointsTo, &d.PackageReleaseID, &d.PackageBuildID, &d.Tag,
		&d.FullyQualifiedDomainName, &d.CreatorAccountID, &d.VerificationToken, &d.CreatedAt, &d.UpdatedAt,
	)
}

// CreateDomain inserts a domain. Fully qualified names are globally unique.
func (db *DB) CreateDomain(ctx context.Context, d *model.PackageDomain) error {
	d.ID = xid.New().String()
	d.CreatedAt = stamp(d.CreatedAt)
	d.UpdatedAt = d.CreatedAt

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO package_domains (id, package_id, points_to, package_release_id, package_build_id, tag,
			fully_qualified_domain_name, creator_account_id, verification_token, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.PackageID, string(d.PointsTo), d.PackageReleaseID, d.PackageBuildID, d.Tag,
		d.FullyQualifiedDomainName, d.CreatorAccountID, d.VerificationToken, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("package_domain", d.FullyQualifiedDomainName)
		}
		return fmt.Errorf("sqlite: creating domain %s: %w", d.FullyQualifiedDomainName, err)
	}
	return nil
}

// GetDomainByID retrieves a domain by ID.
func (db *DB) GetDomainByID(ctx context.Context, id string) (*model.PackageDomain, error) {
	var d model.PackageDomain
	err := scanDomain(db.conn.QueryRowContext(ctx, `SELECT `+domainColumns+` FROM package_domains WHERE id = ?`, id), &d)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("package_domain", id)
		}
		return nil, fmt.Errorf("sqlite: getting domain %s: %w", id, err)
	}
	return &d, nil
}

// UpdateDomain rewrites where a domain points.
func (db *DB) UpdateDomain(ctx context.Context, d *model.PackageDomain) error {
	d.UpdatedAt = now()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE package_domains
		 SET points_to = ?, package_release_id = ?, package_build_id = ?, tag = ?, updated_at = ?
		 WHERE id = ?`,
		string(d.PointsTo), d.PackageReleaseID, d.PackageBuildID, d.Tag, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating domain %s: %w", d.ID, err)
	}
	return checkAffected(result, apperror.NotFound("package_domain", d.ID))
}

// ListDomains returns domains matching every non-empty filter, newest first,
// capped at repository.MaxListLimit.
func (db *DB) ListDomains(ctx context.Context, f repository.DomainFilter) ([]model.PackageDomain, error) {
	where := []string{"1 = 1"}
	var args []any

	if f.PackageID != "" {
		where = append(where, `package_id = ?`)
		args = append(args, f.PackageID)
	}
	if f.PackageReleaseID != "" {
		where = append(where, `package_release_id = ?`)
		args = append(args, f.PackageReleaseID)
	}
	if f.PackageBuildID != "" {
		where = append(where, `package_build_id = ?`)
		args = append(args, f.PackageBuildID)
	}
	args = append(args, repository.ClampLimit(f.Limit))

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+domainColumns+` FROM package_domains
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing domains: %w", err)
	}
	defer rows.Close()

	var domains []model.PackageDomain
	for rows.Next() {
		var d model.PackageDomain
		if err := scanDomain(rows, &d); err != nil {
			return nil, fmt.Errorf("sqlite: scanning domain row: %w", err)
		}
		domains = append(domains, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating domains: %w", err)
	}
	return domains, nil
}
