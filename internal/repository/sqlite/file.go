package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/xid"
	"github.com/sakif/circuitpad/internal/apperror"
	"github.com/sakif/circuitpad/internal/model"
	"github.com/sakif/circuitpad/internal/repository"
)

var _ repository.FileRepository = (*DB)(nil)

const fileColumns = `id, package_release_id, file_path, content_text, content_base64, created_at, updated_at`

func scanFile(row interface{ Scan(...any) error }, f *model.PackageFile) error {
	return row.Scan(&f.ID, &f.PackageReleaseID, &f.FilePath, &f.ContentText, &f.ContentBase64, &f.CreatedAt, &f.UpdatedAt)
}

// CreateFile inserts a file. A path that already exists in the release is a Conflict.
func (db *DB) CreateFile(ctx context.Context, f *model.PackageFile) error {
	f.ID = xid.New().String()
	f.CreatedAt = now()
	f.UpdatedAt = f.CreatedAt

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO package_files (id, package_release_id, file_path, content_text, content_base64, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.PackageReleaseID, f.FilePath, f.ContentText, f.ContentBase64, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("package_file", f.FilePath)
		}
		return fmt.Errorf("sqlite: creating file %s: %w", f.FilePath, err)
	}
	return nil
}

// UpsertFile writes f at its path, keeping the existing row's ID and
// created_at when the path is already taken.
func (db *DB) UpsertFile(ctx context.Context, f *model.PackageFile) (bool, error) {
	var created bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var existing model.PackageFile
		err := scanFile(tx.QueryRowContext(ctx,
			`SELECT `+fileColumns+` FROM package_files WHERE package_release_id = ? AND file_path = ?`,
			f.PackageReleaseID, f.FilePath,
		), &existing)

		switch {
		case err == sql.ErrNoRows:
			created = true
			f.ID = xid.New().String()
			f.CreatedAt = now()
			f.UpdatedAt = f.CreatedAt
			_, err = tx.ExecContext(ctx,
				`INSERT INTO package_files (id, package_release_id, file_path, content_text, content_base64, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				f.ID, f.PackageReleaseID, f.FilePath, f.ContentText, f.ContentBase64, f.CreatedAt, f.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("sqlite: inserting file %s: %w", f.FilePath, err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("sqlite: looking up file %s: %w", f.FilePath, err)
		}

		f.ID = existing.ID
		f.CreatedAt = existing.CreatedAt
		f.UpdatedAt = now()
		_, err = tx.ExecContext(ctx,
			`UPDATE package_files SET content_text = ?, content_base64 = ?, updated_at = ? WHERE id = ?`,
			f.ContentText, f.ContentBase64, f.UpdatedAt, f.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating file %s: %w", f.FilePath, err)
		}
		return nil
	})
	return created, err
}

// GetFileByID retrieves a file by ID.
func (db *DB) GetFileByID(ctx context.Context, id string) (*model.PackageFile, error) {
	var f model.PackageFile
	err := scanFile(db.conn.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM package_files WHERE id = ?`, id), &f)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("package_file", id)
		}
		return nil, fmt.Errorf("sqlite: getting file %s: %w", id, err)
	}
	return &f, nil
}

// GetFileByPath retrieves the file at path inside a release.
func (db *DB) GetFileByPath(ctx context.Context, releaseID, path string) (*model.PackageFile, error) {
	var f model.PackageFile
	err := scanFile(db.conn.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM package_files WHERE package_release_id = ? AND file_path = ?`, releaseID, path,
	), &f)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("package_file", path)
		}
		return nil, fmt.Errorf("sqlite: getting file %s: %w", path, err)
	}
	return &f, nil
}

// ListFiles returns every file in a release ordered by path.
func (db *DB) ListFiles(ctx context.Context, releaseID string) ([]model.PackageFile, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM package_files WHERE package_release_id = ? ORDER BY file_path`, releaseID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing files: %w", err)
	}
	defer rows.Close()

	var files []model.PackageFile
	for rows.Next() {
		var f model.PackageFile
		if err := scanFile(rows, &f); err != nil {
			return nil, fmt.Errorf("sqlite: scanning file row: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating files: %w", err)
	}
	return files, nil
}

// DeleteFile removes the file at path from a release.
func (db *DB) DeleteFile(ctx context.Context, releaseID, path string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM package_files WHERE package_release_id = ? AND file_path = ?`, releaseID, path)
	if err != nil {
		return fmt.Errorf("sqlite: deleting file %s: %w", path, err)
	}
	return checkAffected(result, apperror.NotFound("package_file", path))
}
