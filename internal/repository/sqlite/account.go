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

// compile-time checks that *DB implements the account and org repositories
var (
	_ repository.AccountRepository = (*DB)(nil)
	_ repository.OrgRepository     = (*DB)(nil)
)

const accountColumns = `id, COALESCE(github_id, 0), handle, email, avatar_url, password_hash, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }, a *model.Account) error {
	return row.Scan(&a.ID, &a.GitHubID, &a.Handle, &a.Email, &a.AvatarURL, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
}

// githubIDArg stores 0 as NULL so the partial unique index ignores password accounts.
func githubIDArg(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// CreateAccount inserts a new account. A taken handle is a Conflict.
func (db *DB) CreateAccount(ctx context.Context, a *model.Account) error {
	a.ID = xid.New().String()
	a.CreatedAt = now()
	a.UpdatedAt = a.CreatedAt

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO accounts (id, github_id, handle, email, avatar_url, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, githubIDArg(a.GitHubID), a.Handle, a.Email, a.AvatarURL, a.PasswordHash, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("account", a.Handle)
		}
		return fmt.Errorf("sqlite: creating account %s: %w", a.Handle, err)
	}
	return nil
}

// UpsertGitHubAccount inserts or refreshes the account linked to a.GitHubID.
//
// Existing accounts keep their internal ID and handle; only the profile
// fields GitHub owns (email, avatar) are refreshed.
func (db *DB) UpsertGitHubAccount(ctx context.Context, a *model.Account) error {
	var existing model.Account
	err := scanAccount(db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE github_id = ?`, a.GitHubID,
	), &existing)

	switch {
	case err == sql.ErrNoRows:
		return db.CreateAccount(ctx, a)
	case err != nil:
		return fmt.Errorf("sqlite: looking up account by github_id %d: %w", a.GitHubID, err)
	}

	a.ID = existing.ID
	a.Handle = existing.Handle
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = now()
	_, err = db.conn.ExecContext(ctx,
		`UPDATE accounts SET email = ?, avatar_url = ?, updated_at = ? WHERE id = ?`,
		a.Email, a.AvatarURL, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating account %s: %w", a.ID, err)
	}
	return nil
}

// GetAccountByID retrieves an account by its internal ID.
func (db *DB) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	var a model.Account
	err := scanAccount(db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id,
	), &a)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("account", id)
		}
		return nil, fmt.Errorf("sqlite: getting account %s: %w", id, err)
	}
	return &a, nil
}

// GetAccountByHandle retrieves an account by its handle.
func (db *DB) GetAccountByHandle(ctx context.Context, handle string) (*model.Account, error) {
	var a model.Account
	err := scanAccount(db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE handle = ?`, handle,
	), &a)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("account", handle)
		}
		return nil, fmt.Errorf("sqlite: getting account %s: %w", handle, err)
	}
	return &a, nil
}

// CreateOrg inserts the org and records its owner as the first member.
func (db *DB) CreateOrg(ctx context.Context, o *model.Org) error {
	o.ID = xid.New().String()
	o.CreatedAt = now()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO orgs (id, name, owner_account_id, created_at) VALUES (?, ?, ?, ?)`,
			o.ID, o.Name, o.OwnerAccountID, o.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("org", o.Name)
			}
			return fmt.Errorf("sqlite: creating org %s: %w", o.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO org_members (org_id, account_id) VALUES (?, ?)`, o.ID, o.OwnerAccountID,
		); err != nil {
			return fmt.Errorf("sqlite: adding org owner: %w", err)
		}
		o.MemberAccountIDs = []string{o.OwnerAccountID}
		return nil
	})
}

// GetOrgByID loads an org with its member list.
func (db *DB) GetOrgByID(ctx context.Context, id string) (*model.Org, error) {
	return db.getOrg(ctx, `id = ?`, id)
}

// GetOrgByName loads an org by its unique name.
func (db *DB) GetOrgByName(ctx context.Context, name string) (*model.Org, error) {
	return db.getOrg(ctx, `name = ?`, name)
}

func (db *DB) getOrg(ctx context.Context, where, arg string) (*model.Org, error) {
	var o model.Org
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, owner_account_id, created_at FROM orgs WHERE `+where, arg,
	).Scan(&o.ID, &o.Name, &o.OwnerAccountID, &o.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("org", arg)
		}
		return nil, fmt.Errorf("sqlite: getting org %s: %w", arg, err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT account_id FROM org_members WHERE org_id = ? ORDER BY account_id`, o.ID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing org members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning org member: %w", err)
		}
		o.MemberAccountIDs = append(o.MemberAccountIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating org members: %w", err)
	}
	return &o, nil
}

// AddOrgMember adds accountID to the org. Adding an existing member is a no-op.
func (db *DB) AddOrgMember(ctx context.Context, orgID, accountID string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO org_members (org_id, account_id) VALUES (?, ?)`, orgID, accountID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding member %s to org %s: %w", accountID, orgID, err)
	}
	return nil
}
