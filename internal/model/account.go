// Package model defines the data structures used throughout the application.
// Struct tags use snake_case because the JSON API mirrors the database columns.
package model

import "time"

// Account is a registered user. Accounts sign in either with a password
// (PasswordHash set) or through GitHub OAuth (GitHubID set).
type Account struct {
	ID           string    `json:"account_id"`
	GitHubID     int64     `json:"github_id,omitempty"`
	Handle       string    `json:"github_username"`
	Email        string    `json:"email,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Org groups accounts so they can own packages together.
type Org struct {
	ID               string    `json:"org_id"`
	Name             string    `json:"name"`
	OwnerAccountID   string    `json:"owner_account_id"`
	MemberAccountIDs []string  `json:"member_account_ids,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// HasMember reports whether accountID belongs to the org.
func (o *Org) HasMember(accountID string) bool {
	if o.OwnerAccountID == accountID {
		return true
	}
	for _, id := range o.MemberAccountIDs {
		if id == accountID {
			return true
		}
	}
	return false
}
