package model

import (
	"strings"
	"time"
)

// PackageType is what kind of circuit code a package holds.
type PackageType string

const (
	PackageTypeBoard     PackageType = "board"
	PackageTypePackage   PackageType = "package"
	PackageTypeModel     PackageType = "model"
	PackageTypeFootprint PackageType = "footprint"
)

// Valid reports whether t is one of the known package types.
func (t PackageType) Valid() bool {
	switch t {
	case PackageTypeBoard, PackageTypePackage, PackageTypeModel, PackageTypeFootprint:
		return true
	}
	return false
}

// Package is a named, owned unit of circuit code. Snippets are packages too;
// the API accepts snippet_id wherever it accepts package_id.
//
// A package is owned by its creator unless OwnerOrgID is set, in which case
// every member of that org may modify it. OwnerName is the handle or org name
// shown in "owner/name".
type Package struct {
	ID                     string      `json:"package_id"`
	CreatorAccountID       string      `json:"creator_account_id"`
	OwnerOrgID             string      `json:"owner_org_id,omitempty"`
	OwnerName              string      `json:"owner_github_username"`
	UnscopedName           string      `json:"unscoped_name"`
	Description            string      `json:"description"`
	Website                string      `json:"website"`
	License                string      `json:"license"`
	IsPrivate              bool        `json:"is_private"`
	Type                   PackageType `json:"type"`
	DefaultView            string      `json:"default_view"`
	StarCount              int         `json:"star_count"`
	GitHubRepoFullName     string      `json:"github_repo_full_name,omitempty"`
	LatestPackageReleaseID string      `json:"latest_package_release_id,omitempty"`
	LatestVersion          string      `json:"latest_version,omitempty"`
	ForkedFromPackageID    string      `json:"forked_from_package_id,omitempty"`
	CreatedAt              time.Time   `json:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at"`
}

// Name is the fully scoped "owner/name" form.
func (p *Package) Name() string {
	return p.OwnerName + "/" + p.UnscopedName
}

// SplitName splits "owner/name" (an optional leading "@" is allowed).
// ok is false when either half is missing.
func SplitName(full string) (owner, name string, ok bool) {
	full = strings.TrimPrefix(strings.TrimSpace(full), "@")
	owner, name, found := strings.Cut(full, "/")
	if !found || owner == "" || name == "" {
		return "", "", false
	}
	return owner, name, true
}
