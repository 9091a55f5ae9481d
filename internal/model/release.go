package model

import "time"

// BuildStatus tracks a release build.
type BuildStatus string

const (
	BuildPending  BuildStatus = "pending"
	BuildBuilding BuildStatus = "building"
	BuildComplete BuildStatus = "complete"
	BuildError    BuildStatus = "error"
)

// Done reports whether the status is terminal.
func (s BuildStatus) Done() bool {
	return s == BuildComplete || s == BuildError
}

// PackageRelease is a versioned snapshot of a package's files.
// At most one release per package has IsLatest set.
type PackageRelease struct {
	ID                   string      `json:"package_release_id"`
	PackageID            string      `json:"package_id"`
	Version              string      `json:"version"`
	IsLatest             bool        `json:"is_latest"`
	IsLocked             bool        `json:"is_locked"`
	BuildStatus          BuildStatus `json:"build_status"`
	BuildStartedAt       *time.Time  `json:"build_started_at"`
	BuildCompletedAt     *time.Time  `json:"build_completed_at"`
	BuildLogs            string      `json:"build_logs"`
	LatestPackageBuildID string      `json:"latest_package_build_id,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// PackageBuild is one attempt at building a release. Rebuilding a release
// creates a new PackageBuild; the release mirrors the newest build's status.
type PackageBuild struct {
	ID               string      `json:"package_build_id"`
	PackageReleaseID string      `json:"package_release_id"`
	Status           BuildStatus `json:"status"`
	Logs             string      `json:"logs"`
	ExitCode         int         `json:"exit_code"`
	StartedAt        *time.Time  `json:"started_at"`
	CompletedAt      *time.Time  `json:"completed_at"`
	CreatedAt        time.Time   `json:"created_at"`
}

// PackageFile is one file inside a release. Paths are unique per release.
// Exactly one of ContentText and ContentBase64 is meaningful; binary files
// travel as base64.
type PackageFile struct {
	ID               string    `json:"package_file_id"`
	PackageReleaseID string    `json:"package_release_id"`
	FilePath         string    `json:"file_path"`
	ContentText      string    `json:"content_text"`
	ContentBase64    string    `json:"content_base64,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
