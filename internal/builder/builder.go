// Package builder turns a release's files into build output.
//
// The build workers in the service package only know the Builder interface,
// so the server can run real container builds in production and the
// in-process Static builder in tests or on hosts without Docker.
package builder

import (
	"context"
	"time"
)

// File is one source file handed to a build.
type File struct {
	Path    string
	Content []byte
}

// Request describes a single build.
type Request struct {
	ReleaseID string
	Files     []File
}

// Result is what a finished build reports. ExitCode follows process
// conventions: 0 is success, 124 means the build hit its timeout.
type Result struct {
	Logs     string
	ExitCode int
	Duration time.Duration
}

// ExitTimeout is the exit code reported when a build is killed for taking too long.
const ExitTimeout = 124

// Builder runs builds. Implementations must respect ctx cancellation.
// A non-nil error means the build could not be attempted at all; a build
// that ran and failed returns a Result with a non-zero ExitCode instead.
type Builder interface {
	Build(ctx context.Context, req Request) (*Result, error)
}
