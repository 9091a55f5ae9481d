package docker

import "time"

// Config controls the build containers.
type Config struct {
	// Image must contain a POSIX shell and tar.
	Image string

	// Command is run with "sh -c" inside /workspace after the release files
	// are unpacked there.
	Command string

	// MemoryLimit in bytes and CPULimit in cores, per container.
	MemoryLimit int64
	CPULimit    float64

	// WorkspaceSize caps the tmpfs the files are unpacked into, e.g. "64m".
	WorkspaceSize string

	// Timeout is the wall-clock limit for one build.
	Timeout time.Duration

	// PoolSize is how many idle containers are kept warm.
	PoolSize int
}

// DefaultConfig returns settings suitable for small circuit packages.
// Containers have no network, so Command must work offline.
func DefaultConfig() Config {
	return Config{
		Image:         "node:22-alpine",
		Command:       "find . -type f | sort && (test -f index.tsx || test -f index.ts || test -f main.tsx || ls *.circuit.tsx)",
		MemoryLimit:   256 * 1024 * 1024,
		CPULimit:      1,
		WorkspaceSize: "64m",
		Timeout:       60 * time.Second,
		PoolSize:      2,
	}
}
