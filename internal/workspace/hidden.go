package workspace

import (
	"path"
	"strings"
)

// hiddenDirs hide everything below a path segment with that name.
var hiddenDirs = []string{"node_modules", ".git", "dist"}

// hiddenNames are matched against the base name with path.Match.
var hiddenNames = []string{
	".env*",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"bun.lock",
	"bun.lockb",
	".DS_Store",
}

// visibleNames win over hiddenNames.
var visibleNames = []string{".env.example"}

// Hidden reports whether p is excluded from change tracking, saving and
// deleting. Lockfiles, VCS metadata, build output and local env files are
// hidden.
func Hidden(p string) bool {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	segments := strings.Split(p, "/")
	for _, seg := range segments[:len(segments)-1] {
		for _, dir := range hiddenDirs {
			if seg == dir {
				return true
			}
		}
	}

	base := segments[len(segments)-1]
	if matchAny(visibleNames, base) {
		return false
	}
	return matchAny(hiddenNames, base)
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
