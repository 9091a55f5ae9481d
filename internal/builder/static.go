package builder

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

// entrypoints are the files a circuit package can be built from, in the
// order they are looked for.
var entrypoints = []string{"index.tsx", "index.ts", "main.tsx"}

// Static is a builder that runs in-process. It does not compile anything;
// it checks that the release has something buildable and reports what it saw.
type Static struct{}

var _ Builder = Static{}

// Build implements Builder.
func (Static) Build(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var logs strings.Builder
	fmt.Fprintf(&logs, "checking %d files\n", len(req.Files))

	paths := make([]string, 0, len(req.Files))
	for _, f := range req.Files {
		if strings.TrimSpace(f.Path) == "" {
			logs.WriteString("error: file with empty path\n")
			return &Result{Logs: logs.String(), ExitCode: 1, Duration: time.Since(start)}, nil
		}
		paths = append(paths, f.Path)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Fprintf(&logs, "  %s\n", p)
	}

	entry := findEntrypoint(paths)
	if entry == "" {
		logs.WriteString("error: no entrypoint found (index.tsx, index.ts, main.tsx or *.circuit.tsx)\n")
		return &Result{Logs: logs.String(), ExitCode: 1, Duration: time.Since(start)}, nil
	}

	fmt.Fprintf(&logs, "entrypoint: %s\nbuild complete\n", entry)
	return &Result{Logs: logs.String(), ExitCode: 0, Duration: time.Since(start)}, nil
}

func findEntrypoint(paths []string) string {
	have := make(map[string]bool, len(paths))
	for _, p := range paths {
		have[p] = true
	}
	for _, e := range entrypoints {
		if have[e] {
			return e
		}
	}
	for _, p := range paths {
		if strings.HasSuffix(path.Base(p), ".circuit.tsx") {
			return p
		}
	}
	return ""
}
