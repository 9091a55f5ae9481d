package builder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_Build(t *testing.T) {
	tests := []struct {
		name      string
		files     []File
		wantExit  int
		wantInLog string
	}{
		{"index.tsx", []File{{Path: "index.tsx"}, {Path: "README.md"}}, 0, "entrypoint: index.tsx"},
		{"prefers index.tsx over main.tsx", []File{{Path: "main.tsx"}, {Path: "index.tsx"}}, 0, "entrypoint: index.tsx"},
		{"circuit file in subdir", []File{{Path: "boards/led.circuit.tsx"}}, 0, "entrypoint: boards/led.circuit.tsx"},
		{"no entrypoint", []File{{Path: "lib/util.ts"}}, 1, "no entrypoint"},
		{"empty release", nil, 1, "no entrypoint"},
		{"empty path", []File{{Path: " "}, {Path: "index.tsx"}}, 1, "empty path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Static{}.Build(context.Background(), Request{ReleaseID: "r1", Files: tt.files})
			require.NoError(t, err)
			assert.Equal(t, tt.wantExit, res.ExitCode)
			assert.Contains(t, res.Logs, tt.wantInLog)
		})
	}
}

func TestStatic_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Static{}.Build(ctx, Request{Files: []File{{Path: "index.tsx"}}})
	assert.ErrorIs(t, err, context.Canceled)
}
