package docker

import (
	"archive/tar"
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/circuitpad/internal/builder"
)

func TestTarFiles(t *testing.T) {
	buf, err := tarFiles([]builder.File{
		{Path: "index.tsx", Content: []byte("export default () => <board />")},
		{Path: "lib/util.ts", Content: []byte("export const x = 1")},
	})
	require.NoError(t, err)

	tr := tar.NewReader(buf)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		assert.Equal(t, hdr.Size, int64(len(body)))
	}
	assert.Equal(t, []string{"index.tsx", "lib/util.ts"}, names)
}

// TestDockerBuilder needs a local Docker daemon; it is skipped in CI.
func TestDockerBuilder(t *testing.T) {
	if os.Getenv("CI") != "" || os.Getenv("DOCKER_TESTS") == "" {
		t.Skip("set DOCKER_TESTS=1 to run against a local docker daemon")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cfg := DefaultConfig()
	cfg.PoolSize = 1

	b, err := New(cfg, logger)
	require.NoError(t, err)
	defer b.Close()

	t.Run("entrypoint present", func(t *testing.T) {
		res, err := b.Build(context.Background(), builder.Request{Files: []builder.File{
			{Path: "index.tsx", Content: []byte("export default () => <board width=\"10mm\" height=\"10mm\" />")},
		}})
		require.NoError(t, err)
		assert.Equal(t, 0, res.ExitCode, res.Logs)
		assert.Contains(t, res.Logs, "index.tsx")
	})

	t.Run("missing entrypoint", func(t *testing.T) {
		res, err := b.Build(context.Background(), builder.Request{Files: []builder.File{
			{Path: "README.md", Content: []byte("# hi")},
		}})
		require.NoError(t, err)
		assert.NotEqual(t, 0, res.ExitCode)
	})

	t.Run("timeout", func(t *testing.T) {
		slow := cfg
		slow.Command = "sleep 30"
		slow.Timeout = 2 * time.Second
		sb, err := New(slow, logger)
		require.NoError(t, err)
		defer sb.Close()

		res, err := sb.Build(context.Background(), builder.Request{Files: []builder.File{{Path: "index.tsx"}}})
		require.NoError(t, err)
		assert.Equal(t, builder.ExitTimeout, res.ExitCode)
		assert.Contains(t, res.Logs, "timed out")
	})
}
