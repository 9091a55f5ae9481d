// Command server runs the circuitpad registry: the JSON API, the embed
// preview page and the release build workers.
//
// Configuration comes from the environment, an optional .env file and an
// optional circuitpad.yaml; see internal/config for the keys.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/sakif/circuitpad/internal/builder"
	"github.com/sakif/circuitpad/internal/builder/docker"
	"github.com/sakif/circuitpad/internal/config"
	"github.com/sakif/circuitpad/internal/server"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (yaml, toml or json)")
	flag.Parse()

	v, err := config.New(*configFile)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	cfg, err := config.LoadServer(v)
	if err != nil {
		slog.Error("invalid config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := config.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	if err := server.EnsureDataDir(cfg.DBPath); err != nil {
		logger.Error("failed to create database directory",
			slog.String("path", cfg.DBPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	b := newBuilder(cfg, logger)
	if closer, ok := b.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	srv, err := server.New(cfg, logger, b)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newBuilder prefers Docker and falls back to the in-process builder so the
// registry still works on hosts without a daemon.
func newBuilder(cfg *config.Server, logger *slog.Logger) builder.Builder {
	if cfg.BuildDriver == config.DriverStatic {
		logger.Info("using static builder")
		return builder.Static{}
	}

	dcfg := docker.DefaultConfig()
	if cfg.BuildImage != "" {
		dcfg.Image = cfg.BuildImage
	}
	if cfg.BuildCommand != "" {
		dcfg.Command = cfg.BuildCommand
	}
	if cfg.BuildPoolSize > 0 {
		dcfg.PoolSize = cfg.BuildPoolSize
	}
	dcfg.Timeout = cfg.BuildTimeout

	b, err := docker.New(dcfg, logger)
	if err != nil {
		logger.Warn("Docker builder unavailable, falling back to static builds",
			slog.String("error", err.Error()),
		)
		return builder.Static{}
	}
	return b
}
