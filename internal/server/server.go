// Package server is the composition root: it opens the database, builds the
// services and handlers, registers routes and runs the HTTP listener next to
// the build workers and the requeue job.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/circuitpad/internal/auth"
	"github.com/sakif/circuitpad/internal/builder"
	"github.com/sakif/circuitpad/internal/config"
	"github.com/sakif/circuitpad/internal/handler"
	"github.com/sakif/circuitpad/internal/middleware"
	sqliteRepo "github.com/sakif/circuitpad/internal/repository/sqlite"
	"github.com/sakif/circuitpad/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server owns the database and the build service; both are closed or
// stopped by Run.
type Server struct {
	router *chi.Mux
	config *config.Server
	logger *slog.Logger
	db     *sqliteRepo.DB
	builds *service.BuildService
}

// New wires every layer. b runs the release builds.
func New(cfg *config.Server, logger *slog.Logger, b builder.Builder) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(b); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Builds exposes the build service so tests can drive the queue.
func (s *Server) Builds() *service.BuildService {
	return s.builds
}

// Close releases the database. Run calls it on the way out.
func (s *Server) Close() error {
	return s.db.Close()
}

func (s *Server) setupRoutes(b builder.Builder) error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	var github *auth.GitHubProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	} else {
		s.logger.Info("GitHub OAuth not configured, /auth/github routes disabled")
	}

	// sqlite.DB implements every repository interface.
	s.builds = service.NewBuildService(s.db, s.db, s.db, s.db, s.db, b, s.config.BuildQueueSize, s.logger)
	accounts := service.NewAccountService(s.db, tokens, auth.NewPasswordService(), s.logger)
	orgs := service.NewOrgService(s.db, s.db, s.logger)
	packages := service.NewPackageService(s.db, s.db, s.db, s.db, s.db, s.builds, s.logger)
	files := service.NewFileService(s.db, s.db, s.db, s.db, s.logger)
	releases := service.NewReleaseService(s.db, s.db, s.db, s.db, s.builds, s.logger)
	domains := service.NewDomainService(s.db, s.db, s.db, s.db, s.logger)

	accountHandler := handler.NewAccountHandler(accounts, github, s.config.TokenTTL, s.logger)
	orgHandler := handler.NewOrgHandler(orgs, s.logger)
	packageHandler := handler.NewPackageHandler(packages, s.logger)
	fileHandler := handler.NewFileHandler(files, s.logger)
	releaseHandler := handler.NewReleaseHandler(releases, s.builds, s.logger)
	domainHandler := handler.NewDomainHandler(domains, s.logger)
	embedHandler, err := handler.NewEmbedHandler(packages, files, s.logger)
	if err != nil {
		return fmt.Errorf("creating embed handler: %w", err)
	}

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(cors.Handler(s.corsOptions()))

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	limit := httprate.LimitByIP(s.config.RateLimitPerMinute, time.Minute)

	// Reads: anonymous allowed, a valid token reveals the caller's private packages.
	s.router.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(tokens))

		r.Get("/orgs/get", orgHandler.HandleGet)

		r.Get("/packages/get", packageHandler.HandleGet)
		r.Get("/packages/search", packageHandler.HandleSearch)
		r.Get("/packages/list", packageHandler.HandleList)

		r.Get("/package_files/get", fileHandler.HandleGet)
		r.Get("/package_files/list", fileHandler.HandleList)

		r.Get("/package_releases/get", releaseHandler.HandleGet)
		r.Get("/package_releases/list", releaseHandler.HandleList)
		r.Get("/package_releases/download", releaseHandler.HandleDownload)

		r.Get("/package_builds/get", releaseHandler.HandleGetBuild)
		r.Get("/package_builds/list", releaseHandler.HandleListBuilds)

		r.Get("/package_domains/list", domainHandler.HandleList)

		r.Get("/embed", embedHandler.HandleEmbed)
	})

	// Login and sign-up: no token yet, but rate limited.
	s.router.Group(func(r chi.Router) {
		if s.config.RateLimitPerMinute > 0 {
			r.Use(limit)
		}
		r.Post("/accounts/create", accountHandler.HandleCreateAccount)
		r.Post("/sessions/create", accountHandler.HandleCreateSession)
		r.Post("/sessions/delete", accountHandler.HandleDeleteSession)
		if github != nil {
			r.Get("/auth/github/login", accountHandler.HandleGitHubLogin)
			r.Get("/auth/github/callback", accountHandler.HandleGitHubCallback)
		}
	})

	// Everything that changes state needs a token.
	s.router.Group(func(r chi.Router) {
		if s.config.RateLimitPerMinute > 0 {
			r.Use(limit)
		}
		r.Use(auth.RequireAuth(tokens))

		r.Get("/accounts/get", accountHandler.HandleGetAccount)

		r.Post("/orgs/create", orgHandler.HandleCreate)
		r.Post("/orgs/add_member", orgHandler.HandleAddMember)

		r.Post("/packages/create", packageHandler.HandleCreate)
		r.Post("/packages/update", packageHandler.HandleUpdate)
		r.Post("/packages/delete", packageHandler.HandleDelete)
		r.Post("/packages/fork", packageHandler.HandleFork)
		r.Post("/packages/add_star", packageHandler.HandleAddStar)
		r.Post("/packages/remove_star", packageHandler.HandleRemoveStar)
		r.Post("/packages/transfer", packageHandler.HandleTransfer)

		r.Post("/package_files/create", fileHandler.HandleCreate)
		r.Post("/package_files/create_or_update", fileHandler.HandleCreateOrUpdate)
		r.Post("/package_files/delete", fileHandler.HandleDelete)

		r.Post("/package_releases/create", releaseHandler.HandleCreate)
		r.Post("/package_releases/update", releaseHandler.HandleUpdate)
		r.Post("/package_releases/rebuild", releaseHandler.HandleRebuild)

		r.Post("/package_domains/create", domainHandler.HandleCreate)
		r.Post("/package_domains/update", domainHandler.HandleUpdate)
	})

	return nil
}

func (s *Server) corsOptions() cors.Options {
	opts := cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:         300,
	}
	// Browsers refuse credentialed requests against a wildcard origin.
	for _, o := range s.config.CORSOrigins {
		if o == "*" {
			return opts
		}
	}
	opts.AllowCredentials = true
	return opts
}

// Start runs until SIGINT or SIGTERM.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves HTTP, runs the build workers and the stale-build requeue job
// until ctx is cancelled or one of them fails, then shuts everything down.
// In-flight requests get shutdownTimeout to finish; the database is closed
// last.
func (s *Server) Run(ctx context.Context) error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	requeue := cron.New()
	if _, err := requeue.AddFunc(s.config.BuildRequeueSchedule, func() {
		if _, err := s.builds.RequeueStale(ctx, s.config.BuildStaleAfter); err != nil {
			s.logger.Error("requeue of stale builds failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return fmt.Errorf("scheduling build requeue %q: %w", s.config.BuildRequeueSchedule, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", s.config.BaseURL),
			slog.String("database", s.config.DBPath),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return s.builds.Run(gctx, s.config.BuildWorkers)
	})

	g.Go(func() error {
		requeue.Start()
		<-gctx.Done()
		<-requeue.Stop().Done()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}

// EnsureDataDir creates the directory the database file lives in.
func EnsureDataDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(dbPath), 0o755)
}
