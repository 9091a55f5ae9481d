// Package config loads server and CLI settings.
//
// Sources, later ones winning:
//  1. built-in defaults
//  2. an optional circuitpad.{yaml,toml,json} in the working directory (or
//     the file named explicitly)
//  3. a .env file in the working directory, if present
//  4. the process environment
//
// Keys are the environment variable names in lower case, so DB_PATH in the
// environment and db_path in a config file set the same value.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Build drivers.
const (
	DriverDocker = "docker"
	DriverStatic = "static"
)

// minSecretLength matches what the token service accepts.
const minSecretLength = 16

// Server holds everything cmd/server needs.
type Server struct {
	Port      int
	BaseURL   string
	DBPath    string
	LogLevel  string
	LogFormat string

	JWTSecret          string
	TokenTTL           time.Duration
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	CORSOrigins        []string
	RateLimitPerMinute int

	BuildDriver          string
	BuildImage           string
	BuildCommand         string
	BuildWorkers         int
	BuildQueueSize       int
	BuildPoolSize        int
	BuildTimeout         time.Duration
	BuildRequeueSchedule string
	BuildStaleAfter      time.Duration
}

// GitHubEnabled reports whether both OAuth credentials are configured.
func (s *Server) GitHubEnabled() bool {
	return s.GitHubClientID != "" && s.GitHubClientSecret != ""
}

// CLI holds the settings of cmd/circuitpad.
type CLI struct {
	APIURL       string
	SessionPath  string
	EmbedBaseURL string
	LogLevel     string
}

// New returns a viper instance with .env loaded, environment binding on and
// the optional config file read. configFile may be empty.
func New(configFile string) (*viper.Viper, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("circuitpad")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("db_path", "data/circuitpad.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("token_ttl", "168h")
	v.SetDefault("cors_origins", "*")
	v.SetDefault("rate_limit_per_minute", 120)
	v.SetDefault("build_driver", DriverDocker)
	v.SetDefault("build_workers", 2)
	v.SetDefault("build_queue_size", 64)
	v.SetDefault("build_pool_size", 2)
	v.SetDefault("build_timeout", "2m")
	v.SetDefault("build_requeue_schedule", "@every 1m")
	v.SetDefault("build_stale_after", "2m")

	v.SetDefault("api_url", "http://localhost:8080")
	v.SetDefault("embed_base_url", "http://localhost:8080")
	if home, err := os.UserHomeDir(); err == nil {
		v.SetDefault("session_path", filepath.Join(home, ".circuitpad", "session.db"))
	} else {
		v.SetDefault("session_path", ".circuitpad-session.db")
	}
}

// LoadServer reads and validates the server configuration.
func LoadServer(v *viper.Viper) (*Server, error) {
	cfg := &Server{
		Port:      v.GetInt("port"),
		BaseURL:   v.GetString("base_url"),
		DBPath:    v.GetString("db_path"),
		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),

		JWTSecret:          v.GetString("jwt_secret"),
		TokenTTL:           v.GetDuration("token_ttl"),
		GitHubClientID:     v.GetString("github_client_id"),
		GitHubClientSecret: v.GetString("github_client_secret"),
		GitHubCallbackURL:  v.GetString("github_callback_url"),

		CORSOrigins:        splitList(v.GetString("cors_origins")),
		RateLimitPerMinute: v.GetInt("rate_limit_per_minute"),

		BuildDriver:          strings.ToLower(v.GetString("build_driver")),
		BuildImage:           v.GetString("build_image"),
		BuildCommand:         v.GetString("build_command"),
		BuildWorkers:         v.GetInt("build_workers"),
		BuildQueueSize:       v.GetInt("build_queue_size"),
		BuildPoolSize:        v.GetInt("build_pool_size"),
		BuildTimeout:         v.GetDuration("build_timeout"),
		BuildRequeueSchedule: v.GetString("build_requeue_schedule"),
		BuildStaleAfter:      v.GetDuration("build_stale_after"),
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = strings.TrimRight(cfg.BaseURL, "/") + "/auth/github/callback"
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Server) validate() error {
	switch {
	case s.Port <= 0 || s.Port > 65535:
		return fmt.Errorf("config: PORT must be between 1 and 65535, got %d", s.Port)
	case len(s.JWTSecret) < minSecretLength:
		return fmt.Errorf("config: JWT_SECRET must be at least %d characters", minSecretLength)
	case s.TokenTTL <= 0:
		return errors.New("config: TOKEN_TTL must be positive")
	case s.BuildDriver != DriverDocker && s.BuildDriver != DriverStatic:
		return fmt.Errorf("config: BUILD_DRIVER must be %q or %q, got %q", DriverDocker, DriverStatic, s.BuildDriver)
	case s.BuildWorkers <= 0:
		return errors.New("config: BUILD_WORKERS must be positive")
	case s.BuildTimeout <= 0:
		return errors.New("config: BUILD_TIMEOUT must be positive")
	}
	if _, err := ParseLevel(s.LogLevel); err != nil {
		return err
	}
	if s.LogFormat != "text" && s.LogFormat != "json" {
		return fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", s.LogFormat)
	}
	return nil
}

// LoadCLI reads the CLI configuration. Flags bound to v by the caller
// override everything else.
func LoadCLI(v *viper.Viper) *CLI {
	return &CLI{
		APIURL:       strings.TrimRight(v.GetString("api_url"), "/"),
		SessionPath:  v.GetString("session_path"),
		EmbedBaseURL: strings.TrimRight(v.GetString("embed_base_url"), "/"),
		LogLevel:     v.GetString("log_level"),
	}
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: unknown log level %q", s)
	}
	return level, nil
}

// NewLogger builds the process logger. format is "text" or "json".
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
