// Package config loads docchat configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration values.
type Config struct {
	// Backend base URLs
	ChatServiceURL       string `env:"DOCCHAT_CHAT_SERVICE_URL" envDefault:"http://localhost:3002"`
	ManagementServiceURL string `env:"DOCCHAT_MANAGEMENT_SERVICE_URL" envDefault:"http://localhost:3001"`
	IngestionServiceURL  string `env:"DOCCHAT_INGESTION_SERVICE_URL" envDefault:"http://localhost:3003"`

	// HTTP transport
	ClientTimeout time.Duration `env:"DOCCHAT_CLIENT_TIMEOUT" envDefault:"30s"`

	// Identity provider (OAuth2 token endpoint)
	AuthTokenURL     string   `env:"DOCCHAT_AUTH_TOKEN_URL"`
	AuthClientID     string   `env:"DOCCHAT_AUTH_CLIENT_ID"`
	AuthClientSecret string   `env:"DOCCHAT_AUTH_CLIENT_SECRET"`
	AuthScopes       []string `env:"DOCCHAT_AUTH_SCOPES" envSeparator:","`

	// CLI defaults
	DefaultConversation string `env:"DOCCHAT_CONVERSATION"`
	StateDir            string `env:"DOCCHAT_STATE_DIR"`

	// Web gate
	ServerPort        string   `env:"DOCCHAT_SERVER_PORT" envDefault:"8585"`
	ProtectedPrefixes []string `env:"DOCCHAT_PROTECTED_PREFIXES" envSeparator:"," envDefault:"/dashboard,/profile,/settings"`

	// Logging
	LogFile      string `env:"DOCCHAT_LOG_FILE" envDefault:"/tmp/docchat.log"`
	LogLevelName string `env:"DOCCHAT_LOG_LEVEL" envDefault:"INFO"`
}

// Load reads configuration from an optional .env file and the environment.
func Load() (Config, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if cfg.StateDir == "" {
		cfg.StateDir = defaultStateDir()
	}
	for i, p := range cfg.ProtectedPrefixes {
		cfg.ProtectedPrefixes[i] = "/" + strings.Trim(strings.TrimSpace(p), "/")
	}

	return cfg, nil
}

// LogLevel returns the parsed log level.
func (c Config) LogLevel() slog.Level {
	return parseLogLevel(c.LogLevelName)
}

// SessionDir is where the per-login session identity is kept. It lives in the
// runtime dir so it does not survive a reboot.
func (c Config) SessionDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "docchat")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("docchat-%d", os.Getuid()))
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "docchat")
	}
	return filepath.Join(dir, "docchat")
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
