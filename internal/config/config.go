// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// defaultEnvFile is read by Load when ENV_FILE is unset.
const defaultEnvFile = ".env"

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache and event stream (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Identity provider (GoTrue-compatible auth service)
	IdentityURL        string        `env:"IDENTITY_URL,required"`
	IdentityServiceKey string        `env:"IDENTITY_SERVICE_KEY,required"`
	IdentityTimeout    time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"10s"`

	// Session tokens issued by the identity provider
	SessionJWTSecret string `env:"SESSION_JWT_SECRET,required"`
	SessionAudience  string `env:"SESSION_AUDIENCE" envDefault:"authenticated"`

	// Admin allow-list: comma-separated emails granted admin rights
	// regardless of the profile flag.
	AdminEmails string `env:"ADMIN_EMAILS" envDefault:""`

	// Static key the add-on uses when reporting installation and usage events.
	TrackingAPIKey string `env:"TRACKING_API_KEY" envDefault:""`

	// External add-on library the bridge forwards to
	BridgeLibraryURL string        `env:"BRIDGE_LIBRARY_URL" envDefault:""`
	BridgeTimeout    time.Duration `env:"BRIDGE_TIMEOUT" envDefault:"30s"`

	// BridgeSigningSecret, when set, signs forwarded calls with HMAC-SHA256.
	BridgeSigningSecret string `env:"BRIDGE_SIGNING_SECRET" envDefault:""`

	// Transactional email (SendGrid); notices are skipped when the key is empty
	SendGridAPIKey string `env:"SENDGRID_API_KEY" envDefault:""`
	MailFromEmail  string `env:"MAIL_FROM_EMAIL" envDefault:"hello@sheetsmith.app"`
	MailFromName   string `env:"MAIL_FROM_NAME" envDefault:"Sheetsmith"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"35s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting
	RateLimitAPIEnabled  bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	RateLimitAPIRPM      int  `env:"RATE_LIMIT_API_RPM" envDefault:"120"`
	RateLimitAPIBurst    int  `env:"RATE_LIMIT_API_BURST" envDefault:"20"`
	RateLimitAuthEnabled bool `env:"RATE_LIMIT_AUTH_ENABLED" envDefault:"true"`
	RateLimitAuthRPS     int  `env:"RATE_LIMIT_AUTH_RPS" envDefault:"2"`
	RateLimitAuthBurst   int  `env:"RATE_LIMIT_AUTH_BURST" envDefault:"5"`

	// Installation event worker
	EventWorkerEnabled   bool `env:"EVENT_WORKER_ENABLED" envDefault:"true"`
	EventWorkerBatchSize int  `env:"EVENT_WORKER_BATCH_SIZE" envDefault:"200"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://sheetsmith.app,https://www.sheetsmith.app")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// APIKeyEnv is the environment segment of minted API keys: "live" in
// production, "test" everywhere else.
func (c *Config) APIKeyEnv() string {
	if c.IsProduction() {
		return "live"
	}
	return "test"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins, false)
}

// GetAdminEmails returns the normalized admin allow-list.
func (c *Config) GetAdminEmails() []string {
	return splitList(c.AdminEmails, true)
}

// IsAdminEmail reports whether email is on the admin allow-list.
func (c *Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	return slices.Contains(c.GetAdminEmails(), email)
}

func splitList(raw string, lower bool) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if lower {
			trimmed = strings.ToLower(trimmed)
		}
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
//
// Variables from ENV_FILE (default .env) are applied first when the file
// exists. They never override variables already set in the environment.
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func loadEnvFile() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
