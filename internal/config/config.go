package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime setting. Values come from the environment
// (optionally seeded from a .env file by the caller) and are validated once
// at startup.
type Config struct {
	Addr   string `env:"ADDR" envDefault:":8080"`
	AppEnv string `env:"APP_ENV" envDefault:"development"`

	DatabaseURL       string        `env:"DATABASE_URL,required,notEmpty"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"10m"`

	SentryDSN string `env:"SENTRY_DSN"`

	JWT     JWT     `envPrefix:"JWT_"`
	Admin   Admin   `envPrefix:"ADMIN_"`
	Google  Google  `envPrefix:"GOOGLE_"`
	Radarr  Radarr  `envPrefix:"RADARR_"`
	Login   Login   `envPrefix:"LOGIN_"`
	Cleanup Cleanup `envPrefix:"AUTH_CLEANUP_"`
}

// JWT configures access-token issuance and verification.
type JWT struct {
	Secret     string        `env:"SECRET,required"`
	Issuer     string        `env:"ISSUER" envDefault:"streamselect"`
	Audience   string        `env:"AUDIENCE" envDefault:"streamselect"`
	AccessTTL  time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"168h"`
}

// Admin is the optional bootstrap account created at startup.
type Admin struct {
	Email    string `env:"EMAIL"`
	Password string `env:"PASSWORD"`
}

// Google configures external login. Empty means the feature is disabled.
type Google struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

// Radarr configures the metadata provider. Empty means enrichment is disabled.
type Radarr struct {
	BaseURL string `env:"BASE_URL"`
	APIKey  string `env:"API_KEY"`
}

// Login holds credential-abuse protection knobs.
type Login struct {
	MaxAttempts     int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	LockDuration    time.Duration `env:"LOCK_DURATION" envDefault:"15m"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"10"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Cleanup configures the stale-token maintenance endpoint.
type Cleanup struct {
	CronSecret            string        `env:"CRON_SECRET"`
	RefreshRetention      time.Duration `env:"REFRESH_RETENTION" envDefault:"336h"`
	LoginAttemptRetention time.Duration `env:"LOGIN_ATTEMPT_RETENTION" envDefault:"720h"`
	BatchSize             int           `env:"BATCH_SIZE" envDefault:"500"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("JWT token TTLs must be positive")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return fmt.Errorf("JWT_ACCESS_TTL must be shorter than JWT_REFRESH_TTL")
	}
	if (c.Admin.Email == "") != (c.Admin.Password == "") {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD are required together")
	}
	if (c.Google.ClientID == "") != (c.Google.ClientSecret == "") {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required together")
	}
	if (c.Radarr.BaseURL == "") != (c.Radarr.APIKey == "") {
		return fmt.Errorf("RADARR_BASE_URL and RADARR_API_KEY are required together")
	}
	if c.Radarr.BaseURL != "" && !strings.HasPrefix(c.Radarr.BaseURL, "http") {
		return fmt.Errorf("RADARR_BASE_URL must be an http(s) URL")
	}
	return nil
}

// GoogleEnabled reports whether external login is configured.
func (c *Config) GoogleEnabled() bool { return c.Google.ClientID != "" }

// RadarrEnabled reports whether metadata enrichment is configured.
func (c *Config) RadarrEnabled() bool { return c.Radarr.BaseURL != "" }
