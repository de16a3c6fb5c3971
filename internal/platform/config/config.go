package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	SessionSecret string `env:"SESSION_SECRET"`
	SessionName   string `env:"SESSION_NAME" default:"session"`
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	// PublicBaseURL is where providers redirect back to, e.g. https://api.example.com.
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
	SuccessURL    string `env:"SUCCESS_URL"`
	ErrorURL      string `env:"ERROR_URL"`

	Vercel  VercelConfig
	Webflow WebflowConfig

	StateCookieMaxAge time.Duration `env:"STATE_COOKIE_MAX_AGE" default:"10m"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" default:"15s"`
}

type VercelConfig struct {
	ClientID        string `env:"VERCEL_CLIENT_ID"`
	ClientSecret    string `env:"VERCEL_CLIENT_SECRET"`
	IntegrationSlug string `env:"VERCEL_INTEGRATION_SLUG"`
}

func (c VercelConfig) Enabled() bool { return c.ClientID != "" }

type WebflowConfig struct {
	ClientID     string `env:"WEBFLOW_CLIENT_ID"`
	ClientSecret string `env:"WEBFLOW_CLIENT_SECRET"`
	Scopes       string `env:"WEBFLOW_SCOPES" default:"authorized_user:read,sites:read"`
}

func (c WebflowConfig) Enabled() bool { return c.ClientID != "" }

func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

// CallbackURL is the redirect URI registered with a provider.
func (c *Config) CallbackURL(provider string) string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/integrations/" + provider + "/callback"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadKey reads only ENCRYPTION_KEY, for tools that never touch the database.
func LoadKey() (string, error) {
	_ = godotenv.Load()

	var cfg struct {
		EncryptionKey string `env:"ENCRYPTION_KEY"`
	}
	if err := env.Load(&cfg, nil); err != nil {
		return "", fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := validateKey(cfg.EncryptionKey); err != nil {
		return "", err
	}
	return cfg.EncryptionKey, nil
}

// LoadDatabaseURL reads only DATABASE_URL, for the migrate command.
func LoadDatabaseURL() (string, error) {
	_ = godotenv.Load()

	var cfg struct {
		DatabaseURL string `env:"DATABASE_URL"`
	}
	if err := env.Load(&cfg, nil); err != nil {
		return "", fmt.Errorf("failed to load environment variables: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return "", errors.New("DATABASE_URL is required")
	}
	return cfg.DatabaseURL, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"SESSION_SECRET", cfg.SessionSecret},
		{"ENCRYPTION_KEY", cfg.EncryptionKey},
		{"PUBLIC_BASE_URL", cfg.PublicBaseURL},
		{"SUCCESS_URL", cfg.SuccessURL},
		{"ERROR_URL", cfg.ErrorURL},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if err := validateKey(cfg.EncryptionKey); err != nil {
		return err
	}

	if len(cfg.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 characters")
	}

	for _, u := range []struct{ name, value string }{
		{"PUBLIC_BASE_URL", cfg.PublicBaseURL},
		{"SUCCESS_URL", cfg.SuccessURL},
		{"ERROR_URL", cfg.ErrorURL},
	} {
		if err := validateAbsoluteURL(u.name, u.value); err != nil {
			return err
		}
	}

	if cfg.Vercel.Enabled() && (cfg.Vercel.ClientSecret == "" || cfg.Vercel.IntegrationSlug == "") {
		return errors.New("VERCEL_CLIENT_SECRET and VERCEL_INTEGRATION_SLUG are required when VERCEL_CLIENT_ID is set")
	}
	if cfg.Webflow.Enabled() && cfg.Webflow.ClientSecret == "" {
		return errors.New("WEBFLOW_CLIENT_SECRET is required when WEBFLOW_CLIENT_ID is set")
	}

	if cfg.IsProduction() {
		mode := sslMode(cfg.DatabaseURL)
		if mode == "disable" || mode == "allow" {
			return fmt.Errorf("DATABASE_URL sslmode=%s is not allowed in production", mode)
		}
		if !strings.HasPrefix(cfg.PublicBaseURL, "https://") {
			return errors.New("PUBLIC_BASE_URL must use https in production")
		}
	}

	return nil
}

func validateKey(key string) error {
	if key == "" {
		return errors.New("ENCRYPTION_KEY is required")
	}
	keyBytes, err := hex.DecodeString(key)
	if err != nil {
		return errors.New("ENCRYPTION_KEY must be valid hex")
	}
	if len(keyBytes) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
	}
	return nil
}

func validateAbsoluteURL(name, value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s must be an absolute http(s) URL", name)
	}
	return nil
}

func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Query().Get("sslmode"))
}
