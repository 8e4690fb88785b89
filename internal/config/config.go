package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Config holds the forum configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Paths   PathsConfig   `yaml:"paths"`
	Auth    AuthConfig    `yaml:"auth"`
	Captcha CaptchaConfig `yaml:"captcha"`
	Uploads UploadsConfig `yaml:"uploads"`
}

// ServerConfig holds listener and logging settings.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`
}

// PathsConfig holds filesystem paths for data.
type PathsConfig struct {
	Data     string `yaml:"data"`
	Database string `yaml:"database"`
	Uploads  string `yaml:"uploads"`
}

// AuthConfig holds password hashing, session and login throttling settings.
type AuthConfig struct {
	BcryptCost    int           `yaml:"bcrypt_cost"`
	HashWorkers   int           `yaml:"hash_workers"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SessionSecret string        `yaml:"session_secret"`
	PurgeSchedule string        `yaml:"purge_schedule"`
	LoginRate     float64       `yaml:"login_rate"` // requests per second per IP
	LoginBurst    int           `yaml:"login_burst"`
}

// CaptchaConfig holds Turnstile settings.
type CaptchaConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Secret    string        `yaml:"secret"`
	SiteKey   string        `yaml:"site_key"`
	VerifyURL string        `yaml:"verify_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

// UploadsConfig holds image attachment limits.
type UploadsConfig struct {
	MaxBytes SizeBytes `yaml:"max_bytes"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: ":8080",
			LogLevel: "info",
		},
		Paths: PathsConfig{
			Data:     "./data",
			Database: "./data/forum.db",
			Uploads:  "./data/uploads",
		},
		Auth: AuthConfig{
			BcryptCost:    12,
			HashWorkers:   4,
			SessionTTL:    7 * 24 * time.Hour,
			PurgeSchedule: "*/15 * * * *",
			LoginRate:     0.5,
			LoginBurst:    5,
		},
		Captcha: CaptchaConfig{
			VerifyURL: "https://challenges.cloudflare.com/turnstile/v0/siteverify",
			Timeout:   5 * time.Second,
		},
		Uploads: UploadsConfig{
			MaxBytes: 5 << 20,
		},
	}
}

// Load reads a YAML config file over the defaults and then applies
// environment overrides. A missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Warn("config file not found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

// LoadDotEnv loads variables from a .env file into the process environment.
// Variables already set are left alone; a missing file is ignored.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("FORUM_HTTP_ADDR"); v != "" {
		c.Server.HTTPAddr = v
	}
	if v := getenv("FORUM_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := getenv("FORUM_SESSION_SECRET"); v != "" {
		c.Auth.SessionSecret = v
	}
	if v := getenv("USE_TURNSTILE"); v != "" {
		c.Captcha.Enabled = v == "True"
	}
	if v := getenv("TURNSTILE_SECRET"); v != "" {
		c.Captcha.Secret = v
	}
	if v := getenv("TURNSTILE_SITEKEY"); v != "" {
		c.Captcha.SiteKey = v
	}
}

// Validate reports the first setting that would prevent startup.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required")
	}
	if _, err := ParseLevel(c.Server.LogLevel); err != nil {
		return err
	}
	if c.Paths.Database == "" {
		return errors.New("paths.database is required")
	}
	if c.Paths.Uploads == "" {
		return errors.New("paths.uploads is required")
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("auth.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Auth.HashWorkers <= 0 {
		return errors.New("auth.hash_workers must be positive")
	}
	if c.Auth.SessionTTL <= 0 {
		return errors.New("auth.session_ttl must be positive")
	}
	if c.Auth.SessionSecret == "" {
		return errors.New("auth.session_secret is required (or set FORUM_SESSION_SECRET)")
	}
	if !gronx.IsValid(c.Auth.PurgeSchedule) {
		return fmt.Errorf("auth.purge_schedule is not a valid cron expression: %q", c.Auth.PurgeSchedule)
	}
	if c.Auth.LoginRate <= 0 || c.Auth.LoginBurst <= 0 {
		return errors.New("auth.login_rate and auth.login_burst must be positive")
	}
	if c.Captcha.Enabled && c.Captcha.Secret == "" {
		return errors.New("captcha.secret is required when captcha is enabled (or set TURNSTILE_SECRET)")
	}
	if c.Uploads.MaxBytes <= 0 {
		return errors.New("uploads.max_bytes must be positive")
	}
	return nil
}

// ParseLevel maps a config log level to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("server.log_level: unknown level %q", s)
}
