// ABOUTME: Configuration loader for the xam client
// ABOUTME: Reads .env, an optional YAML file, and environment variables with defaults

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Token store backends selectable from configuration.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreJar    = "jar"
)

// Config holds every setting the CLI needs. Sources, lowest precedence
// first: defaults, YAML file, .env, process environment. Command-line
// flags are applied on top by the caller.
type Config struct {
	Env        string      `yaml:"env" env:"XAM_ENV" env-default:"development"`
	APIURL     string      `yaml:"api_url" env:"XAM_API_URL" env-default:"http://localhost:3000"`
	TokenStore string      `yaml:"token_store" env:"XAM_TOKEN_STORE" env-default:"file"`
	StateDir   string      `yaml:"state_dir" env:"XAM_STATE_DIR"`
	Redis      RedisConfig `yaml:"redis"`
	HTTP       HTTPConfig  `yaml:"http"`
	Log        LogConfig   `yaml:"log"`
}

// RedisConfig is used when TokenStore is "redis".
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Prefix   string `yaml:"prefix" env:"XAM_REDIS_PREFIX" env-default:"xam:token:"`
}

// HTTPConfig controls the transport to the API.
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout" env:"XAM_HTTP_TIMEOUT" env-default:"30s"`
	RefreshTimeout    time.Duration `yaml:"refresh_timeout" env:"XAM_REFRESH_TIMEOUT" env-default:"15s"`
	SkipSSLValidation bool          `yaml:"skip_ssl_validation" env:"XAM_SKIP_SSL_VALIDATION" env-default:"false"`
	CACert            string        `yaml:"ca_cert" env:"XAM_CA_CERT"`
	AllProxy          string        `yaml:"all_proxy" env:"XAM_ALL_PROXY"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"warn"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// Production reports whether cookies must be marked Secure.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// DefaultPath returns $XDG_CONFIG_HOME/xam/config.yaml, falling back to ~/.config.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "xam", "config.yaml")
}

// Load reads configuration. The YAML file is taken from path, then
// XAM_CONFIG, then DefaultPath if it exists; without one only the
// environment is read. A .env file in the working directory is loaded
// first without overriding variables already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	if path == "" {
		path = os.Getenv("XAM_CONFIG")
	}
	if path == "" {
		if p := DefaultPath(); p != "" {
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}

	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.APIURL = NormalizeURL(cfg.APIURL)
	cfg.TokenStore = NormalizeStore(cfg.TokenStore)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that have no usable fallback.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("XAM_API_URL is required")
	}
	switch c.TokenStore {
	case StoreMemory, StoreFile, StoreRedis, StoreJar:
	default:
		return fmt.Errorf("XAM_TOKEN_STORE must be one of %s, %s, %s, %s, got %q", StoreMemory, StoreFile, StoreRedis, StoreJar, c.TokenStore)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("XAM_HTTP_TIMEOUT must be positive, got %s", c.HTTP.Timeout)
	}
	if c.HTTP.RefreshTimeout <= 0 {
		return fmt.Errorf("XAM_REFRESH_TIMEOUT must be positive, got %s", c.HTTP.RefreshTimeout)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// NormalizeURL trims whitespace and trailing slashes and defaults the scheme to https.
func NormalizeURL(raw string) string {
	return ensureScheme(strings.TrimRight(strings.TrimSpace(raw), "/"))
}

// NormalizeStore lower-cases a token store name.
func NormalizeStore(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ensureScheme adds https:// prefix if the URL has no scheme
func ensureScheme(url string) string {
	if url == "" {
		return url
	}
	if !strings.Contains(url, "://") {
		return "https://" + url
	}
	return url
}
