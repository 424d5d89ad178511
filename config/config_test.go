package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"XAM_ENV", "XAM_API_URL", "XAM_TOKEN_STORE", "XAM_STATE_DIR", "XAM_CONFIG",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "XAM_REDIS_PREFIX",
	"XAM_HTTP_TIMEOUT", "XAM_REFRESH_TIMEOUT", "XAM_SKIP_SSL_VALIDATION", "XAM_CA_CERT", "XAM_ALL_PROXY",
	"LOG_LEVEL", "LOG_FORMAT",
}

// isolate clears config variables, points XDG_CONFIG_HOME at an empty
// directory, and runs the test from a fresh working directory.
func isolate(t *testing.T) string {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o700))
	require.NoError(t, os.WriteFile(p, []byte(data), 0o600))
	return p
}

const sampleYAML = `
env: production
api_url: api.example.com/
token_store: redis
redis:
  addr: redis.internal:6380
  db: 2
http:
  timeout: 5s
  refresh_timeout: 3s
log:
  level: debug
  format: json
`

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "development", cfg.Env)
	require.False(t, cfg.Production())
	require.Equal(t, "http://localhost:3000", cfg.APIURL)
	require.Equal(t, StoreFile, cfg.TokenStore)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, "xam:token:", cfg.Redis.Prefix)
	require.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	require.Equal(t, 15*time.Second, cfg.HTTP.RefreshTimeout)
	require.False(t, cfg.HTTP.SkipSSLValidation)
	require.Equal(t, "warn", cfg.Log.Level)
	require.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "xam.yaml", sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.True(t, cfg.Production())
	require.Equal(t, "https://api.example.com", cfg.APIURL)
	require.Equal(t, StoreRedis, cfg.TokenStore)
	require.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	require.Equal(t, 2, cfg.Redis.DB)
	require.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	require.Equal(t, 3*time.Second, cfg.HTTP.RefreshTimeout)
	require.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "xam.yaml", sampleYAML)
	t.Setenv("XAM_API_URL", "http://staging:8080")
	t.Setenv("XAM_TOKEN_STORE", "memory")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://staging:8080", cfg.APIURL)
	require.Equal(t, StoreMemory, cfg.TokenStore)
	require.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	writeFile(t, dir, ".env", "XAM_API_URL=http://from-dotenv:3000\nLOG_LEVEL=debug\n")
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "http://from-dotenv:3000", cfg.APIURL)
	require.Equal(t, "error", cfg.Log.Level, "process environment wins over .env")
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "custom.yaml", "api_url: http://custom:1234\n")
	t.Setenv("XAM_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "http://custom:1234", cfg.APIURL)
}

func TestLoad_DefaultPath(t *testing.T) {
	isolate(t)
	writeFile(t, os.Getenv("XDG_CONFIG_HOME"), "xam/config.yaml", "token_store: memory\n")

	require.Equal(t, filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "xam", "config.yaml"), DefaultPath())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, StoreMemory, cfg.TokenStore)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_BrokenYAML(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "broken.yaml", "env: [unclosed\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"unknown store", "XAM_TOKEN_STORE", "sqlite", "XAM_TOKEN_STORE must be one of"},
		{"zero timeout", "XAM_HTTP_TIMEOUT", "0s", "XAM_HTTP_TIMEOUT must be positive"},
		{"negative refresh timeout", "XAM_REFRESH_TIMEOUT", "-1s", "XAM_REFRESH_TIMEOUT must be positive"},
		{"bad log format", "LOG_FORMAT", "xml", "LOG_FORMAT must be text or json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load("")
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnsureScheme(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"api.example.com", "https://api.example.com"},
		{"http://localhost:3000", "http://localhost:3000"},
		{"https://api.example.com", "https://api.example.com"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ensureScheme(tt.in))
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"localhost:3000", "https://localhost:3000"},
		{" http://localhost:3000/ ", "http://localhost:3000"},
		{"https://api.example.com/v1//", "https://api.example.com/v1"},
		{"", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, NormalizeURL(tt.in))
	}
}

func TestLoad_JarStore(t *testing.T) {
	isolate(t)
	t.Setenv("XAM_TOKEN_STORE", " JAR")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, StoreJar, cfg.TokenStore)
}
