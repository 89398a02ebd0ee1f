package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataProRU/Auto-transfers-accounting/internal/domain/reference"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "entry", cfg.App.Name)
	assert.Equal(t, "http://localhost:8000", cfg.Backend.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 7*time.Minute, cfg.Auth.PollInterval)
	assert.Equal(t, 3*time.Second, cfg.Form.SuccessTTL)
	assert.Equal(t, 3*time.Second, cfg.Form.ErrorTTL)
	assert.Equal(t, "sqlite", cfg.Session.Driver)
	assert.Equal(t, "entry-session.db", cfg.Session.DSN)
	assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, 45*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, "Перемещение", cfg.OperationCatalog().Name(reference.KindTransfer))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ENTRY_BACKEND_BASE_URL", "https://books.example.com")
	t.Setenv("ENTRY_BACKEND_TIMEOUT", "5s")
	t.Setenv("ENTRY_AUTH_POLL_INTERVAL", "1m")
	t.Setenv("ENTRY_CATALOG_INCOME", "Поступление")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://books.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, time.Minute, cfg.Auth.PollInterval)

	cat := cfg.OperationCatalog()
	assert.Equal(t, reference.KindIncome, cat.KindOf("Поступление"))
	assert.Equal(t, reference.KindExpense, cat.KindOf("Расход"))
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ENTRY_BACKEND_TIMEOUT", "7s")
	t.Cleanup(func() { _ = os.Unsetenv("ENTRY_BACKEND_BASE_URL") })

	env := "ENTRY_BACKEND_BASE_URL=https://dotenv.example.com\nENTRY_BACKEND_TIMEOUT=1s\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://dotenv.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, 7*time.Second, cfg.Backend.Timeout, "process env wins over .env")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[backend]
base_url = "https://api.example.com"
max_retries = 2

[session]
driver = "postgres"
dsn = "postgres://entry@localhost/entry"

[telemetry]
sampling_ratio = 0.0

[storage]
share_enabled = true
bucket = "invoices"
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, 2, cfg.Backend.MaxRetries)
	assert.Equal(t, "postgres", cfg.Session.Driver)
	assert.Equal(t, 0.0, cfg.Telemetry.SamplingRatio, "explicit zero is kept")
	assert.True(t, cfg.Storage.ShareEnabled)
	assert.Equal(t, "invoices/", cfg.Storage.Prefix)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad base url", func(c *Config) { c.Backend.BaseURL = "not a url" }},
		{"unknown session driver", func(c *Config) { c.Session.Driver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Session.Driver = "postgres"; c.Session.DSN = "" }},
		{"sampling ratio out of range", func(c *Config) { c.Telemetry.SamplingRatio = 1.5 }},
		{"share without bucket", func(c *Config) { c.Storage.ShareEnabled = true }},
		{"tls skip in production", func(c *Config) { c.App.Env = "production"; c.Backend.TLSSkipVerify = true }},
		{"negative rate limit", func(c *Config) { c.Backend.RateLimit = -1 }},
		{"duplicate catalog name", func(c *Config) { c.Catalog.Income = "Расход" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Telemetry: TelemetryConfig{SamplingRatio: 1}}
			applyDefaults(cfg)
			require.NoError(t, cfg.validate())

			tt.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}
