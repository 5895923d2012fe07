package configs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxhedz/internal/domain"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.Auth.Secret = "0123456789abcdef0123"
	cfg.Authority.URL = "https://authority.example/exec"
	cfg.Signals.URL = "https://signals.example/exec"
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, AuthorityRemote, cfg.Authority.Mode)
	assert.Equal(t, 2500*time.Millisecond, cfg.Signals.StreamInterval)
	assert.Equal(t, time.Minute, cfg.Signals.StreamRecheck)
	assert.Equal(t, "XAUUSD", cfg.Signals.PreviewPair)
	assert.Equal(t, 40, cfg.Signals.PreviewCandles)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 2, cfg.Policy.MaxDevices)
	assert.Equal(t, 14, cfg.Policy.TrialDays)
}

func TestLoad_LegacyEnvNames(t *testing.T) {
	t.Setenv("GAS_AUTH_URL", "https://legacy-auth.example/exec")
	t.Setenv("GAS_SIGNAL_URL", "https://legacy-signals.example/exec")
	t.Setenv("FXHEDZ_SECRET", "a-very-long-shared-secret")
	t.Setenv("PORT", "3000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://legacy-auth.example/exec", cfg.Authority.URL)
	assert.Equal(t, "https://legacy-signals.example/exec", cfg.Signals.URL)
	assert.Equal(t, "a-very-long-shared-secret", cfg.Auth.Secret)
	assert.Equal(t, 3000, cfg.Server.Port)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ConfigFileWithExpansion(t *testing.T) {
	t.Setenv("TEST_FXHEDZ_DB", "postgres://localhost/fxhedz")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8181
  ops_port: 9191
authority:
  mode: postgres
signals:
  url: https://signals.example/exec
  stream_interval: 5s
auth:
  secret: file-secret-0123456789
database:
  url: ${TEST_FXHEDZ_DB}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, AuthorityPostgres, cfg.Authority.Mode)
	assert.Equal(t, 5*time.Second, cfg.Signals.StreamInterval)
	assert.Equal(t, "postgres://localhost/fxhedz", cfg.Database.URL)
	assert.Equal(t, 10*time.Second, cfg.Signals.PreviewTTL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"short secret", func(c *Config) { c.Auth.Secret = "short" }, domain.ErrConfigMissing},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, domain.ErrConfigInvalid},
		{"ops port clash", func(c *Config) { c.Server.OpsPort = c.Server.Port }, domain.ErrConfigInvalid},
		{"remote without url", func(c *Config) { c.Authority.URL = "" }, domain.ErrConfigMissing},
		{"postgres without dsn", func(c *Config) { c.Authority.Mode = AuthorityPostgres }, domain.ErrConfigMissing},
		{"memory mode", func(c *Config) { c.Authority.Mode = AuthorityMemory; c.Authority.URL = "" }, nil},
		{"unknown mode", func(c *Config) { c.Authority.Mode = "ldap" }, domain.ErrConfigInvalid},
		{"no signals url", func(c *Config) { c.Signals.URL = "" }, domain.ErrConfigMissing},
		{"refresh shorter than access", func(c *Config) { c.Auth.RefreshTTL = time.Minute }, domain.ErrConfigInvalid},
		{"zero devices", func(c *Config) { c.Policy.MaxDevices = 0 }, domain.ErrConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
