package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/petauth/pkg/cryptox"
	"github.com/aussiebroadwan/petauth/pkg/httpx"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
AUTH_ISSUER: pets
AUTH_AUDIENCE: [pets-api]
AUTH_ACCESS_TTL: 5m
AUTH_STORE_DRIVER: memory
AUTH_REVOCATION_FAILURE_POLICY: open
principals:
  - kind: admin
    id: root
    roles: [superadmin]
  - kind: user
    id: alice
    active: false
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	require.Equal(t, "petauth", cfg.Issuer)
	require.Equal(t, cryptox.AlgRS256, cfg.Algorithm)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	require.Equal(t, DriverSQLite, cfg.StoreDriver)
	require.Equal(t, 8080, cfg.Port)
	require.True(t, cfg.RefreshCookieSecure)

	policy, err := cfg.FailurePolicy()
	require.NoError(t, err)
	require.Equal(t, httpx.FailClosed, policy)
	require.Equal(t, httpx.StrictLimit.RequestsPerWindow, cfg.RateLimit().RequestsPerWindow)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig), nil)
	require.NoError(t, err)

	require.Equal(t, "pets", cfg.Issuer)
	require.Equal(t, []string{"pets-api"}, cfg.Audience)
	require.Equal(t, 5*time.Minute, cfg.AccessTTL)
	require.Equal(t, DriverMemory, cfg.StoreDriver)

	require.Len(t, cfg.Principals, 2)
	require.Equal(t, "root", cfg.Principals[0].ID)
	require.Equal(t, []string{"superadmin"}, cfg.Principals[0].Roles)
	require.Nil(t, cfg.Principals[0].Active)
	require.NotNil(t, cfg.Principals[1].Active)
	require.False(t, *cfg.Principals[1].Active)

	policy, err := cfg.FailurePolicy()
	require.NoError(t, err)
	require.Equal(t, httpx.FailOpen, policy)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("AUTH_ISSUER", "from-env")
	t.Setenv("AUTH_ACCESS_TTL", "10m")
	t.Setenv("PORT", "7000")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(flags)
	require.NoError(t, flags.Parse([]string{"--port=9090"}))

	cfg, err := LoadConfig(path, flags)
	require.NoError(t, err)

	require.Equal(t, "from-env", cfg.Issuer, "env beats the file")
	require.Equal(t, 10*time.Minute, cfg.AccessTTL)
	require.Equal(t, 9090, cfg.Port, "flags beat env")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg, err := LoadConfig("", nil)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty issuer", func(c *Config) { c.Issuer = " " }, "AUTH_ISSUER"},
		{"access ttl too short", func(c *Config) { c.AccessTTL = 30 * time.Second }, "AUTH_ACCESS_TTL"},
		{"access ttl too long", func(c *Config) { c.AccessTTL = 48 * time.Hour; c.RefreshTTL = 72 * time.Hour }, "AUTH_ACCESS_TTL"},
		{"refresh shorter than access", func(c *Config) { c.RefreshTTL = time.Minute }, "AUTH_REFRESH_TTL"},
		{"unknown algorithm", func(c *Config) { c.Algorithm = "HS256" }, "AUTH_ALGORITHM"},
		{"unknown driver", func(c *Config) { c.StoreDriver = "mongo" }, "AUTH_STORE_DRIVER"},
		{"postgres without url", func(c *Config) { c.StoreDriver = DriverPostgres }, "AUTH_DATABASE_URL"},
		{"bad policy", func(c *Config) { c.RevocationFailurePolicy = "sometimes" }, "AUTH_REVOCATION_FAILURE_POLICY"},
		{"bad port", func(c *Config) { c.Port = 0 }, "PORT"},
		{"user with roles", func(c *Config) {
			c.Principals = append(c.Principals, directoryEntry("user", "bob", "admin"))
		}, "principals"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}

	t.Run("errors are aggregated", func(t *testing.T) {
		cfg := valid()
		cfg.Issuer = ""
		cfg.Port = -1
		err := cfg.Validate()
		require.ErrorContains(t, err, "AUTH_ISSUER")
		require.ErrorContains(t, err, "PORT")
	})
}
