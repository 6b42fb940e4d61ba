package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "dev", c.App.Env)
	require.Equal(t, ":8080", c.Server.Addr)
	require.Equal(t, "memory", c.Cache.Kind)
	require.Equal(t, "ClientForge", c.MFA.TOTPIssuer)
	require.Equal(t, 1, c.MFA.TOTPWindow)
	require.Equal(t, 10, c.Rate.Verify.Limit)
	require.Equal(t, time.Minute, c.Rate.Verify.WindowDur(time.Minute))
}

func TestLoad_YAMLPlusEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  addr: ":9090"
  base_url: "https://auth.acme.test"
cache:
  kind: redis
  redis:
    addr: "localhost:6379"
mfa:
  totp_issuer: "Acme CRM"
rate:
  enabled: true
  verify:
    limit: 5
    window: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("CFAUTH_ADDR", ":7070") // env pisa YAML
	t.Setenv("MFA_TOTP_WINDOW", "2")

	c, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ":7070", c.Server.Addr)
	require.Equal(t, "https://auth.acme.test", c.Server.BaseURL)
	require.Equal(t, "redis", c.Cache.Kind)
	require.Equal(t, "Acme CRM", c.MFA.TOTPIssuer)
	require.Equal(t, 2, c.MFA.TOTPWindow)
	require.True(t, c.Rate.Enabled)
	require.Equal(t, 5, c.Rate.Verify.Limit)
	require.Equal(t, 30*time.Second, c.Rate.Verify.WindowDur(time.Minute))
}

func TestLoad_ProdRequiresAdminKey(t *testing.T) {
	t.Setenv("CFAUTH_ENV", "prod")
	t.Setenv("CFAUTH_ADMIN_API_KEY", "")

	_, err := Load("")
	require.Error(t, err)

	t.Setenv("CFAUTH_ADMIN_API_KEY", "super-secret")
	c, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "super-secret", c.Server.AdminAPIKey)
}
