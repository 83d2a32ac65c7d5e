package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
directory:
  endpoint: https://tenant.example.com
  clientId: m2m
  clientSecret: secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":3001", cfg.Service.Address)
	assert.Equal(t, 300, cfg.Cache.TTLSeconds)
	assert.Equal(t, 300*time.Second, cfg.CacheTTL())
	assert.Equal(t, 15*time.Second, cfg.DirectoryTimeout())
	assert.Equal(t, 4, cfg.ScanLimit())
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
service:
  address: ":8080"
  logLevel: debug
directory:
  endpoint: https://tenant.example.com
  timeoutSeconds: 5
cache:
  ttlSeconds: 60
access:
  scanLimit: 8
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Service.Address)
	assert.Equal(t, 5*time.Second, cfg.DirectoryTimeout())
	assert.Equal(t, 60*time.Second, cfg.CacheTTL())
	assert.Equal(t, 8, cfg.ScanLimit())
}

func TestLoadRequiresDirectoryEndpoint(t *testing.T) {
	path := writeConfig(t, `
service:
  address: ":8080"
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestClientSecretFromEnvironment(t *testing.T) {
	t.Setenv(ClientSecretEnvKey, "env-secret")

	path := writeConfig(t, `
directory:
  endpoint: https://tenant.example.com
  clientId: m2m
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Directory.ClientSecret)
}

func TestStringRedactsSecret(t *testing.T) {
	cfg := NewDefault()
	cfg.Directory.Endpoint = "https://tenant.example.com"
	cfg.Directory.ClientSecret = "super-secret"

	rendered := cfg.String()
	assert.NotContains(t, rendered, "super-secret")
	assert.Contains(t, rendered, "[redacted]")
}

func TestLoadOrGenerateWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	// Generated defaults carry no directory endpoint, so validation fails,
	// but the file must exist afterwards for the operator to fill in.
	_, err := LoadOrGenerate(path)
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}
