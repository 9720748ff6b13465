package config

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Nil(t, cfg.Server.TLS)
}

func TestLoad_File(t *testing.T) {
	t.Setenv("TOOLGATE_TEST_OTLP", "collector:4317")
	path := writeFile(t, "toolgate.yaml", `
server:
  address: 127.0.0.1:9000
  shutdown_timeout: 5s
registry_path: /etc/toolgate/registry.yaml
watch_registry: true
secrets:
  dotenv_file: /etc/toolgate/.env
  service_token_key: PLATFORM_TOKEN
audit:
  sqlite_path: /var/lib/toolgate/audit.db
telemetry:
  endpoint: ${TOOLGATE_TEST_OTLP}
  insecure: true
  sample_ratio: 0.25
logging:
  level: DEBUG
  format: text
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/etc/toolgate/registry.yaml", cfg.RegistryPath)
	assert.True(t, cfg.WatchRegistry)
	assert.Equal(t, "/etc/toolgate/.env", cfg.Secrets.DotenvFile)
	assert.Equal(t, "PLATFORM_TOKEN", cfg.Secrets.ServiceTokenKey)
	assert.Equal(t, "/var/lib/toolgate/audit.db", cfg.Audit.SQLitePath)
	assert.Equal(t, "collector:4317", cfg.Telemetry.Endpoint)
	assert.True(t, cfg.Telemetry.Insecure)
	require.NotNil(t, cfg.Telemetry.SampleRatio)
	assert.Equal(t, 0.25, *cfg.Telemetry.SampleRatio)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("TOOLGATE_ADDR", ":7000")
	t.Setenv("TOOLGATE_REGISTRY", "/tmp/registry.yaml")
	t.Setenv("TOOLGATE_WATCH_REGISTRY", "true")
	t.Setenv("TOOLGATE_AUDIT_SQLITE", "/tmp/audit.db")
	t.Setenv("TOOLGATE_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Address)
	assert.Equal(t, "/tmp/registry.yaml", cfg.RegistryPath)
	assert.True(t, cfg.WatchRegistry)
	assert.Equal(t, "/tmp/audit.db", cfg.Audit.SQLitePath)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad level", "logging:\n  level: loud\n", "invalid log level"},
		{"bad format", "logging:\n  format: xml\n", "invalid log format"},
		{"bad ratio", "telemetry:\n  sample_ratio: 2\n", "sample_ratio"},
		{"tls without cert", "server:\n  tls:\n    enabled: true\n", "cert_file is required"},
		{"bad yaml", "server: [\n", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTLSConfig(t *testing.T) {
	cert := writeFile(t, "cert.pem", "cert")
	key := writeFile(t, "key.pem", "key")

	c := &TLSConfig{Enabled: true, CertFile: cert, KeyFile: key, MinVersion: "1.3"}
	require.NoError(t, c.Validate())
	tlsCfg, err := c.ServerTLS()
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS13), tlsCfg.MinVersion)

	c.MinVersion = "1.0"
	assert.Error(t, c.Validate())

	disabled := &TLSConfig{}
	assert.NoError(t, disabled.Validate())

	missing := &TLSConfig{Enabled: true, CertFile: "/nope/cert.pem", KeyFile: key}
	assert.Error(t, missing.Validate())
}
