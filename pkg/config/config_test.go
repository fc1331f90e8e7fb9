package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultPostgresHost, cfg.Postgres.Host)
	assert.Equal(t, DefaultPostgresPort, cfg.Postgres.Port)
	assert.Equal(t, DefaultPostgresDatabase, cfg.Postgres.Database)
	assert.Equal(t, DefaultPostgresUser, cfg.Postgres.User)
	assert.Empty(t, cfg.Postgres.Password)
	assert.Equal(t, DefaultProbeMaxAttempts, cfg.Probe.MaxAttempts)
	assert.Equal(t, DefaultProbeInterval, cfg.Probe.Interval)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
postgres:
  host: db.internal
  port: 5433
  database: botdb
  user: botuser
  password: secret
probe:
  max_attempts: 5
  interval: 500ms
bootstrap:
  schema_file: /etc/psihotips/schema.sql
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 5433, cfg.Postgres.Port)
	assert.Equal(t, "secret", cfg.Postgres.Password)
	assert.Equal(t, 5, cfg.Probe.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Probe.Interval)
	assert.Equal(t, "/etc/psihotips/schema.sql", cfg.Bootstrap.SchemaFile)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
postgres:
  host: from-file
  password: file-secret
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv(EnvPostgresHost, "from-env")
	t.Setenv(EnvPostgresPort, "15432")
	t.Setenv(EnvPostgresPassword, "env-secret")
	t.Setenv(EnvProbeMaxAttempts, "3")
	t.Setenv(EnvProbeInterval, "50ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Postgres.Host)
	assert.Equal(t, 15432, cfg.Postgres.Port)
	assert.Equal(t, "env-secret", cfg.Postgres.Password)
	assert.Equal(t, 3, cfg.Probe.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Probe.Interval)
}

func TestLoadRejectsBadEnvValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric port", EnvPostgresPort, "not-a-port"},
		{"non-numeric attempts", EnvProbeMaxAttempts, "many"},
		{"bad interval", EnvProbeInterval, "2 seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
			assert.Error(t, err)
		})
	}
}

func TestPostgresValidate(t *testing.T) {
	valid := PostgresConfig{Host: "postgres", Port: 5432, Database: "botdb", User: "botuser", Password: "pw"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*PostgresConfig)
		want   string
	}{
		{"missing host", func(c *PostgresConfig) { c.Host = "" }, "host"},
		{"missing database", func(c *PostgresConfig) { c.Database = "" }, "database"},
		{"missing user", func(c *PostgresConfig) { c.User = "" }, "user"},
		{"missing password", func(c *PostgresConfig) { c.Password = "" }, "password"},
		{"bad port", func(c *PostgresConfig) { c.Port = -1 }, "port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestProbeValidate(t *testing.T) {
	assert.NoError(t, ProbeConfig{MaxAttempts: 1, Interval: time.Second}.Validate())
	assert.Error(t, ProbeConfig{MaxAttempts: 0, Interval: time.Second}.Validate())
	assert.Error(t, ProbeConfig{MaxAttempts: 5, Interval: 0}.Validate())
}
