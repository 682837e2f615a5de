package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_DefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
database:
  driver: sqlite
  name: rules
  path: /tmp/rules
engine:
  hook_timeout_ms: 250
logging:
  level: debug
  format: json
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.Database.IsSQLite())
	assert.Equal(t, "/tmp/rules/rules.db", cfg.Database.DSN())
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.HookTimeout())
	assert.Equal(t, 30*time.Second, cfg.Engine.ReloadInterval())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 7, cfg.Instrumentation.RetentionDays)
	assert.Equal(t, "changeme-secret", cfg.JWTSecret)
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644))
	t.Setenv("SERVER_PORT", "9191")
	t.Setenv("ENGINE_HOOK_TIMEOUT_MS", "10")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 10*time.Millisecond, cfg.Engine.HookTimeout())
}

func TestLoadFile_MissingExplicitFileFails(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDatabaseConfig_PostgresURL(t *testing.T) {
	d := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5433, User: "u", Password: "p", Name: "erp"}
	assert.Equal(t, "postgres://u:p@db:5433/erp?sslmode=disable", d.DSN())
	assert.False(t, d.IsSQLite())
}
