package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_YAMLThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
env: prod
server:
  port: "8080"
database:
  url: postgres://yaml
  max_open_conns: 50
jwt:
  secret: from-yaml
  ttl: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("PORT", "9090")
	t.Setenv("DB_MAX_IDLE_CONNS", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "postgres://yaml", cfg.Database.URL)
	assert.Equal(t, 50, cfg.Database.MaxOpenConns)
	assert.Equal(t, 3, cfg.Database.MaxIdleConns)
	assert.Equal(t, "from-yaml", cfg.JWT.Secret)
	assert.Equal(t, time.Hour, cfg.JWT.TTL)
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("JWT_TTL", "soon")
	_, err := Load()
	require.ErrorContains(t, err, "JWT_TTL")
}
