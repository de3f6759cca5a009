package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	content := `env: dev
db:
  db_url: postgres://u:p@db:5432/auth?sslmode=disable
  schema: accounts
http_server:
  address: ":8080"
  read_timeout: 5s
auth:
  jwt_secret: test-secret
  token_exp: 30m
`

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := MustLoadConfig(path)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "postgres://u:p@db:5432/auth?sslmode=disable", cfg.DbURL)
	assert.Equal(t, "accounts", cfg.Schema)
	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.IdleTimeout)
	assert.Equal(t, "test-secret", cfg.Auth.Secret)
	assert.Equal(t, "30m", cfg.Auth.TokenExp)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
}

func TestMustLoadConfig_MissingFile(t *testing.T) {
	assert.Panics(t, func() {
		MustLoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	})
}
