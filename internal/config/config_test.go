package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
storage:
  driver: memory
jwt:
  secret: session-secret
tokens:
  signing_secret: file-secret
  reset_ttl: 12h
database:
  host: db.internal
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	dir := writeConfig(t, testYAML)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 12*time.Hour, cfg.Tokens.ResetTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Tokens.ApprovalTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Tokens.InvitationTTL)
	assert.Equal(t, 8, cfg.Security.MinPasswordLength)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	dir := writeConfig(t, testYAML)
	t.Setenv("CAREPORTAL_TOKENS_SIGNING_SECRET", "env-secret")
	t.Setenv("CAREPORTAL_DATABASE_PASSWORD", "s3cret")
	t.Setenv("CAREPORTAL_RATE_LIMIT_BURST", "9")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Tokens.SigningSecret)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, 9, cfg.RateLimit.Burst)
}

func TestLoadConfig_MissingSecret(t *testing.T) {
	dir := writeConfig(t, "storage:\n  driver: memory\n")

	_, err := LoadConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tokens.signing_secret is required")
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := &Config{
		Storage:  StorageConfig{Driver: "mongo"},
		JWT:      JWTConfig{Secret: "x"},
		Tokens:   TokenConfig{SigningSecret: "y", ApprovalTTL: time.Hour, ResetTTL: time.Hour, InvitationTTL: time.Hour},
		Security: SecurityConfig{MinPasswordLength: 8},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.driver")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=n sslmode=disable", c.DSN())
}
