package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
store:
  driver: mongo
  batchSize: 25
  collections:
    inventory: Stock
workflow:
  archiveRejected: true
jwt:
  secret: from-file
  expiration: 2h
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := writeConfig(t, sample)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LEDGER_MAX_RETRIES", "9")
	t.Setenv("JWT_SECRET", "")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver, "environment wins over the file")
	assert.EqualValues(t, 25, cfg.Store.BatchSize)
	assert.Equal(t, "Stock", cfg.Store.Collections["inventory"])
	assert.True(t, cfg.Workflow.ArchiveRejected)
	assert.Equal(t, 9, cfg.Ledger.MaxRetries)
	assert.Equal(t, "from-file", cfg.JWT.Secret)
	assert.Equal(t, 2*time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, 5, cfg.Workflow.MaxRetries, "default")
	assert.Equal(t, 5*time.Second, cfg.Notify.PollTimeout, "default")
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := writeConfig(t, "store:\n  driver: memory\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "..", ".env"), []byte("JWT_SECRET=from-dotenv\n"), 0o600))
	t.Setenv("JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.JWT.Secret)
}

func TestLoadConfigValidates(t *testing.T) {
	dir := writeConfig(t, "store:\n  driver: cassandra\njwt:\n  secret: s\n")
	_, err := LoadConfig(dir)
	assert.ErrorContains(t, err, "store.driver")

	dir = writeConfig(t, "store:\n  driver: memory\n")
	t.Setenv("JWT_SECRET", "")
	_, err = LoadConfig(dir)
	assert.ErrorContains(t, err, "jwt.secret")
}
