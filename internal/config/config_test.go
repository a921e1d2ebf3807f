package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// TestDefaults tests the configuration without a file
func TestDefaults(t *testing.T) {
	cfg, err := build("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Concurrency.BatchWorkers)
	assert.Equal(t, 1024, cfg.Concurrency.BatchQueueSize)
	assert.Equal(t, time.Duration(0), cfg.Batch.RunTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

// TestLoadFromFile tests that file values override defaults
func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
store:
  driver: postgres
  postgres:
    dsn: postgres://u:p@db:5432/items
    max_connections: 4
concurrency:
  batch_workers: 3
batch:
  run_timeout: 45s
`)

	cfg, err := build(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 4, cfg.Store.Postgres.MaxConnections)
	assert.Equal(t, 3, cfg.Concurrency.BatchWorkers)
	assert.Equal(t, 45*time.Second, cfg.Batch.RunTimeout)
}

// TestEnvOverrides tests APP_* environment variables
func TestEnvOverrides(t *testing.T) {
	t.Setenv("APP_CONCURRENCY_BATCH_WORKERS", "7")
	t.Setenv("APP_STORE_DRIVER", "reindexer")

	cfg, err := build("")
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Concurrency.BatchWorkers)
	assert.Equal(t, DriverReindexer, cfg.Store.Driver)
}

// TestValidation tests that invalid values are rejected
func TestValidation(t *testing.T) {
	cases := map[string]string{
		"zero workers":   "concurrency:\n  batch_workers: 0\n",
		"unknown driver": "store:\n  driver: mongo\n",
		"bad port":       "server:\n  port: 70000\n",
		"negative ttl":   "cache:\n  ttl: -1\n",
		"negative run":   "batch:\n  run_timeout: -1s\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := build(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

// TestReloadKeepsPreviousOnError tests that a broken reload does not replace the active config
func TestReloadKeepsPreviousOnError(t *testing.T) {
	require.NoError(t, Load(writeConfig(t, "server:\n  port: 9191\n")))
	assert.Equal(t, 9191, Get().Server.Port)

	assert.Error(t, Reload(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Equal(t, 9191, Get().Server.Port)

	require.NoError(t, Reload(writeConfig(t, "server:\n  port: 9292\n")))
	assert.Equal(t, 9292, Get().Server.Port)
}
