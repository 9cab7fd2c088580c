package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnvRequiresDSN(t *testing.T) {
	t.Setenv("DATABASE_DSN", "")
	_, err := LoadConfigFromEnv()
	require.Error(t, err)
}

func TestLoadConfigFromEnvAppliesPoolDefaults(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://localhost/cogmem")
	t.Setenv("DB_MIN_CONNS", "")
	t.Setenv("DB_MAX_CONNS", "")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, int32(1), cfg.MinConns)
	assert.Equal(t, int32(10), cfg.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.AcquireTimeout)
}

func TestLoadConfigFromEnvOverridesPoolSizing(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://localhost/cogmem")
	t.Setenv("DB_MIN_CONNS", "2")
	t.Setenv("DB_MAX_CONNS", "20")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, int32(2), cfg.MinConns)
	assert.Equal(t, int32(20), cfg.MaxConns)
}

func TestLoadConfigFromEnvRejectsUnparseablePoolSize(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://localhost/cogmem")
	t.Setenv("DB_MIN_CONNS", "not-a-number")

	_, err := LoadConfigFromEnv()
	require.Error(t, err)
}
