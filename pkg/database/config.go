// Package database provides the Postgres-backed persistence layer:
// a pooled connection, idempotent migrations, and typed row access for
// every table this system owns. No other package issues SQL directly.
package database

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds pool sizing and connection parameters.
type Config struct {
	DSN string

	MinConns        int32
	MaxConns        int32
	AcquireTimeout  time.Duration
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfigFromEnv reads DATABASE_DSN and pool-tuning env vars, applying
// the pool defaults. DATABASE_DSN is a secret and must be
// present before any pool is constructed.
func LoadConfigFromEnv() (Config, error) {
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		return Config{}, fmt.Errorf("DATABASE_DSN is required")
	}

	minConns, err := parseInt32OrDefault("DB_MIN_CONNS", 1)
	if err != nil {
		return Config{}, err
	}
	maxConns, err := parseInt32OrDefault("DB_MAX_CONNS", 10)
	if err != nil {
		return Config{}, err
	}

	return Config{
		DSN:             dsn,
		MinConns:        minConns,
		MaxConns:        maxConns,
		AcquireTimeout:  5 * time.Second,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	}, nil
}

func parseInt32OrDefault(key string, def int32) (int32, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return int32(n), nil
}
