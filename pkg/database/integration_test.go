package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tarsy-labs/cogmem/pkg/models"
)

// newTestPool starts a disposable pgvector-enabled Postgres container,
// builds a Pool against it (applying every embedded migration), and
// registers cleanup. Each call starts its own container, so every test
// that calls it runs against a fresh database.
func newTestPool(t *testing.T) *Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("cogmem_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, Config{
		DSN:             connStr,
		MinConns:        1,
		MaxConns:        10,
		AcquireTimeout:  5 * time.Second,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func TestNewPoolAppliesMigrationsAndProbesLiveness(t *testing.T) {
	pool := newTestPool(t)

	health, err := pool.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, "healthy", health.Status)
}

func TestInsertRawTurnRoundTripsThroughListBySession(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	var insertedID int64
	err := pool.WithConn(ctx, func(ctx context.Context, conn Querier) error {
		var err error
		insertedID, err = InsertRawTurn(ctx, conn, models.RawTurn{
			SessionID: "session-1",
			Speaker:   "user",
			Content:   "what is autonomy?",
		})
		return err
	})
	require.NoError(t, err)
	require.NotZero(t, insertedID)

	var turns []models.RawTurn
	err = pool.WithConn(ctx, func(ctx context.Context, conn Querier) error {
		var err error
		turns, err = ListRawTurnsBySession(ctx, conn, "session-1")
		return err
	})
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.Equal(t, "what is autonomy?", turns[0].Content)
	require.Equal(t, insertedID, turns[0].ID)
}
