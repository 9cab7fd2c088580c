package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tarsy-labs/cogmem/pkg/cogmemerr"
	"github.com/tarsy-labs/cogmem/pkg/database"
)

func TestAddNodeRejectsEmptyLabelOrName(t *testing.T) {
	s := New(nil)

	_, err := s.AddNode(context.Background(), "", "alice", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, cogmemerr.ErrValidation)

	_, err = s.AddNode(context.Background(), "Person", "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, cogmemerr.ErrValidation)
}

func TestAddEdgeRejectsWeightOutOfRange(t *testing.T) {
	s := New(nil)

	_, err := s.AddEdge(context.Background(), "P", "T1", "USES", 1.5, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, cogmemerr.ErrValidation)

	_, err = s.AddEdge(context.Background(), "P", "T1", "USES", -0.1, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, cogmemerr.ErrValidation)
}

func TestAddEdgeRejectsEmptyRelation(t *testing.T) {
	s := New(nil)
	_, err := s.AddEdge(context.Background(), "P", "T1", "", 0.5, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, cogmemerr.ErrValidation)
}

func TestQueryNeighborsRejectsDepthOutOfRange(t *testing.T) {
	s := New(nil)

	_, err := s.QueryNeighbors(context.Background(), "P", "", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, cogmemerr.ErrValidation)

	_, err = s.QueryNeighbors(context.Background(), "P", "", MaxNeighborDepth+1)
	require.Error(t, err)
	assert.ErrorIs(t, err, cogmemerr.ErrValidation)
}

func TestFindPathRejectsMaxDepthOutOfRange(t *testing.T) {
	s := New(nil)

	_, err := s.FindPath(context.Background(), "A", "B", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, cogmemerr.ErrValidation)

	_, err = s.FindPath(context.Background(), "A", "B", MaxPathDepth+1)
	require.Error(t, err)
	assert.ErrorIs(t, err, cogmemerr.ErrValidation)
}

// newTestPool starts a disposable pgvector-enabled Postgres container and
// builds a Pool against it, the same shared-container-per-package shape
// as pkg/database/integration_test.go's newTestPool.
func newTestPool(t *testing.T) *database.Pool {
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

	pool, err := database.NewPool(ctx, database.Config{
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

// TestQueryNeighborsBFSExpandsByDistanceAndRelation builds the exact
// scenario (Project "P")
// -USES-> (Tech "T1") -RELATED_TO-> (Tech "T2"), asserting both the
// relation filter and the per-hop distance BFS reports.
func TestQueryNeighborsBFSExpandsByDistanceAndRelation(t *testing.T) {
	pool := newTestPool(t)
	s := New(pool)
	ctx := context.Background()

	_, err := s.AddNode(ctx, "Project", "P", nil)
	require.NoError(t, err)
	_, err = s.AddEdge(ctx, "P", "T1", "USES", 1.0, nil)
	require.NoError(t, err)
	_, err = s.AddEdge(ctx, "T1", "T2", "RELATED_TO", 0.5, nil)
	require.NoError(t, err)

	neighbors, err := s.QueryNeighbors(ctx, "P", "", 2)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)

	byName := map[string]Neighbor{}
	for _, n := range neighbors {
		byName[n.Name] = n
	}
	require.Contains(t, byName, "T1")
	require.Contains(t, byName, "T2")
	assert.Equal(t, 1, byName["T1"].Distance)
	assert.Equal(t, "USES", byName["T1"].Relation)
	assert.Equal(t, 2, byName["T2"].Distance)
	assert.Equal(t, "RELATED_TO", byName["T2"].Relation)

	filtered, err := s.QueryNeighbors(ctx, "P", "RELATED_TO", 2)
	require.NoError(t, err)
	assert.Empty(t, filtered, "T1 is only reachable via USES, so a RELATED_TO filter must exclude it and therefore T2 too")
}

// TestQueryNeighborsFindsNodeAddedUnderNonDefaultLabel guards against the
// node becoming unreachable when it was created via AddNode under a
// caller-chosen label rather than auto-created by AddEdge.
func TestQueryNeighborsFindsNodeAddedUnderNonDefaultLabel(t *testing.T) {
	pool := newTestPool(t)
	s := New(pool)
	ctx := context.Background()

	_, err := s.AddNode(ctx, "Project", "P", nil)
	require.NoError(t, err)
	_, err = s.AddNode(ctx, "Tech", "T1", nil)
	require.NoError(t, err)
	_, err = s.AddEdge(ctx, "P", "T1", "USES", 1.0, nil)
	require.NoError(t, err)

	neighbors, err := s.QueryNeighbors(ctx, "P", "", 1)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "T1", neighbors[0].Name)
	assert.Equal(t, "Tech", neighbors[0].Label, "AddEdge must resolve the existing Tech-labeled node, not duplicate it under Entity")
}

// TestFindPathReturnsShortestPathWithinBudget mirrors the neighbor-BFS
// example: find_path("P","T2", max_depth=5) must report the true
// shortest path through T1, length 2.
func TestFindPathReturnsShortestPathWithinBudget(t *testing.T) {
	pool := newTestPool(t)
	s := New(pool)
	ctx := context.Background()

	_, err := s.AddEdge(ctx, "P", "T1", "USES", 1.0, nil)
	require.NoError(t, err)
	_, err = s.AddEdge(ctx, "T1", "T2", "RELATED_TO", 0.5, nil)
	require.NoError(t, err)

	path, err := s.FindPath(ctx, "P", "T2", 5)
	require.NoError(t, err)
	require.True(t, path.Found)
	assert.Equal(t, 2, path.Length)
	assert.Equal(t, []string{"P", "T1", "T2"}, path.Nodes)
}

// TestFindPathReportsNotFoundWhenNoPathExists covers the miss case: two
// disconnected components never meet, so Found stays false rather than
// erroring.
func TestFindPathReportsNotFoundWhenNoPathExists(t *testing.T) {
	pool := newTestPool(t)
	s := New(pool)
	ctx := context.Background()

	_, err := s.AddEdge(ctx, "A", "B", "RELATES", 1.0, nil)
	require.NoError(t, err)
	_, err = s.AddNode(ctx, "Entity", "Z", nil)
	require.NoError(t, err)

	path, err := s.FindPath(ctx, "A", "Z", 5)
	require.NoError(t, err)
	assert.False(t, path.Found)
}
