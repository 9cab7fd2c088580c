package database

import (
	"context"
	stdsql "database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for golang-migrate
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/tarsy-labs/cogmem/pkg/cogmemerr"
)

//go:embed migrations
var migrationsFS embed.FS

// Querier is the common surface of *pgxpool.Conn and pgx.Tx. Every typed
// store method in this package accepts a Querier so the same code runs
// whether it's called standalone (WithConn) or inside a transaction
// (WithTx).
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool wraps a pgx connection pool with the scoped-acquisition and
// liveness-probe discipline, and owns migration application
// at construction time.
type Pool struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewPool builds the pool, probes it, and applies pending migrations in
// lexical order before returning. Construction fails closed: any step
// failing tears down what was already opened.
func NewPool(ctx context.Context, cfg Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: parse dsn: %v", cogmemerr.ErrValidation, err)
	}
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pgxPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: open pool: %v", cogmemerr.ErrStorage, err)
	}

	p := &Pool{pool: pgxPool, cfg: cfg}

	if err := p.probe(ctx); err != nil {
		pgxPool.Close()
		return nil, err
	}

	if err := p.migrate(); err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return p, nil
}

// probe performs the liveness round-trip with a one-shot retry on
// acquire timeout, before handing out any connection.
func (p *Pool) probe(ctx context.Context) error {
	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	err := p.pool.Ping(acquireCtx)
	if err == nil {
		return nil
	}

	// One-shot retry on the acquire path.
	acquireCtx2, cancel2 := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel2()
	if err2 := p.pool.Ping(acquireCtx2); err2 != nil {
		return fmt.Errorf("%w: liveness probe failed after retry: %v", cogmemerr.ErrPoolExhausted, err2)
	}
	return nil
}

// migrate applies embedded SQL migrations in lexical order; re-runs are
// no-ops.
func (p *Pool) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	defer sourceDriver.Close()

	// golang-migrate's postgres driver wants a database/sql handle; pgx
	// registers one as "pgx" via the stdlib import above, and the pool's
	// DSN is equally valid for a short-lived bootstrap connection here.
	bootstrapDB, err := stdsql.Open("pgx", p.pool.Config().ConnConfig.ConnString())
	if err != nil {
		return fmt.Errorf("open bootstrap connection for migrations: %w", err)
	}
	defer bootstrapDB.Close()

	driver, err := postgres.WithInstance(bootstrapDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "cogmem", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// WithConn acquires a pooled connection, guarantees release on every exit
// path, and runs fn against it.
func (p *Pool) WithConn(ctx context.Context, fn func(ctx context.Context, conn Querier) error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	conn, err := p.pool.Acquire(acquireCtx)
	if err != nil {
		return fmt.Errorf("%w: %v", cogmemerr.ErrPoolExhausted, err)
	}
	defer conn.Release()

	return fn(ctx, conn)
}

// WithTx is WithConn plus a transaction wrapped around fn: committed on
// nil return, rolled back otherwise. Used for every operation that must be
// all-or-nothing (working-memory upsert, episode insert).
func (p *Pool) WithTx(ctx context.Context, fn func(ctx context.Context, tx Querier) error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	conn, err := p.pool.Acquire(acquireCtx)
	if err != nil {
		return fmt.Errorf("%w: %v", cogmemerr.ErrPoolExhausted, err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", cogmemerr.ErrStorage, err)
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit tx: %v", cogmemerr.ErrStorage, err)
	}
	return nil
}

// Close tears down the pool, bounded by a 10-second deadline.
func (p *Pool) Close() {
	done := make(chan struct{})
	go func() {
		p.pool.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
	}
}

// Raw exposes the underlying pgxpool.Pool for health reporting only.
func (p *Pool) Raw() *pgxpool.Pool { return p.pool }
