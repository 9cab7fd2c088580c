// Package fallback implements the process-wide fallback controller:
// activation on judge terminal failure, local-evaluator dispatch
// while active, and health-ping recovery.
package fallback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/tarsy-labs/cogmem/pkg/cogmemerr"
	"github.com/tarsy-labs/cogmem/pkg/database"
	"github.com/tarsy-labs/cogmem/pkg/models"
	"github.com/tarsy-labs/cogmem/pkg/redact"
)

// JudgeComponent is the fallback-status component name for the judge
// path — the only path fallback is defined for.
const JudgeComponent = "haiku_evaluation"

// flag is a per-component lock-free activation bit plus the serialized
// guard that prevents a concurrent activate/recover race from writing
// two transition rows for the same edge.
type flag struct {
	active atomic.Bool
	mu     sync.Mutex
}

// Controller holds the only piece of process-wide mutable state besides
// the connection pool. Reads of IsActive are lock-free; activation and
// recovery transitions are serialized per component.
type Controller struct {
	pool  *database.Pool
	flags sync.Map // component string -> *flag
}

// New builds a Controller over a shared connection pool. Call Load to
// restore state persisted by a previous process.
func New(pool *database.Pool) *Controller {
	return &Controller{pool: pool}
}

func (c *Controller) flagFor(component string) *flag {
	v, _ := c.flags.LoadOrStore(component, &flag{})
	return v.(*flag)
}

// Load restores a component's activation state from the most recent
// fallback_status_log row, so a restarted process doesn't forget an
// active fallback.
func (c *Controller) Load(ctx context.Context, component string) error {
	var row models.FallbackStatusRow
	err := c.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		var err error
		row, err = database.LatestFallbackStatus(ctx, conn, component)
		return err
	})
	if err != nil {
		return err
	}
	c.flagFor(component).active.Store(row.Status == models.FallbackActive)
	return nil
}

// IsActive reports whether component is currently running in fallback
// mode — a lock-free read.
func (c *Controller) IsActive(component string) bool {
	return c.flagFor(component).active.Load()
}

// ObserveError inspects err for the judge's terminal-failure sentinel
// and activates fallback on first observation — an explicit state
// transition driven by a sentinel error kind, never a blanket catch of
// whatever the judge path throws. Returns true if this call caused an
// activation.
func (c *Controller) ObserveError(ctx context.Context, component string, err error) (bool, error) {
	if !errors.Is(err, cogmemerr.ErrJudgeUnavailable) {
		return false, nil
	}
	return c.Activate(ctx, component, err.Error())
}

// Activate transitions component to active and persists a status=active
// row, unless it is already active (idempotent). Concurrent activations
// are serialized so only one row is ever written per activation edge.
// The reason is redacted before persistence: a terminal judge error can
// carry the request URL or an Authorization header in its text.
func (c *Controller) Activate(ctx context.Context, component, reason string) (bool, error) {
	f := c.flagFor(component)
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.active.Load() {
		return false, nil
	}
	err := c.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		return database.InsertFallbackStatusRow(ctx, conn, models.FallbackStatusRow{
			Component: component,
			Status:    models.FallbackActive,
			Reason:    redact.String(reason),
		})
	})
	if err != nil {
		return false, err
	}
	f.active.Store(true)
	return true, nil
}

// HealthPing runs ping only while component is active; a successful
// ping deactivates fallback and persists a status=recovered row. A
// failed ping leaves the flag untouched — ping failures never re-trigger
// activation, breaking the feedback loop.
func (c *Controller) HealthPing(ctx context.Context, component string, ping func(ctx context.Context) error) error {
	f := c.flagFor(component)
	if !f.active.Load() {
		return nil
	}

	if err := ping(ctx); err != nil {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active.Load() {
		return nil
	}
	err := c.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		return database.InsertFallbackStatusRow(ctx, conn, models.FallbackStatusRow{
			Component: component,
			Status:    models.FallbackRecovered,
			Reason:    "healthcheck succeeded",
		})
	})
	if err != nil {
		return err
	}
	f.active.Store(false)
	return nil
}
