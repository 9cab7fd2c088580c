// Package budget implements the monthly cost monitor: aggregation,
// linear projection, threshold/exceedance status, and per-day-deduplicated
// alerting.
package budget

import (
	"context"
	"time"

	"github.com/tarsy-labs/cogmem/pkg/database"
	"github.com/tarsy-labs/cogmem/pkg/models"
)

// DefaultAlertThresholdPct is the warning-band fraction of the monthly
// limit.
const DefaultAlertThresholdPct = 0.8

// Status is the outcome of comparing a cost projection against the
// configured monthly limit, reusing the persisted alert-type
// vocabulary (models.BudgetAlertType) since every status also doubles
// as the alert_type written to budget_alerts.
type Status = models.BudgetAlertType

const (
	StatusUnder    = models.BudgetAlertUnder
	StatusAlert    = models.BudgetAlertWarning
	StatusExceeded = models.BudgetAlertExceeded
)

// Clock returns the current time; overridable in tests. Production code
// wires time.Now.
type Clock func() time.Time

// Monitor is the budget service.
type Monitor struct {
	pool            *database.Pool
	monthlyLimitUSD float64
	alertThreshold  float64
	now             Clock
}

// New builds a Monitor. alertThresholdPct <= 0 uses DefaultAlertThresholdPct.
func New(pool *database.Pool, monthlyLimitUSD, alertThresholdPct float64, now Clock) *Monitor {
	if alertThresholdPct <= 0 {
		alertThresholdPct = DefaultAlertThresholdPct
	}
	if now == nil {
		now = time.Now
	}
	return &Monitor{pool: pool, monthlyLimitUSD: monthlyLimitUSD, alertThreshold: alertThresholdPct, now: now}
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// MonthlyTotal sums estimated cost over the current calendar month.
func (m *Monitor) MonthlyTotal(ctx context.Context) (float64, error) {
	var total float64
	err := m.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		var err error
		total, err = database.SumCostSince(ctx, conn, startOfMonth(m.now()), "")
		return err
	})
	return total, err
}

// MonthlyByAPI sums estimated cost over the current calendar month for
// one API.
func (m *Monitor) MonthlyByAPI(ctx context.Context, apiName string) (float64, error) {
	var total float64
	err := m.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		var err error
		total, err = database.SumCostSince(ctx, conn, startOfMonth(m.now()), apiName)
		return err
	})
	return total, err
}

// Project estimates end-of-month cost as current-month-to-date spend
// plus the average daily rate so far times the remaining days. Early-month projections carry high variance by
// construction.
func (m *Monitor) Project(ctx context.Context) (float64, error) {
	total, err := m.MonthlyTotal(ctx)
	if err != nil {
		return 0, err
	}

	now := m.now()
	dayOfMonth := now.Day()
	daysInMonth := daysInMonth(now)
	daysRemaining := daysInMonth - dayOfMonth

	avgDaily := total / float64(dayOfMonth)
	return total + avgDaily*float64(daysRemaining), nil
}

func daysInMonth(t time.Time) int {
	firstOfNextMonth := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	lastOfThisMonth := firstOfNextMonth.AddDate(0, 0, -1)
	return lastOfThisMonth.Day()
}

// Check compares Project() against the configured monthly limit and
// returns the resulting status band.
func (m *Monitor) Check(ctx context.Context) (Status, float64, error) {
	projected, err := m.Project(ctx)
	if err != nil {
		return "", 0, err
	}
	return CheckStatus(projected, m.monthlyLimitUSD, m.alertThreshold), projected, nil
}

// CheckStatus is the pure status-banding decision, separated from Check
// so it can be unit-tested without a database.
func CheckStatus(projected, limit, alertThresholdPct float64) Status {
	if limit <= 0 {
		return StatusUnder
	}
	switch {
	case projected >= limit:
		return StatusExceeded
	case projected >= alertThresholdPct*limit:
		return StatusAlert
	default:
		return StatusUnder
	}
}

// SendAlerts persists an alert of the current status, if and only if no
// alert of the same (date, alert_type) already exists — the per-day
// dedup rule. Returns whether a new row was inserted.
func (m *Monitor) SendAlerts(ctx context.Context) (bool, error) {
	status, projected, err := m.Check(ctx)
	if err != nil {
		return false, err
	}

	row := models.BudgetAlertRow{
		AlertDate:    startOfDay(m.now()),
		AlertType:    models.BudgetAlertType(status),
		ProjectedUSD: projected,
		ThresholdUSD: m.monthlyLimitUSD,
	}

	var inserted bool
	err = m.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		var err error
		inserted, err = database.InsertBudgetAlert(ctx, conn, row)
		return err
	})
	return inserted, err
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
