// Package scheduler runs the background maintenance jobs on fixed
// tickers: IRR validation sweeps, the fallback-controller health ping,
// and budget aggregation/alerting.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/tarsy-labs/cogmem/pkg/budget"
	"github.com/tarsy-labs/cogmem/pkg/fallback"
	"github.com/tarsy-labs/cogmem/pkg/irr"
)

// Pinger performs the minimal judge health-check request the fallback
// controller uses to test recovery.
type Pinger func(ctx context.Context) error

// Config carries the three maintenance cadences. Zero values disable the
// corresponding job.
type Config struct {
	IRRPromptVersion        string
	IRRSweepInterval        time.Duration
	FallbackHealthcheckTick time.Duration
	BudgetAggregateInterval time.Duration
}

// Scheduler owns the three independent maintenance loops and their
// lifecycle: start, cancel, drain.
type Scheduler struct {
	cfg       Config
	validator *irr.Validator
	fallbackC *fallback.Controller
	monitor   *budget.Monitor
	ping      Pinger

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Scheduler. Any of validator/fallbackC/monitor may be nil
// to disable that job regardless of its configured interval.
func New(cfg Config, validator *irr.Validator, fallbackC *fallback.Controller, ping Pinger, monitor *budget.Monitor) *Scheduler {
	return &Scheduler{cfg: cfg, validator: validator, fallbackC: fallbackC, ping: ping, monitor: monitor}
}

// Start launches every configured maintenance loop as an independent
// goroutine under ctx.
func (s *Scheduler) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	var running int
	if s.validator != nil && s.cfg.IRRSweepInterval > 0 {
		running++
	}
	if s.fallbackC != nil && s.ping != nil && s.cfg.FallbackHealthcheckTick > 0 {
		running++
	}
	if s.monitor != nil && s.cfg.BudgetAggregateInterval > 0 {
		running++
	}

	go func() {
		defer close(s.done)
		if running == 0 {
			<-ctx.Done()
			return
		}
		s.runLoops(ctx, running)
	}()

	slog.Info("scheduler started",
		"irr_sweep_interval", s.cfg.IRRSweepInterval,
		"fallback_healthcheck_interval", s.cfg.FallbackHealthcheckTick,
		"budget_aggregate_interval", s.cfg.BudgetAggregateInterval)
}

// runLoops fans out each enabled job into its own ticker goroutine and
// blocks until ctx is cancelled and every goroutine has exited.
func (s *Scheduler) runLoops(ctx context.Context, running int) {
	exited := make(chan struct{}, running)

	if s.validator != nil && s.cfg.IRRSweepInterval > 0 {
		go func() {
			s.tick(ctx, s.cfg.IRRSweepInterval, s.runIRRSweep)
			exited <- struct{}{}
		}()
	}
	if s.fallbackC != nil && s.ping != nil && s.cfg.FallbackHealthcheckTick > 0 {
		go func() {
			s.tick(ctx, s.cfg.FallbackHealthcheckTick, s.runFallbackHealthcheck)
			exited <- struct{}{}
		}()
	}
	if s.monitor != nil && s.cfg.BudgetAggregateInterval > 0 {
		go func() {
			s.tick(ctx, s.cfg.BudgetAggregateInterval, s.runBudgetAggregate)
			exited <- struct{}{}
		}()
	}

	for i := 0; i < running; i++ {
		<-exited
	}
}

// tick runs job immediately, then on every interval tick, until ctx is
// cancelled.
func (s *Scheduler) tick(ctx context.Context, interval time.Duration, job func(ctx context.Context)) {
	job(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}

// Stop signals every maintenance loop to exit and waits for them to
// finish, mirroring the process-wide graceful drain.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("scheduler stopped")
}

func (s *Scheduler) runIRRSweep(ctx context.Context) {
	report, err := s.validator.Validate(ctx, s.cfg.IRRPromptVersion)
	if err != nil {
		slog.Error("irr sweep failed", "error", err)
		return
	}
	slog.Info("irr sweep complete",
		"macro_kappa", report.Result.MacroKappa,
		"micro_kappa", report.Result.MicroKappa,
		"status", report.Result.Status)
}

func (s *Scheduler) runFallbackHealthcheck(ctx context.Context) {
	if err := s.fallbackC.HealthPing(ctx, fallback.JudgeComponent, s.ping); err != nil {
		slog.Error("fallback healthcheck failed", "error", err)
	}
}

func (s *Scheduler) runBudgetAggregate(ctx context.Context) {
	inserted, err := s.monitor.SendAlerts(ctx)
	if err != nil {
		slog.Error("budget aggregation failed", "error", err)
		return
	}
	if inserted {
		slog.Info("budget alert emitted")
	}
}
