// cogmemd is the cognitive memory engine's stdio MCP server: a single
// process exposing L0/L2/working/episode memory, hybrid search, the
// knowledge graph, and the judge/IRR/fallback/budget maintenance loops
// over JSON-RPC on stdin/stdout.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tarsy-labs/cogmem/pkg/budget"
	"github.com/tarsy-labs/cogmem/pkg/cache"
	"github.com/tarsy-labs/cogmem/pkg/config"
	"github.com/tarsy-labs/cogmem/pkg/database"
	"github.com/tarsy-labs/cogmem/pkg/embedding"
	"github.com/tarsy-labs/cogmem/pkg/evaluation"
	"github.com/tarsy-labs/cogmem/pkg/fallback"
	"github.com/tarsy-labs/cogmem/pkg/golden"
	"github.com/tarsy-labs/cogmem/pkg/graph"
	"github.com/tarsy-labs/cogmem/pkg/httpapi"
	"github.com/tarsy-labs/cogmem/pkg/irr"
	"github.com/tarsy-labs/cogmem/pkg/judge"
	"github.com/tarsy-labs/cogmem/pkg/memory"
	"github.com/tarsy-labs/cogmem/pkg/models"
	"github.com/tarsy-labs/cogmem/pkg/protocol"
	"github.com/tarsy-labs/cogmem/pkg/retry"
	"github.com/tarsy-labs/cogmem/pkg/scheduler"
	"github.com/tarsy-labs/cogmem/pkg/search"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	// Secrets must be loaded before any pool or client is constructed.
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load .env file, continuing with process environment", "path", envPath, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configDir); err != nil {
		slog.Error("cogmemd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configDir string) error {
	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return err
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	pool, err := database.NewPool(ctx, dbCfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	slog.Info("connected to database")

	retryCfg := retry.Config{
		MaxAttempts:     cfg.RetryMaxAttempts,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		JitterPct:       cfg.RetryJitterPct,
	}
	recordCost := func(ctx context.Context, apiName string, costUSD float64) error {
		return pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
			return database.InsertCostRow(ctx, conn, models.CostRow{APIName: apiName, CostUSD: costUSD})
		})
	}
	recordRetry := func(ctx context.Context, row models.RetryRow) error {
		return pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
			return database.InsertRetryRow(ctx, conn, row)
		})
	}

	embedder := embedding.NewClient(
		os.Getenv("EMBEDDING_API_BASE_URL"), os.Getenv("EMBEDDING_API_KEY"),
		retryCfg, recordCost, recordRetry,
	)
	judgeClient := judge.NewClient(
		os.Getenv("JUDGE_API_BASE_URL"), os.Getenv("JUDGE_API_KEY"), cfg.JudgeModelID, cfg.JudgeMaxTokens,
		retryCfg, recordCost, recordRetry,
	)
	localEvaluator := judge.NewLocalEvaluator()

	tiers := memory.New(pool, embedder,
		memory.WithCapacity(cfg.WorkingMemoryCapacity),
		memory.WithCriticalThreshold(cfg.WorkingCriticalThreshold))

	var searchOpts []search.Option
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		resultCache, err := cache.New(ctx, redisURL, "cogmem:search", 0)
		if err != nil {
			slog.Warn("could not connect to redis, running without search cache", "error", err)
		} else {
			defer resultCache.Close()
			searchOpts = append(searchOpts, search.WithCache(resultCache))
			slog.Info("hybrid search result cache enabled")
		}
	}
	searcher := search.New(pool, embedder, cfg.RRFK, searchOpts...)
	expander := search.NewExpander(searcher, embedder)
	graphStore := graph.New(pool,
		graph.WithDepthLimits(cfg.GraphMaxBFSDepth, cfg.GraphMaxPathDepth),
		graph.WithPathTimeout(cfg.GraphPathSearchTimeout))
	evalLoop := evaluation.New(pool, tiers, cfg.RewardThreshold, cfg.JudgePromptVersion)
	fallbackCtl := fallback.New(pool)
	if err := fallbackCtl.Load(ctx, fallback.JudgeComponent); err != nil {
		slog.Warn("failed to restore fallback state, assuming inactive", "error", err)
	}
	irrValidator := irr.New(pool)
	budgetMonitor := budget.New(pool, cfg.BudgetMonthlyLimitUSD, cfg.BudgetWarningFraction, time.Now)
	goldenEval := golden.New(pool, searcher)

	svc := protocol.New(protocol.Deps{
		Tiers: tiers, Searcher: searcher, Expander: expander, GraphStore: graphStore, Pool: pool,
		Judge1: judgeClient, Judge2: localEvaluator,
		EvalLoop: evalLoop, EvalJudge1: judgeClient, EvalJudge2: localEvaluator,
		FallbackCtl: fallbackCtl, GoldenEval: goldenEval, PromptVersion: cfg.JudgePromptVersion,
	})

	sched := scheduler.New(scheduler.Config{
		IRRPromptVersion:        cfg.JudgePromptVersion,
		IRRSweepInterval:        cfg.IRRSweepInterval,
		FallbackHealthcheckTick: cfg.FallbackHealthcheckInterval,
		BudgetAggregateInterval: cfg.BudgetAggregateInterval,
	}, irrValidator, fallbackCtl, judgeHealthPing(judgeClient), budgetMonitor)
	sched.Start(ctx)
	defer sched.Stop()

	if httpAddr := os.Getenv("HTTP_ADDR"); httpAddr != "" {
		healthServer := httpapi.New(pool, fallbackCtl, budgetMonitor)
		go func() {
			if err := healthServer.Start(httpAddr); err != nil {
				slog.Error("health http server exited", "error", err)
			}
		}()
		slog.Info("health http surface enabled", "addr", httpAddr)
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownDeadline)
			defer cancel()
			_ = healthServer.Shutdown(shutdownCtx)
		}()
	}

	server := protocol.NewServer(svc)
	return protocol.Run(ctx, server, cfg.ShutdownDeadline)
}

// judgeHealthPing adapts the judge client's Evaluate call into the
// minimal liveness probe the fallback controller's recovery check uses.
func judgeHealthPing(j *judge.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := j.Evaluate(ctx, "healthcheck", nil, "healthcheck")
		return err
	}
}
