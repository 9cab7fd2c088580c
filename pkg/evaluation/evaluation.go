// Package evaluation implements the evaluation loop: score an
// answer via the judge, persist the evaluation row, and on low reward
// generate a reflection and store it as an episode.
package evaluation

import (
	"context"

	"github.com/tarsy-labs/cogmem/pkg/cogmemerr"
	"github.com/tarsy-labs/cogmem/pkg/database"
	"github.com/tarsy-labs/cogmem/pkg/judge"
	"github.com/tarsy-labs/cogmem/pkg/memory"
	"github.com/tarsy-labs/cogmem/pkg/models"
)

// DefaultRewardThreshold is the config-driven reflection trigger.
const DefaultRewardThreshold = 0.3

// Judge is the subset of pkg/judge's Client this package needs. Both the
// real client and the local fallback evaluator satisfy it.
type Judge interface {
	Evaluate(ctx context.Context, query string, contextDocs []string, answer string) (judge.EvalResult, error)
	Reflect(ctx context.Context, query, answer string, reward float64, reasoning string) (string, error)
}

// Result is the evaluation loop's return shape.
type Result struct {
	Reward              float64
	Reasoning           string
	ReflectionTriggered bool
	Degraded            bool
	EpisodeID           int64 // 0 if no episode was stored
}

// Loop is the evaluation service, wired to a judge (real or
// fallback-selected by the caller), the memory tiers (for episode
// storage), and the persistence pool (for the evaluation row).
type Loop struct {
	pool            *database.Pool
	tiers           *memory.Tiers
	rewardThreshold float64
	promptVersion   string
}

// New builds a Loop. rewardThreshold < -1 uses DefaultRewardThreshold.
func New(pool *database.Pool, tiers *memory.Tiers, rewardThreshold float64, promptVersion string) *Loop {
	if rewardThreshold < -1 {
		rewardThreshold = DefaultRewardThreshold
	}
	return &Loop{pool: pool, tiers: tiers, rewardThreshold: rewardThreshold, promptVersion: promptVersion}
}

// ShouldReflect is the reflection-trigger decision exposed as a pure
// function so it can be unit-tested and threshold-tuned independently
// of the rest of the loop. Strict less-than: a reward exactly
// equal to the threshold does not trigger.
func ShouldReflect(reward, threshold float64) bool {
	return reward < threshold
}

// Evaluate runs the full pipeline against a single (query, context,
// answer) triple. degraded marks whether j is the local fallback
// evaluator — the caller (fallback controller) decides which judge to
// pass in; this package does not know about fallback state itself.
func (l *Loop) Evaluate(ctx context.Context, j Judge, sessionID string, insightID *int64, query string, contextDocs []string, answer string, degraded bool) (Result, error) {
	if query == "" {
		return Result{}, cogmemerr.Validation("query", "must be non-empty")
	}
	if answer == "" {
		return Result{}, cogmemerr.Validation("answer", "must be non-empty")
	}

	evalOut, err := j.Evaluate(ctx, query, contextDocs, answer)
	if err != nil {
		return Result{}, err
	}

	triggered := ShouldReflect(evalOut.Reward, l.rewardThreshold)

	var episodeID int64
	if triggered {
		reflection, err := j.Reflect(ctx, query, answer, evalOut.Reward, evalOut.Reasoning)
		if err != nil {
			return Result{}, err
		}
		episode, err := l.tiers.StoreEpisode(ctx, sessionID, query, evalOut.Reward, reflection)
		if err != nil {
			return Result{}, err
		}
		episodeID = episode.ID
	}

	row := models.EvaluationRow{
		SessionID:     sessionID,
		InsightID:     insightID,
		QueryText:     query,
		AnswerText:    answer,
		Reward:        evalOut.Reward,
		Rationale:     evalOut.Reasoning,
		Tokens:        evalOut.Tokens,
		CostUSD:       evalOut.CostUSD,
		Reflected:     triggered,
		PromptVersion: l.promptVersion,
	}
	if episodeID != 0 {
		row.EpisodeID = &episodeID
	}
	err = l.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		_, err := database.InsertEvaluationRow(ctx, conn, row)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	return Result{
		Reward:              evalOut.Reward,
		Reasoning:           evalOut.Reasoning,
		ReflectionTriggered: triggered,
		Degraded:            degraded,
		EpisodeID:           episodeID,
	}, nil
}
