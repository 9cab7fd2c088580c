// Package golden runs the fixed retrieval-quality benchmark: precision@5
// against a known-relevant set for each golden query, aggregated overall
// and per query_type, flagged against a recorded baseline for drift.
package golden

import (
	"context"
	"fmt"

	"github.com/tarsy-labs/cogmem/pkg/database"
	"github.com/tarsy-labs/cogmem/pkg/models"
	"github.com/tarsy-labs/cogmem/pkg/search"
)

// DriftThreshold is how far current precision@5 may fall below the
// recorded baseline before the run is flagged as drifted.
const DriftThreshold = 0.1

// TopK is the cutoff precision@5 is computed at; the tool name fixes it.
const TopK = 5

// Report is one golden-test run's result.
type Report struct {
	PrecisionAt5      float64
	BaselinePrecision float64
	DriftDetected     bool
	ByQueryType       map[string]float64
}

// Evaluator is the golden-test runner, searching with the same hybrid
// searcher production queries use so the benchmark tracks real
// retrieval behavior rather than a separate code path.
type Evaluator struct {
	pool     *database.Pool
	searcher *search.Searcher
}

// New builds an Evaluator.
func New(pool *database.Pool, searcher *search.Searcher) *Evaluator {
	return &Evaluator{pool: pool, searcher: searcher}
}

// Run executes every golden query, computing precision@5 against its
// expected-relevant set, and aggregates the result.
func (e *Evaluator) Run(ctx context.Context) (Report, error) {
	var queries []models.GoldenQuery
	err := e.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		var err error
		queries, err = database.ListGoldenQueries(ctx, conn)
		return err
	})
	if err != nil {
		return Report{}, err
	}
	if len(queries) == 0 {
		return Report{ByQueryType: map[string]float64{}}, nil
	}

	sumByType := map[string]float64{}
	countByType := map[string]int{}
	var totalPrecision, totalBaseline float64

	for _, gq := range queries {
		results, err := e.searcher.Search(ctx, gq.QueryText, nil, TopK, search.Weights{Semantic: 0.7, Keyword: 0.3})
		if err != nil {
			return Report{}, fmt.Errorf("golden query %q: %w", gq.QueryText, err)
		}

		ids := make([]int64, len(results))
		for i, r := range results {
			ids[i] = r.Insight.ID
		}
		expected := make(map[int64]bool, len(gq.ExpectedInsightIDs))
		for _, id := range gq.ExpectedInsightIDs {
			expected[id] = true
		}

		precision := PrecisionAt5(ids, expected)
		totalPrecision += precision
		totalBaseline += gq.BaselinePrecision
		sumByType[gq.QueryType] += precision
		countByType[gq.QueryType]++
	}

	n := float64(len(queries))
	overallPrecision := totalPrecision / n
	overallBaseline := totalBaseline / n

	byType := make(map[string]float64, len(sumByType))
	for qt, sum := range sumByType {
		byType[qt] = sum / float64(countByType[qt])
	}

	return Report{
		PrecisionAt5:      overallPrecision,
		BaselinePrecision: overallBaseline,
		DriftDetected:     DriftDetected(overallPrecision, overallBaseline, DriftThreshold),
		ByQueryType:       byType,
	}, nil
}

// PrecisionAt5 is the fraction of resultIDs (capped at 5 by the caller's
// top_k) present in the expected-relevant set. Pure, independent of
// ordering beyond the caller's cutoff.
func PrecisionAt5(resultIDs []int64, expected map[int64]bool) float64 {
	if len(resultIDs) == 0 {
		return 0
	}
	var hits int
	for _, id := range resultIDs {
		if expected[id] {
			hits++
		}
	}
	return float64(hits) / float64(len(resultIDs))
}

// DriftDetected reports whether current precision has fallen more than
// threshold below baseline. Pure, independently unit-tested.
func DriftDetected(current, baseline, threshold float64) bool {
	return baseline-current > threshold
}
