package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tarsy-labs/cogmem/pkg/cogmemerr"
)

func branchResults(ids ...int64) []Result {
	out := make([]Result, len(ids))
	for i, id := range ids {
		out[i] = Result{Insight: insights(id)[0], Score: float64(len(ids) - i)}
	}
	return out
}

func TestDedupeByIDKeepsHighestScoringOccurrence(t *testing.T) {
	branches := [][]Result{
		{{Insight: insights(1)[0], Score: 0.4}},
		{{Insight: insights(1)[0], Score: 0.9}},
	}
	rep := dedupeByID(branches)
	assert.InDelta(t, 0.9, rep[1].Score, 1e-9)
}

func TestFuseAcrossVariantsIsCommutativeUnderPermutation(t *testing.T) {
	a := branchResults(1, 2, 3)
	b := branchResults(3, 1, 2)

	branches1 := [][]Result{a, b}
	branches2 := [][]Result{b, a}

	rep := dedupeByID(branches1)
	fused1 := fuseAcrossVariants(branches1, rep, DefaultRRFK)
	fused2 := fuseAcrossVariants(branches2, rep, DefaultRRFK)

	assert.Equal(t, idsOf(fused1), idsOf(fused2))
}

func TestFuseAcrossVariantsOutputIsDedupedUnion(t *testing.T) {
	branches := [][]Result{
		branchResults(1, 2),
		branchResults(2, 3),
	}
	rep := dedupeByID(branches)
	fused := fuseAcrossVariants(branches, rep, DefaultRRFK)

	seen := map[int64]bool{}
	for _, r := range fused {
		assert.False(t, seen[r.Insight.ID])
		seen[r.Insight.ID] = true
	}
	assert.Len(t, fused, 3)
}

func TestExpandRejectsEmptyVariants(t *testing.T) {
	e := NewExpander(nil, nil)
	_, err := e.Expand(context.Background(), nil, Weights{Semantic: 0.7, Keyword: 0.3}, 5)
	assert.ErrorIs(t, err, cogmemerr.ErrValidation)
}

func TestExpandRejectsTopKOverCeiling(t *testing.T) {
	// Validation fires before the embedder or searcher is touched, so nil
	// dependencies must not be dereferenced.
	e := NewExpander(nil, nil)
	_, err := e.Expand(context.Background(), []string{"q"}, Weights{Semantic: 0.7, Keyword: 0.3}, 101)
	assert.ErrorIs(t, err, cogmemerr.ErrValidation)
}

func idsOf(results []Result) []int64 {
	out := make([]int64, len(results))
	for i, r := range results {
		out[i] = r.Insight.ID
	}
	return out
}
