package search

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-labs/cogmem/pkg/models"
)

func insights(ids ...int64) []models.Insight {
	out := make([]models.Insight, len(ids))
	for i, id := range ids {
		out[i] = models.Insight{ID: id}
	}
	return out
}

func TestFuseWeightedPureSemanticMatchesSemanticRanking(t *testing.T) {
	semantic := insights(3, 1, 2)
	keyword := insights(2, 1, 3)

	results := fuseWeighted(semantic, keyword, Weights{Semantic: 1, Keyword: 0}, DefaultRRFK, 3)
	require.Len(t, results, 3)
	assert.Equal(t, []int64{3, 1, 2}, ids(results))
}

func TestFuseWeightedPureKeywordMatchesKeywordRanking(t *testing.T) {
	semantic := insights(3, 1, 2)
	keyword := insights(2, 1, 3)

	results := fuseWeighted(semantic, keyword, Weights{Semantic: 0, Keyword: 1}, DefaultRRFK, 3)
	require.Len(t, results, 3)
	assert.Equal(t, []int64{2, 1, 3}, ids(results))
}

func TestFuseWeightedResultsAreUniqueAndBoundedByTopK(t *testing.T) {
	semantic := insights(1, 2, 3, 4)
	keyword := insights(2, 3, 4, 5)

	results := fuseWeighted(semantic, keyword, Weights{Semantic: 0.7, Keyword: 0.3}, DefaultRRFK, 2)
	assert.Len(t, results, 2)

	seen := map[int64]bool{}
	for _, r := range results {
		assert.False(t, seen[r.Insight.ID], "duplicate id in fused results")
		seen[r.Insight.ID] = true
	}
}

func TestFuseWeightedScoresAreMonotoneNonIncreasing(t *testing.T) {
	semantic := insights(1, 2, 3, 4, 5)
	keyword := insights(5, 4, 3, 2, 1)

	results := fuseWeighted(semantic, keyword, Weights{Semantic: 0.6, Keyword: 0.4}, DefaultRRFK, 5)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestWeightsValidateRejectsNonUnitSum(t *testing.T) {
	err := Weights{Semantic: 0, Keyword: 0}.Validate()
	assert.Error(t, err)
}

func ids(results []Result) []int64 {
	out := make([]int64, len(results))
	for i, r := range results {
		out[i] = r.Insight.ID
	}
	return out
}

type fakeCache struct {
	store map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{store: map[string][]byte{}} }

func (f *fakeCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, ok := f.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (f *fakeCache) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.store[key] = data
	return nil
}

func TestSearchReturnsCachedResultWithoutTouchingPoolOrEmbedder(t *testing.T) {
	fc := newFakeCache()
	cached := []Result{{Insight: models.Insight{ID: 42, Content: "cached"}, Score: 0.9}}
	require.NoError(t, fc.Set(context.Background(), cacheKey("hello", 5, Weights{Semantic: 0.7, Keyword: 0.3}), cached))

	// Nil pool/embedder: a cache hit must short-circuit before either is
	// dereferenced, or this call panics.
	s := New(nil, nil, 0, WithCache(fc))
	results, err := s.Search(context.Background(), "hello", nil, 5, Weights{Semantic: 0.7, Keyword: 0.3})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(42), results[0].Insight.ID)
}

func TestCacheKeyDiffersByTopKAndWeights(t *testing.T) {
	base := cacheKey("query", 5, Weights{Semantic: 0.7, Keyword: 0.3})
	assert.NotEqual(t, base, cacheKey("query", 10, Weights{Semantic: 0.7, Keyword: 0.3}))
	assert.NotEqual(t, base, cacheKey("query", 5, Weights{Semantic: 0.5, Keyword: 0.5}))
	assert.Equal(t, base, cacheKey("Query", 5, Weights{Semantic: 0.7, Keyword: 0.3}))
}
