package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-labs/cogmem/pkg/cogmemerr"
	"github.com/tarsy-labs/cogmem/pkg/models"
	"github.com/tarsy-labs/cogmem/pkg/search"
)

func TestHitSourceClassifiesBranchOrigin(t *testing.T) {
	assert.Equal(t, "hybrid", hitSource(0.8, 0.4))
	assert.Equal(t, "semantic", hitSource(0.8, 0))
	assert.Equal(t, "keyword", hitSource(0, 0.4))
	assert.Equal(t, "keyword", hitSource(0, 0))
}

func TestToHitsPreservesOrderAndScores(t *testing.T) {
	results := []search.Result{
		{Insight: models.Insight{ID: 1, Content: "a"}, Score: 0.9, SemanticScore: 0.9, KeywordScore: 0},
		{Insight: models.Insight{ID: 2, Content: "b"}, Score: 0.4, SemanticScore: 0, KeywordScore: 0.4},
	}
	hits := toHits(results)
	if assert.Len(t, hits, 2) {
		assert.Equal(t, int64(1), hits[0].ID)
		assert.Equal(t, "semantic", hits[0].Source)
		assert.Equal(t, int64(2), hits[1].ID)
		assert.Equal(t, "keyword", hits[1].Source)
	}
}

// Argument validation must fire before any dependency is touched, so a
// zero-value Service is enough for these: reaching the searcher would
// panic on the nil pointer.

func TestHybridSearchRejectsExplicitZeroWeights(t *testing.T) {
	s := &Service{}
	_, err := s.HybridSearch(context.Background(), HybridSearchArgs{
		QueryText: "q",
		Weights:   &SearchWeightsArgs{Semantic: 0, Keyword: 0},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, cogmemerr.ErrValidation)
}

func TestHybridSearchRejectsExplicitZeroTopK(t *testing.T) {
	s := &Service{}
	zero := 0
	_, err := s.HybridSearch(context.Background(), HybridSearchArgs{QueryText: "q", TopK: &zero})
	require.Error(t, err)
	assert.ErrorIs(t, err, cogmemerr.ErrValidation)
}

func TestHybridSearchRejectsTopKOverCeiling(t *testing.T) {
	s := &Service{}
	over := 101
	_, err := s.HybridSearch(context.Background(), HybridSearchArgs{QueryText: "q", TopK: &over})
	require.Error(t, err)
	assert.ErrorIs(t, err, cogmemerr.ErrValidation)
}

func TestFidelityScoreFromMetadataExtractsFloat(t *testing.T) {
	v := fidelityScoreFromMetadata(map[string]any{"fidelity_score": 0.42})
	if assert.NotNil(t, v) {
		assert.InDelta(t, 0.42, *v, 1e-9)
	}
}

func TestFidelityScoreFromMetadataExtractsInt(t *testing.T) {
	v := fidelityScoreFromMetadata(map[string]any{"fidelity_score": 1})
	if assert.NotNil(t, v) {
		assert.InDelta(t, 1.0, *v, 1e-9)
	}
}

func TestFidelityScoreFromMetadataMissingIsNil(t *testing.T) {
	assert.Nil(t, fidelityScoreFromMetadata(nil))
	assert.Nil(t, fidelityScoreFromMetadata(map[string]any{}))
}

func TestFidelityScoreFromMetadataWrongTypeIsNil(t *testing.T) {
	assert.Nil(t, fidelityScoreFromMetadata(map[string]any{"fidelity_score": "high"}))
}

func TestIsNaNDetectsNaNOnly(t *testing.T) {
	assert.False(t, isNaN(0.0))
	assert.False(t, isNaN(-1.0))
	assert.True(t, isNaN(mustNaN()))
}

func mustNaN() float64 {
	var zero float64
	return zero / zero
}
