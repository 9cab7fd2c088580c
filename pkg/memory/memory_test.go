package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tarsy-labs/cogmem/pkg/models"
)

func TestPickEvictionVictimPrefersOldestNonCritical(t *testing.T) {
	now := time.Now()
	items := []models.WorkingItem{
		{ID: 1, Importance: 0.9, LastAccessed: now.Add(-10 * time.Hour)}, // critical, oldest overall
		{ID: 2, Importance: 0.3, LastAccessed: now.Add(-5 * time.Hour)},
		{ID: 3, Importance: 0.2, LastAccessed: now.Add(-1 * time.Hour)},
	}
	victim := pickEvictionVictim(items, 0.8)
	assert.Equal(t, int64(2), victim.ID)
}

func TestPickEvictionVictimFallsBackToOldestWhenAllCritical(t *testing.T) {
	now := time.Now()
	items := []models.WorkingItem{
		{ID: 1, Importance: 0.9, LastAccessed: now.Add(-2 * time.Hour)},
		{ID: 2, Importance: 0.95, LastAccessed: now.Add(-9 * time.Hour)},
	}
	victim := pickEvictionVictim(items, 0.8)
	assert.Equal(t, int64(2), victim.ID)
}

func TestPickEvictionVictimTieBreaksOnLowerID(t *testing.T) {
	now := time.Now()
	items := []models.WorkingItem{
		{ID: 5, Importance: 0.2, LastAccessed: now},
		{ID: 2, Importance: 0.2, LastAccessed: now},
	}
	victim := pickEvictionVictim(items, 0.8)
	assert.Equal(t, int64(2), victim.ID)
}

func TestCosineSimilarityIdenticalVectorsIsOne(t *testing.T) {
	v := models.Vector{1, 2, 3}
	assert.InDelta(t, 1.0, cosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarityOrthogonalVectorsIsZero(t *testing.T) {
	a := models.Vector{1, 0}
	b := models.Vector{0, 1}
	assert.InDelta(t, 0.0, cosineSimilarity(a, b), 1e-9)
}
