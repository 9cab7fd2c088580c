package golden

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrecisionAt5CountsHits(t *testing.T) {
	expected := map[int64]bool{1: true, 2: true}
	assert.InDelta(t, 0.4, PrecisionAt5([]int64{1, 2, 3, 4, 5}, expected), 1e-9)
}

func TestPrecisionAt5NoHits(t *testing.T) {
	expected := map[int64]bool{99: true}
	assert.Equal(t, 0.0, PrecisionAt5([]int64{1, 2, 3}, expected))
}

func TestPrecisionAt5EmptyResultsIsZero(t *testing.T) {
	assert.Equal(t, 0.0, PrecisionAt5(nil, map[int64]bool{1: true}))
}

func TestDriftDetectedWhenBelowThreshold(t *testing.T) {
	assert.True(t, DriftDetected(0.5, 0.7, 0.1))
}

func TestDriftDetectedFalseWithinThreshold(t *testing.T) {
	assert.False(t, DriftDetected(0.65, 0.7, 0.1))
}

func TestDriftDetectedFalseWhenImproved(t *testing.T) {
	assert.False(t, DriftDetected(0.9, 0.7, 0.1))
}
