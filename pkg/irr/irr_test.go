package irr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tarsy-labs/cogmem/pkg/models"
)

func groundTruthFixture() []models.GroundTruthQuery {
	return []models.GroundTruthQuery{
		{ID: 1, QueryText: "low disagreement", Judge1Scores: []float64{0.9, 0.8}, Judge2Scores: []float64{0.85, 0.82}},
		{ID: 2, QueryText: "high disagreement", Judge1Scores: []float64{0.9, 0.1}, Judge2Scores: []float64{0.1, 0.9}},
	}
}

func TestBinarizeSplitsAtThreshold(t *testing.T) {
	assert.Equal(t, []int{0, 1, 1, 0}, Binarize([]float64{0.4, 0.5, 0.9, 0.0}, 0.5))
}

func TestCohenKappaPerfectAgreement(t *testing.T) {
	a := []int{1, 0, 1, 0, 1, 0}
	k := CohenKappa(a, a)
	assert.InDelta(t, 1.0, k, 1e-9)
}

func TestCohenKappaNaNWhenRaterHasOneLabel(t *testing.T) {
	a := []int{1, 1, 1, 1}
	b := []int{1, 0, 1, 0}
	assert.True(t, math.IsNaN(CohenKappa(a, b)))
}

func TestCohenKappaPerfectDisagreementIsMinusOne(t *testing.T) {
	a := []int{1, 0, 1, 0}
	b := []int{0, 1, 0, 1}
	k := CohenKappa(a, b)
	assert.InDelta(t, -1.0, k, 1e-9)
}

func TestAgreementBandBoundaries(t *testing.T) {
	assert.Equal(t, "poor", AgreementBand(-0.2))
	assert.Equal(t, "slight", AgreementBand(0.1))
	assert.Equal(t, "fair", AgreementBand(0.3))
	assert.Equal(t, "moderate", AgreementBand(0.5))
	assert.Equal(t, "substantial", AgreementBand(0.7))
	assert.Equal(t, "almost_perfect", AgreementBand(0.9))
	assert.Equal(t, "undefined", AgreementBand(math.NaN()))
}

func TestMacroKappaExcludesNaN(t *testing.T) {
	m := MacroKappa([]float64{0.8, math.NaN(), 0.6})
	assert.InDelta(t, 0.7, m, 1e-9)
}

func TestMacroKappaAllNaNIsNaN(t *testing.T) {
	assert.True(t, math.IsNaN(MacroKappa([]float64{math.NaN(), math.NaN()})))
}

func TestMicroKappaPoolsAcrossQueries(t *testing.T) {
	j1 := [][]float64{{0.9, 0.1}, {0.8, 0.2}}
	j2 := [][]float64{{0.9, 0.1}, {0.8, 0.2}}
	k := MicroKappa(j1, j2, BinarizeThreshold)
	assert.InDelta(t, 1.0, k, 1e-9)
}

func TestMedianOddAndEvenLength(t *testing.T) {
	assert.InDelta(t, 2.0, Median([]float64{3, 1, 2}), 1e-9)
	assert.InDelta(t, 2.5, Median([]float64{1, 2, 3, 4}), 1e-9)
}

func TestWilcoxonSignedRankSystematicShiftIsSignificant(t *testing.T) {
	x := []float64{0.9, 0.85, 0.95, 0.88, 0.92, 0.91, 0.87, 0.93, 0.89, 0.94, 0.86, 0.90}
	y := []float64{0.5, 0.45, 0.55, 0.48, 0.52, 0.51, 0.47, 0.53, 0.49, 0.54, 0.46, 0.50}
	_, p := WilcoxonSignedRank(x, y)
	assert.Less(t, p, 0.05)
}

func TestWilcoxonSignedRankNoDifferenceIsNotSignificant(t *testing.T) {
	x := []float64{0.9, 0.85, 0.95, 0.88, 0.92, 0.91}
	_, p := WilcoxonSignedRank(x, x)
	assert.Equal(t, 1.0, p)
}

func TestRankDisagreementSortsDescendingByMeanAbsDiff(t *testing.T) {
	entries := RankDisagreement(groundTruthFixture())
	assert.Equal(t, int64(2), entries[0].QueryID)
}
