// Package irr implements the inter-rater reliability validator:
// per-query and pooled Cohen's kappa over a labeled ground-truth set,
// high-disagreement triage, and a paired signed-rank test for systematic
// judge bias.
package irr

import (
	"context"
	"math"
	"sort"
	"strconv"

	"github.com/tarsy-labs/cogmem/pkg/database"
	"github.com/tarsy-labs/cogmem/pkg/models"
)

// BinarizeThreshold splits a continuous score into {0,1}.
const BinarizeThreshold = 0.5

// MacroKappaPassThreshold is the macro-kappa bar a prompt version must
// clear to avoid triggering contingency actions.
const MacroKappaPassThreshold = 0.70

// WilcoxonAlpha is the significance level below which a systematic bias
// finding emits a threshold-shift recommendation.
const WilcoxonAlpha = 0.05

// Binarize maps each score to 1 if score >= threshold, else 0.
func Binarize(scores []float64, threshold float64) []int {
	out := make([]int, len(scores))
	for i, s := range scores {
		if s >= threshold {
			out[i] = 1
		}
	}
	return out
}

// CohenKappa computes chance-corrected agreement between two binarized
// rater sequences of equal length. Returns NaN when either rater
// produced only one label across the sequence — agreement is undefined
// there, so callers can exclude it from aggregation.
func CohenKappa(a, b []int) float64 {
	n := len(a)
	if n == 0 || len(b) != n {
		return math.NaN()
	}

	var n11, n00 int
	var sumA, sumB int
	for i := 0; i < n; i++ {
		if a[i] == 1 {
			sumA++
		}
		if b[i] == 1 {
			sumB++
		}
		if a[i] == 1 && b[i] == 1 {
			n11++
		}
		if a[i] == 0 && b[i] == 0 {
			n00++
		}
	}
	if sumA == 0 || sumA == n || sumB == 0 || sumB == n {
		return math.NaN()
	}

	nf := float64(n)
	po := float64(n11+n00) / nf
	p1a := float64(sumA) / nf
	p1b := float64(sumB) / nf
	pe := p1a*p1b + (1-p1a)*(1-p1b)
	if pe >= 1 {
		return math.NaN()
	}
	return (po - pe) / (1 - pe)
}

// AgreementBand maps a kappa value to the standard Landis & Koch
// qualitative label, used to annotate dual-judge scoring results
// alongside the raw kappa.
func AgreementBand(kappa float64) string {
	switch {
	case math.IsNaN(kappa):
		return "undefined"
	case kappa < 0:
		return "poor"
	case kappa <= 0.20:
		return "slight"
	case kappa <= 0.40:
		return "fair"
	case kappa <= 0.60:
		return "moderate"
	case kappa <= 0.80:
		return "substantial"
	default:
		return "almost_perfect"
	}
}

// MacroKappa is the arithmetic mean of the defined (non-NaN) per-query
// kappas.
func MacroKappa(perQuery []float64) float64 {
	var sum float64
	var count int
	for _, k := range perQuery {
		if math.IsNaN(k) {
			continue
		}
		sum += k
		count++
	}
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count)
}

// MicroKappa pools every document's binarized judgment across all
// queries into two flat sequences and computes Cohen's kappa once.
func MicroKappa(judge1, judge2 [][]float64, threshold float64) float64 {
	var flatA, flatB []int
	for i := range judge1 {
		flatA = append(flatA, Binarize(judge1[i], threshold)...)
		flatB = append(flatB, Binarize(judge2[i], threshold)...)
	}
	return CohenKappa(flatA, flatB)
}

// DisagreementEntry ranks one ground-truth query by how much its two
// raters diverged on average.
type DisagreementEntry struct {
	QueryID     int64
	QueryText   string
	MeanAbsDiff float64
}

// RankDisagreement sorts ground-truth queries by mean |judge1-judge2|
// descending, highest disagreement first.
func RankDisagreement(queries []models.GroundTruthQuery) []DisagreementEntry {
	out := make([]DisagreementEntry, 0, len(queries))
	for _, q := range queries {
		n := len(q.Judge1Scores)
		if len(q.Judge2Scores) < n {
			n = len(q.Judge2Scores)
		}
		if n == 0 {
			continue
		}
		var sum float64
		for i := 0; i < n; i++ {
			sum += math.Abs(q.Judge1Scores[i] - q.Judge2Scores[i])
		}
		out = append(out, DisagreementEntry{QueryID: q.ID, QueryText: q.QueryText, MeanAbsDiff: sum / float64(n)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MeanAbsDiff != out[j].MeanAbsDiff {
			return out[i].MeanAbsDiff > out[j].MeanAbsDiff
		}
		return out[i].QueryID < out[j].QueryID
	})
	return out
}

// Median returns the median of a float slice; the input is not mutated.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// WilcoxonSignedRank runs the paired Wilcoxon signed-rank test on raw
// (pre-binarization) score pairs, using the normal approximation with
// continuity correction. Zero differences are dropped per
// the standard test definition. Returns statistic=0, pValue=1 when fewer
// than one non-zero pair remains.
func WilcoxonSignedRank(x, y []float64) (statistic, pValue float64) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}

	type diff struct {
		value float64
		abs   float64
	}
	diffs := make([]diff, 0, n)
	for i := 0; i < n; i++ {
		d := x[i] - y[i]
		if d == 0 {
			continue
		}
		diffs = append(diffs, diff{value: d, abs: math.Abs(d)})
	}
	m := len(diffs)
	if m == 0 {
		return 0, 1
	}

	sort.Slice(diffs, func(i, j int) bool { return diffs[i].abs < diffs[j].abs })
	ranks := make([]float64, m)
	i := 0
	for i < m {
		j := i
		for j+1 < m && diffs[j+1].abs == diffs[i].abs {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[k] = avgRank
		}
		i = j + 1
	}

	var wPlus, wMinus float64
	for k, d := range diffs {
		if d.value > 0 {
			wPlus += ranks[k]
		} else {
			wMinus += ranks[k]
		}
	}
	statistic = math.Min(wPlus, wMinus)

	mf := float64(m)
	mean := mf * (mf + 1) / 4
	variance := mf * (mf + 1) * (2*mf + 1) / 24
	if variance <= 0 {
		return statistic, 1
	}
	z := (statistic - mean + 0.5) / math.Sqrt(variance)
	pValue = 2 * (1 - normalCDF(math.Abs(z)))
	if pValue > 1 {
		pValue = 1
	}
	return statistic, pValue
}

func normalCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

// Report is the full outcome of one IRR validation sweep, carrying both
// the persisted ValidationResult row and the working detail (the
// disagreement ranking) the model doesn't itself retain a slot for.
type Report struct {
	Result       models.ValidationResult
	Disagreement []DisagreementEntry
}

// Validator runs validation sweeps over a labeled ground-truth set
// for one judge prompt version.
type Validator struct {
	pool *database.Pool
}

// New builds a Validator over a shared connection pool.
func New(pool *database.Pool) *Validator {
	return &Validator{pool: pool}
}

// Validate loads every ground-truth query for promptVersion, computes
// per-query and pooled kappa, updates each query's persisted per-query
// kappa, and on contingency ranks high-disagreement queries and runs the
// paired signed-rank test, persisting one ValidationResult row.
func (v *Validator) Validate(ctx context.Context, promptVersion string) (Report, error) {
	var queries []models.GroundTruthQuery
	err := v.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		var err error
		queries, err = database.ListGroundTruthQueriesByPromptVersion(ctx, conn, promptVersion)
		return err
	})
	if err != nil {
		return Report{}, err
	}

	perQuery := make([]float64, 0, len(queries))
	var judge1All, judge2All [][]float64
	var rawX, rawY []float64

	for _, q := range queries {
		n := len(q.Judge1Scores)
		if len(q.Judge2Scores) < n {
			n = len(q.Judge2Scores)
		}
		if n == 0 {
			continue
		}
		j1 := q.Judge1Scores[:n]
		j2 := q.Judge2Scores[:n]

		kappa := CohenKappa(Binarize(j1, BinarizeThreshold), Binarize(j2, BinarizeThreshold))
		perQuery = append(perQuery, kappa)
		judge1All = append(judge1All, j1)
		judge2All = append(judge2All, j2)
		rawX = append(rawX, j1...)
		rawY = append(rawY, j2...)

		if err := v.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
			return database.UpdateGroundTruthQueryKappa(ctx, conn, q.ID, kappa)
		}); err != nil {
			return Report{}, err
		}
	}

	macro := MacroKappa(perQuery)
	micro := MicroKappa(judge1All, judge2All, BinarizeThreshold)

	status := models.ValidationPassed
	if math.IsNaN(macro) || macro < MacroKappaPassThreshold {
		status = models.ValidationContingencyTriggered
	}

	result := models.ValidationResult{
		PromptVersion: promptVersion,
		MacroKappa:    macro,
		MicroKappa:    micro,
		Status:        status,
	}
	var disagreement []DisagreementEntry

	if status == models.ValidationContingencyTriggered {
		disagreement = RankDisagreement(queries)
		result.HighDisagreementCount = len(disagreement)

		statistic, pValue := WilcoxonSignedRank(rawX, rawY)
		result.WilcoxonStatistic = &statistic
		result.WilcoxonPValue = &pValue

		medianDiff := Median(pairwiseDiff(rawX, rawY))
		if pValue < WilcoxonAlpha && medianDiff != 0 {
			result.Recommendation = recommendationText(medianDiff)
		}
	}

	var id int64
	err = v.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		var err error
		id, err = database.InsertValidationResult(ctx, conn, result)
		return err
	})
	if err != nil {
		return Report{}, err
	}
	result.ID = id

	return Report{Result: result, Disagreement: disagreement}, nil
}

func pairwiseDiff(x, y []float64) []float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = x[i] - y[i]
	}
	return out
}

func recommendationText(medianDiff float64) string {
	threshold := 0.5 + medianDiff
	if threshold > 1 {
		threshold = 1
	}
	if threshold < 0 {
		threshold = 0
	}
	return "threshold_for_judge_i=" + strconv.FormatFloat(threshold, 'f', 4, 64)
}
