package search

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/tarsy-labs/cogmem/pkg/cogmemerr"
)

// DefaultExpansionTopK is the default result count multi-query fusion
// returns.
const DefaultExpansionTopK = 5

// Expander is the query-expansion/multi-query-fusion service, built on
// top of a Searcher. The host supplies the variant texts; this package
// never generates them.
type Expander struct {
	searcher *Searcher
	embedder Embedder
}

// NewExpander builds an Expander over an existing Searcher/Embedder pair.
func NewExpander(searcher *Searcher, embedder Embedder) *Expander {
	return &Expander{searcher: searcher, embedder: embedder}
}

// Expand runs the full fan-out pipeline: batch-embed every variant in a
// single call, search once per variant in parallel, deduplicate by insight id
// keeping the highest-scoring occurrence, then fuse across variants by
// plain (unweighted) RRF and return the top-K.
func (e *Expander) Expand(ctx context.Context, variants []string, weights Weights, topK int) ([]Result, error) {
	if len(variants) == 0 {
		return nil, cogmemerr.Validation("variants", "must be non-empty")
	}
	if topK <= 0 {
		topK = DefaultExpansionTopK
	}
	if topK > 100 {
		return nil, cogmemerr.Validation("top_k", "must be in [1,100]")
	}

	vecs, err := e.embedder.EmbedBatch(ctx, variants)
	if err != nil {
		return nil, err
	}

	// Each branch over-fetches so cross-variant fusion has enough overlap
	// to reorder, but stays within Search's own top_k ceiling of 100.
	branchTopK := topK * 3
	if branchTopK < 50 {
		branchTopK = 50
	}
	if branchTopK > 100 {
		branchTopK = 100
	}

	branches := make([][]Result, len(variants))
	g, gctx := errgroup.WithContext(ctx)
	for i := range variants {
		i := i
		g.Go(func() error {
			res, err := e.searcher.Search(gctx, variants[i], vecs[i], branchTopK, weights)
			if err != nil {
				return err
			}
			branches[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	representative := dedupeByID(branches)
	fused := fuseAcrossVariants(branches, representative, DefaultRRFK)
	if len(fused) > topK {
		fused = fused[:topK]
	}
	return fused, nil
}

// dedupeByID collapses N branch result lists into one representative
// Result per insight id, keeping the highest-scoring single-branch
// occurrence (for its Insight payload and component scores) — the
// deduplication step of the fan-out.
func dedupeByID(branches [][]Result) map[int64]Result {
	best := map[int64]Result{}
	for _, branch := range branches {
		for _, r := range branch {
			if existing, ok := best[r.Insight.ID]; !ok || r.Score > existing.Score {
				best[r.Insight.ID] = r
			}
		}
	}
	return best
}

// fuseAcrossVariants implements plain (unweighted) RRF across variants:
// score(doc) = sum_i 1/(k + rank_i(doc)), where rank_i(doc) is the doc's
// 1-indexed position within variant i's own branch result list (missing
// from a branch contributes 0). Summation over a set of branches doesn't
// depend on branch order, so fusion is commutative under permutation of
// the variant list.
func fuseAcrossVariants(branches [][]Result, representative map[int64]Result, k int) []Result {
	score := make(map[int64]float64, len(representative))
	for _, branch := range branches {
		for i, r := range branch {
			score[r.Insight.ID] += 1.0 / float64(k+i+1)
		}
	}

	out := make([]Result, 0, len(representative))
	for id, r := range representative {
		r.Score = score[id]
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Insight.ID < out[j].Insight.ID
	})
	return out
}
