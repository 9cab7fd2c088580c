// Package search implements hybrid retrieval: parallel cosine-vector
// and lexical-rank branches over L2 insights, fused by weighted
// Reciprocal Rank Fusion, plus multi-query expansion and fusion.
package search

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tarsy-labs/cogmem/pkg/cogmemerr"
	"github.com/tarsy-labs/cogmem/pkg/database"
	"github.com/tarsy-labs/cogmem/pkg/models"
)

// DefaultRRFK is the Reciprocal Rank Fusion smoothing constant.
const DefaultRRFK = 60

// Embedder is the subset of pkg/embedding's Client this package needs.
type Embedder interface {
	Embed(ctx context.Context, text string) (models.Vector, error)
	EmbedBatch(ctx context.Context, texts []string) ([]models.Vector, error)
}

// Weights is the semantic/keyword split a caller assigns to the two
// branches of hybrid search; must sum to 1.
type Weights struct {
	Semantic float64
	Keyword  float64
}

// Validate checks the weight-sum invariant.
func (w Weights) Validate() error {
	if w.Semantic < 0 || w.Semantic > 1 || w.Keyword < 0 || w.Keyword > 1 {
		return cogmemerr.Validation("weights", "each component must be in [0,1]")
	}
	sum := w.Semantic + w.Keyword
	if sum < 0.999 || sum > 1.001 {
		return cogmemerr.Validation("weights", "semantic+keyword must sum to 1")
	}
	return nil
}

// Result is one fused hybrid-search hit, carrying both component scores
// for debugging.
type Result struct {
	Insight       models.Insight
	Score         float64
	SemanticScore float64
	KeywordScore  float64
}

// ResultCache is the subset of pkg/cache's Cache this package needs for
// read-through caching of hot hybrid-search queries — kept as a narrow
// interface so Searcher never imports the Redis client package directly.
type ResultCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// Searcher is the hybrid-search service.
type Searcher struct {
	pool     *database.Pool
	embedder Embedder
	rrfK     int
	cache    ResultCache
}

// Option configures optional Searcher behavior.
type Option func(*Searcher)

// WithCache wires an optional read-through result cache in front of the
// semantic+keyword branches. Absent a cache, every call runs live — the
// cache only ever changes latency, never correctness.
func WithCache(c ResultCache) Option {
	return func(s *Searcher) { s.cache = c }
}

// New builds a Searcher. rrfK <= 0 uses DefaultRRFK.
func New(pool *database.Pool, embedder Embedder, rrfK int, opts ...Option) *Searcher {
	if rrfK <= 0 {
		rrfK = DefaultRRFK
	}
	s := &Searcher{pool: pool, embedder: embedder, rrfK: rrfK}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// cacheKey derives a deterministic key for a (text, topK, weights) triple.
// Vector-only queries (no text) are never cached, since a raw 1536-float
// vector is both too large and too precision-sensitive to key on.
func cacheKey(queryText string, topK int, weights Weights) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(queryText)))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(topK))
	b.WriteByte('|')
	fmt.Fprintf(&b, "%.3f-%.3f", weights.Semantic, weights.Keyword)
	return b.String()
}

// Search runs the semantic and keyword branches in parallel and fuses
// them by weighted RRF. queryVector may be nil, in which case it
// is computed from queryText via the embedder. topK must be in [1,100].
func (s *Searcher) Search(ctx context.Context, queryText string, queryVector models.Vector, topK int, weights Weights) ([]Result, error) {
	if topK < 1 || topK > 100 {
		return nil, cogmemerr.Validation("top_k", "must be in [1,100]")
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	// A cache hit is only meaningful when the caller left the vector to us
	// to compute — a caller-supplied embedding bypasses the cache, since
	// its key would have to be the 1536-float vector itself.
	cacheable := s.cache != nil && queryVector == nil && queryText != ""
	key := ""
	if cacheable {
		key = cacheKey(queryText, topK, weights)
		var cached []Result
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	vec := queryVector
	if vec == nil {
		if queryText == "" {
			return nil, cogmemerr.Validation("query_text", "must be non-empty when query_embedding is absent")
		}
		var err error
		vec, err = s.embedder.Embed(ctx, queryText)
		if err != nil {
			return nil, err
		}
	}

	kPrime := topK * 3
	if kPrime < 50 {
		kPrime = 50
	}

	var semantic, keyword []models.Insight
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		err = s.pool.WithConn(gctx, func(ctx context.Context, conn database.Querier) error {
			semantic, err = database.SearchInsightsByEmbedding(ctx, conn, vec, kPrime)
			return err
		})
		return err
	})
	g.Go(func() error {
		if queryText == "" {
			return nil
		}
		return s.pool.WithConn(gctx, func(ctx context.Context, conn database.Querier) error {
			var err error
			keyword, err = database.SearchInsightsByText(ctx, conn, queryText, kPrime)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := fuseWeighted(semantic, keyword, weights, s.rrfK, topK)
	if cacheable {
		// Best-effort: a cache-write failure must never fail the caller's
		// already-computed result.
		_ = s.cache.Set(ctx, key, results)
	}
	return results, nil
}

// fuseWeighted implements weighted RRF:
// score(doc) = w_sem * 1/(k + rank_sem) + w_kw * 1/(k + rank_kw), missing
// ranks contributing 0. Ties are broken by insight id for determinism.
func fuseWeighted(semantic, keyword []models.Insight, w Weights, k, topK int) []Result {
	semRank := rankOf(semantic)
	kwRank := rankOf(keyword)
	byID := map[int64]models.Insight{}
	for _, in := range semantic {
		byID[in.ID] = in
	}
	for _, in := range keyword {
		byID[in.ID] = in
	}

	results := make([]Result, 0, len(byID))
	for id, in := range byID {
		var semScore, kwScore float64
		if r, ok := semRank[id]; ok {
			semScore = 1.0 / float64(k+r)
		}
		if r, ok := kwRank[id]; ok {
			kwScore = 1.0 / float64(k+r)
		}
		results = append(results, Result{
			Insight:       in,
			Score:         w.Semantic*semScore + w.Keyword*kwScore,
			SemanticScore: semScore,
			KeywordScore:  kwScore,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Insight.ID < results[j].Insight.ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// rankOf returns a 1-indexed rank map for an ordered result list.
func rankOf(insights []models.Insight) map[int64]int {
	out := make(map[int64]int, len(insights))
	for i, in := range insights {
		out[in.ID] = i + 1
	}
	return out
}
