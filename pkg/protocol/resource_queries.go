package protocol

import (
	"context"
	"time"

	"github.com/tarsy-labs/cogmem/pkg/database"
	"github.com/tarsy-labs/cogmem/pkg/models"
	"github.com/tarsy-labs/cogmem/pkg/search"
)

// L2InsightsQuery filters memory://l2-insights.
type L2InsightsQuery struct {
	Query         string
	TopK          int
	FidelityMin   *float64
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// ListL2Insights runs a semantic search when Query is set, otherwise
// lists the most recent insights, applying the fidelity/time bounds
// either in SQL (the unfiltered listing) or as a post-filter (the
// search path, which doesn't take those predicates in pkg/search).
func (s *Service) ListL2Insights(ctx context.Context, q L2InsightsQuery) ([]models.Insight, error) {
	topK := q.TopK
	if topK == 0 {
		topK = 20
	}

	if q.Query == "" {
		var out []models.Insight
		err := s.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
			var err error
			out, err = database.ListRecentInsights(ctx, conn, topK, q.FidelityMin, q.CreatedAfter, q.CreatedBefore)
			return err
		})
		return out, err
	}

	results, err := s.searcher.Search(ctx, q.Query, nil, topK, search.Weights{Semantic: 0.7, Keyword: 0.3})
	if err != nil {
		return nil, err
	}
	out := make([]models.Insight, 0, len(results))
	for _, r := range results {
		if q.FidelityMin != nil && (r.Insight.FidelityScore == nil || *r.Insight.FidelityScore < *q.FidelityMin) {
			continue
		}
		if q.CreatedAfter != nil && r.Insight.CreatedAt.Before(*q.CreatedAfter) {
			continue
		}
		if q.CreatedBefore != nil && r.Insight.CreatedAt.After(*q.CreatedBefore) {
			continue
		}
		out = append(out, r.Insight)
	}
	return out, nil
}

// ListWorkingMemory lists every working-memory row; this resource takes no
// parameters for this resource.
func (s *Service) ListWorkingMemory(ctx context.Context) ([]models.WorkingItem, error) {
	var out []models.WorkingItem
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		var err error
		out, err = database.ListAllWorkingItems(ctx, conn)
		return err
	})
	return out, err
}

// EpisodeMemoryQuery filters memory://episode-memory.
type EpisodeMemoryQuery struct {
	Query         string
	TopK          int
	MinSimilarity float64
	RewardMin     *float64
	DaysBack      int
}

// ListEpisodeMemory searches episodes by the given query text (episode
// retrieval is inherently similarity-based — an empty query returns no
// rows) and applies the reward/age post-filters.
func (s *Service) ListEpisodeMemory(ctx context.Context, q EpisodeMemoryQuery) ([]models.Episode, error) {
	if q.Query == "" {
		return nil, nil
	}
	topK := q.TopK
	if topK == 0 {
		topK = 20
	}
	episodes, err := s.tiers.SearchEpisodes(ctx, q.Query, topK, q.MinSimilarity)
	if err != nil {
		return nil, err
	}

	cutoff := time.Time{}
	if q.DaysBack > 0 {
		cutoff = timeNow().Add(-time.Duration(q.DaysBack) * 24 * time.Hour)
	}
	out := make([]models.Episode, 0, len(episodes))
	for _, e := range episodes {
		if q.RewardMin != nil && (e.Reward == nil || *e.Reward < *q.RewardMin) {
			continue
		}
		if !cutoff.IsZero() && e.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// L0Query filters memory://l0-raw.
type L0Query struct {
	SessionID string
	Speaker   string
	Limit     int
	Ascending bool // order=asc when true, else newest-first
}

// ListRawDialogue lists a session's raw turns, or every session's turns
// when SessionID is empty, applying the speaker filter and order/limit
// as a post-filter over the persisted chronological order.
func (s *Service) ListRawDialogue(ctx context.Context, q L0Query) ([]models.RawTurn, error) {
	limit := q.Limit
	if limit == 0 {
		limit = 50
	}

	var turns []models.RawTurn
	var err error
	if q.SessionID != "" {
		turns, err = s.tiers.ListRawTurns(ctx, q.SessionID)
	} else {
		err = s.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
			var err error
			turns, err = database.ListAllRawTurns(ctx, conn, limit)
			return err
		})
		// Rows arrive newest-first (the limit keeps the newest N);
		// normalize to chronological to match the session path before the
		// shared order handling below.
		for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
			turns[i], turns[j] = turns[j], turns[i]
		}
	}
	if err != nil {
		return nil, err
	}

	out := make([]models.RawTurn, 0, len(turns))
	for _, t := range turns {
		if q.Speaker != "" && t.Speaker != q.Speaker {
			continue
		}
		out = append(out, t)
	}
	if !q.Ascending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// StaleMemoryQuery filters memory://stale-memory.
type StaleMemoryQuery struct {
	Reason        string
	DaysBack      int
	ImportanceMin *float64
	Limit         int
}

// ListStaleMemory lists archived working items across all sessions,
// newest first, applying the reason/age/importance filters.
func (s *Service) ListStaleMemory(ctx context.Context, q StaleMemoryQuery) ([]models.StaleItem, error) {
	limit := q.Limit
	if limit == 0 {
		limit = 50
	}

	var items []models.StaleItem
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		var err error
		items, err = database.ListAllStaleItems(ctx, conn)
		return err
	})
	if err != nil {
		return nil, err
	}

	cutoff := time.Time{}
	if q.DaysBack > 0 {
		cutoff = timeNow().Add(-time.Duration(q.DaysBack) * 24 * time.Hour)
	}
	out := make([]models.StaleItem, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		if q.Reason != "" && string(it.StaleReason) != q.Reason {
			continue
		}
		if q.ImportanceMin != nil && it.Importance < *q.ImportanceMin {
			continue
		}
		if !cutoff.IsZero() && it.ArchivedAt.Before(cutoff) {
			continue
		}
		out = append(out, it)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// timeNow is a var so tests can stub the clock; the repository-wide
// convention leans on injected dependencies rather than wall-clock
// checks inside pure logic, extended here since these filters are
// inherently wall-clock relative.
var timeNow = time.Now
