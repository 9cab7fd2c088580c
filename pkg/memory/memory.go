// Package memory implements the tiered memory model: L0 raw turns,
// L2 compressed insights, bounded Working memory with LRU+importance
// eviction, durable Episodes keyed by query embedding, and the append-only
// Stale archive.
package memory

import (
	"context"
	"math"
	"sort"

	"github.com/tarsy-labs/cogmem/pkg/cogmemerr"
	"github.com/tarsy-labs/cogmem/pkg/database"
	"github.com/tarsy-labs/cogmem/pkg/models"
)

// DefaultFidelityFloor is the configured floor below which a compression's
// caller-supplied fidelity score sets the fidelity_warning flag.
const DefaultFidelityFloor = 0.5

// DefaultEpisodeMinSimilarity is the min-similarity gate applied to
// episode retrieval by cosine distance.
const DefaultEpisodeMinSimilarity = 0.5

// Embedder is the subset of pkg/embedding's Client this package needs,
// kept as an interface so tests can stub it without an HTTP server.
type Embedder interface {
	Embed(ctx context.Context, text string) (models.Vector, error)
}

// Tiers is the memory-tier service, built over a shared connection
// pool and an embedding client.
type Tiers struct {
	pool           *database.Pool
	embedder       Embedder
	capacity       int
	criticalThresh float64
	fidelityFloor  float64
	episodeMinSim  float64
}

// Option configures a Tiers beyond its required pool/embedder.
type Option func(*Tiers)

// WithCapacity overrides the working-memory per-session capacity
// (default 10).
func WithCapacity(c int) Option { return func(t *Tiers) { t.capacity = c } }

// WithCriticalThreshold overrides the importance threshold above which an
// evicted item is archived rather than discarded.
func WithCriticalThreshold(th float64) Option { return func(t *Tiers) { t.criticalThresh = th } }

// WithFidelityFloor overrides the floor below which a compression's
// fidelity score is flagged.
func WithFidelityFloor(f float64) Option { return func(t *Tiers) { t.fidelityFloor = f } }

// WithEpisodeMinSimilarity overrides the cosine-similarity gate applied to
// episode retrieval.
func WithEpisodeMinSimilarity(s float64) Option { return func(t *Tiers) { t.episodeMinSim = s } }

// New builds a Tiers service with defaults, applying any Options.
func New(pool *database.Pool, embedder Embedder, opts ...Option) *Tiers {
	t := &Tiers{
		pool:           pool,
		embedder:       embedder,
		capacity:       10,
		criticalThresh: 0.8,
		fidelityFloor:  DefaultFidelityFloor,
		episodeMinSim:  DefaultEpisodeMinSimilarity,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// StoreRawTurn appends one immutable L0 dialogue turn.
func (t *Tiers) StoreRawTurn(ctx context.Context, sessionID, speaker, content string, metadata map[string]any) (models.RawTurn, error) {
	if sessionID == "" {
		return models.RawTurn{}, cogmemerr.Validation("session_id", "must be non-empty")
	}
	if content == "" {
		return models.RawTurn{}, cogmemerr.Validation("content", "must be non-empty")
	}
	row := models.RawTurn{SessionID: sessionID, Speaker: speaker, Content: content, Metadata: metadata}
	var id int64
	err := t.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		var err error
		id, err = database.InsertRawTurn(ctx, conn, row)
		return err
	})
	if err != nil {
		return models.RawTurn{}, err
	}
	row.ID = id
	return row, nil
}

// ListRawTurns returns a session's raw turns in chronological order.
func (t *Tiers) ListRawTurns(ctx context.Context, sessionID string) ([]models.RawTurn, error) {
	var out []models.RawTurn
	err := t.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		var err error
		out, err = database.ListRawTurnsBySession(ctx, conn, sessionID)
		return err
	})
	return out, err
}

// Compress turns one or more L0 turns into a durable L2 insight by
// embedding content and persisting the result. fidelityScore is
// caller-supplied metadata; when below the configured floor,
// FidelityWarning is set.
func (t *Tiers) Compress(ctx context.Context, content string, sourceIDs []int64, fidelityScore *float64, metadata map[string]any) (models.Insight, error) {
	if len(sourceIDs) == 0 {
		return models.Insight{}, cogmemerr.Validation("source_ids", "must be non-empty")
	}
	if content == "" {
		return models.Insight{}, cogmemerr.Validation("content", "must be non-empty")
	}

	vec, err := t.embedder.Embed(ctx, content)
	if err != nil {
		return models.Insight{}, err
	}

	warning := fidelityScore != nil && *fidelityScore < t.fidelityFloor
	row := models.Insight{
		Content:         content,
		Embedding:       vec,
		SourceIDs:       sourceIDs,
		Metadata:        metadata,
		FidelityScore:   fidelityScore,
		FidelityWarning: warning,
	}

	var id int64
	err = t.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		var err error
		id, err = database.InsertInsight(ctx, conn, row)
		return err
	})
	if err != nil {
		return models.Insight{}, err
	}
	row.ID = id
	return row, nil
}

// UpsertResult reports which rows an UpsertWorking call touched.
type UpsertResult struct {
	AddedID    int64
	EvictedID  int64 // 0 if nothing evicted
	ArchivedID int64 // 0 if the eviction victim wasn't archived
}

// UpsertWorking inserts a working-memory item, evicting the LRU
// non-critical item (or, failing that, the oldest item overall) when the
// session exceeds capacity, all within a single transaction. An empty
// sessionID is a valid session of its own.
func (t *Tiers) UpsertWorking(ctx context.Context, sessionID, content string, importance float64) (UpsertResult, error) {
	if importance < 0 || importance > 1 {
		return UpsertResult{}, cogmemerr.Validation("importance", "must be in [0,1]")
	}

	var result UpsertResult
	err := t.pool.WithTx(ctx, func(ctx context.Context, tx database.Querier) error {
		id, err := database.UpsertWorkingItem(ctx, tx, models.WorkingItem{SessionID: sessionID, Content: content, Importance: importance})
		if err != nil {
			return err
		}
		result.AddedID = id

		items, err := database.ListWorkingItemsBySession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if len(items) <= t.capacity {
			return nil
		}

		victim := pickEvictionVictim(items, t.criticalThresh)
		if victim.Importance > t.criticalThresh {
			staleID, err := database.ArchiveWorkingItem(ctx, tx, victim, models.StaleReasonLRUEviction)
			if err != nil {
				return err
			}
			result.ArchivedID = staleID
		} else {
			if err := database.DeleteWorkingItem(ctx, tx, victim.ID); err != nil {
				return err
			}
		}
		result.EvictedID = victim.ID
		return nil
	})
	return result, err
}

// pickEvictionVictim picks the victim: among items with importance
// <= criticalThresh, the one with oldest last_accessed; if none qualify,
// the oldest last_accessed overall. Ties on last_accessed break to the
// lower id.
func pickEvictionVictim(items []models.WorkingItem, criticalThresh float64) models.WorkingItem {
	candidates := make([]models.WorkingItem, 0, len(items))
	for _, it := range items {
		if it.Importance <= criticalThresh {
			candidates = append(candidates, it)
		}
	}
	if len(candidates) == 0 {
		candidates = items
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].LastAccessed.Equal(candidates[j].LastAccessed) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].LastAccessed.Before(candidates[j].LastAccessed)
	})
	return candidates[0]
}

// TouchWorking refreshes last_accessed on a read, implementing the LRU
// half of the eviction policy.
func (t *Tiers) TouchWorking(ctx context.Context, id int64) error {
	return t.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		return database.TouchWorkingItem(ctx, conn, id)
	})
}

// ListWorking returns a session's working items, oldest-accessed first.
func (t *Tiers) ListWorking(ctx context.Context, sessionID string) ([]models.WorkingItem, error) {
	var out []models.WorkingItem
	err := t.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		var err error
		out, err = database.ListWorkingItemsBySession(ctx, conn, sessionID)
		return err
	})
	return out, err
}

// ListStale returns a session's archived working items, oldest first.
func (t *Tiers) ListStale(ctx context.Context, sessionID string) ([]models.StaleItem, error) {
	var out []models.StaleItem
	err := t.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		var err error
		out, err = database.ListStaleItemsBySession(ctx, conn, sessionID)
		return err
	})
	return out, err
}

// StoreEpisode embeds the query (never the reflection) and persists the
// episode within one transaction.
func (t *Tiers) StoreEpisode(ctx context.Context, sessionID, query string, reward float64, reflection string) (models.Episode, error) {
	if reward < -1 || reward > 1 {
		return models.Episode{}, cogmemerr.Validation("reward", "must be in [-1,1]")
	}

	vec, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return models.Episode{}, err
	}

	row := models.Episode{
		SessionID:      sessionID,
		QueryText:      query,
		QueryEmbedding: vec,
		OutcomeSummary: reflection,
		Reward:         &reward,
	}

	var id int64
	err = t.pool.WithTx(ctx, func(ctx context.Context, tx database.Querier) error {
		var err error
		id, err = database.InsertEpisode(ctx, tx, row)
		return err
	})
	if err != nil {
		return models.Episode{}, err
	}
	row.ID = id
	return row, nil
}

// SearchEpisodes returns episodes whose query embedding is nearest to
// query by cosine distance, gated to at least minSimilarity (1 - cosine
// distance). minSimilarity <= 0 uses
// the configured default.
func (t *Tiers) SearchEpisodes(ctx context.Context, query string, topK int, minSimilarity float64) ([]models.Episode, error) {
	if minSimilarity <= 0 {
		minSimilarity = t.episodeMinSim
	}
	vec, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var candidates []models.Episode
	err = t.pool.WithConn(ctx, func(ctx context.Context, conn database.Querier) error {
		var err error
		candidates, err = database.SearchEpisodesByEmbedding(ctx, conn, vec, topK*3+topK)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.Episode, 0, topK)
	for _, e := range candidates {
		if cosineSimilarity(vec, e.QueryEmbedding) < minSimilarity {
			continue
		}
		out = append(out, e)
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

func cosineSimilarity(a, b models.Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
