package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/tarsy-labs/cogmem/pkg/cogmemerr"
	"github.com/tarsy-labs/cogmem/pkg/models"
)

// InsertRawTurn appends one immutable L0 dialogue turn.
func InsertRawTurn(ctx context.Context, q Querier, t models.RawTurn) (int64, error) {
	meta, err := marshalMetadata(t.Metadata)
	if err != nil {
		return 0, err
	}
	var id int64
	err = q.QueryRow(ctx, `
		INSERT INTO raw_turns (session_id, speaker, content, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		t.SessionID, t.Speaker, t.Content, meta,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert raw_turn: %v", cogmemerr.ErrStorage, err)
	}
	return id, nil
}

// ListRawTurnsBySession returns a session's raw turns in chronological
// order.
func ListRawTurnsBySession(ctx context.Context, q Querier, sessionID string) ([]models.RawTurn, error) {
	rows, err := q.Query(ctx, `
		SELECT id, session_id, speaker, content, created_at, metadata
		FROM raw_turns WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: list raw_turns: %v", cogmemerr.ErrStorage, err)
	}
	defer rows.Close()

	var out []models.RawTurn
	for rows.Next() {
		var t models.RawTurn
		var meta []byte
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Speaker, &t.Content, &t.CreatedAt, &meta); err != nil {
			return nil, fmt.Errorf("%w: scan raw_turn: %v", cogmemerr.ErrStorage, err)
		}
		t.Metadata, err = unmarshalMetadata(meta)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertInsight persists one L2 compressed semantic unit. Insights are
// read-only after creation.
func InsertInsight(ctx context.Context, q Querier, in models.Insight) (int64, error) {
	if len(in.Embedding) != models.EmbeddingDim {
		return 0, cogmemerr.Validation("embedding", "must be exactly EmbeddingDim long")
	}
	if len(in.SourceIDs) == 0 {
		return 0, cogmemerr.Validation("source_ids", "must be non-empty")
	}
	meta, err := marshalMetadata(in.Metadata)
	if err != nil {
		return 0, err
	}
	var id int64
	err = q.QueryRow(ctx, `
		INSERT INTO insights (content, embedding, source_ids, metadata, fidelity_score, fidelity_warning)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		in.Content, pgvector.NewVector(in.Embedding), in.SourceIDs, meta, in.FidelityScore, in.FidelityWarning,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert insight: %v", cogmemerr.ErrStorage, err)
	}
	return id, nil
}

// scanInsight reads one insights row into a models.Insight.
func scanInsight(row interface {
	Scan(dest ...any) error
}) (models.Insight, error) {
	var in models.Insight
	var emb pgvector.Vector
	var meta []byte
	err := row.Scan(&in.ID, &in.Content, &emb, &in.CreatedAt, &in.SourceIDs, &meta, &in.FidelityScore, &in.FidelityWarning)
	if err != nil {
		return models.Insight{}, err
	}
	in.Embedding = emb.Slice()
	in.Metadata, err = unmarshalMetadata(meta)
	return in, err
}

const insightColumns = `id, content, embedding, created_at, source_ids, metadata, fidelity_score, fidelity_warning`

// SearchInsightsByEmbedding returns the topK insights nearest to query by
// cosine distance, ascending distance.
func SearchInsightsByEmbedding(ctx context.Context, q Querier, query models.Vector, topK int) ([]models.Insight, error) {
	if len(query) != models.EmbeddingDim {
		return nil, cogmemerr.Validation("query", "must be exactly EmbeddingDim long")
	}
	rows, err := q.Query(ctx, `
		SELECT `+insightColumns+`
		FROM insights ORDER BY embedding <=> $1 LIMIT $2`,
		pgvector.NewVector(query), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: search insights by embedding: %v", cogmemerr.ErrStorage, err)
	}
	defer rows.Close()
	return scanInsightRows(rows)
}

// SearchInsightsByText returns the topK insights ranked by full-text
// relevance against the tsvector-indexed content column.
func SearchInsightsByText(ctx context.Context, q Querier, query string, topK int) ([]models.Insight, error) {
	rows, err := q.Query(ctx, `
		SELECT `+insightColumns+`
		FROM insights
		WHERE content_tsv @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(content_tsv, plainto_tsquery('english', $1)) DESC
		LIMIT $2`, query, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: search insights by text: %v", cogmemerr.ErrStorage, err)
	}
	defer rows.Close()
	return scanInsightRows(rows)
}

// ListRecentInsights returns the most recently created insights, newest
// first, optionally narrowed by a fidelity floor and creation-time
// bounds — the default listing for memory://l2-insights when no query
// text is supplied.
func ListRecentInsights(ctx context.Context, q Querier, limit int, fidelityMin *float64, createdAfter, createdBefore *time.Time) ([]models.Insight, error) {
	query := `SELECT ` + insightColumns + ` FROM insights WHERE 1=1`
	var args []any
	if fidelityMin != nil {
		args = append(args, *fidelityMin)
		query += fmt.Sprintf(" AND fidelity_score >= $%d", len(args))
	}
	if createdAfter != nil {
		args = append(args, *createdAfter)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if createdBefore != nil {
		args = append(args, *createdBefore)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list recent insights: %v", cogmemerr.ErrStorage, err)
	}
	defer rows.Close()
	return scanInsightRows(rows)
}

func scanInsightRows(rows pgx.Rows) ([]models.Insight, error) {
	var out []models.Insight
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan insight: %v", cogmemerr.ErrStorage, err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// UpsertWorkingItem inserts a new working-memory row or, when id is
// non-zero, refreshes content/importance/last_accessed for an existing one.
func UpsertWorkingItem(ctx context.Context, q Querier, w models.WorkingItem) (int64, error) {
	meta, err := marshalMetadata(w.Metadata)
	if err != nil {
		return 0, err
	}
	if w.ID == 0 {
		var id int64
		err = q.QueryRow(ctx, `
			INSERT INTO working_items (session_id, content, importance, metadata)
			VALUES ($1, $2, $3, $4)
			RETURNING id`, w.SessionID, w.Content, w.Importance, meta,
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("%w: insert working_item: %v", cogmemerr.ErrStorage, err)
		}
		return id, nil
	}
	_, err = q.Exec(ctx, `
		UPDATE working_items
		SET content = $2, importance = $3, metadata = $4, last_accessed = now()
		WHERE id = $1`, w.ID, w.Content, w.Importance, meta)
	if err != nil {
		return 0, fmt.Errorf("%w: update working_item: %v", cogmemerr.ErrStorage, err)
	}
	return w.ID, nil
}

// TouchWorkingItem refreshes last_accessed for a working item read by the
// retrieval path, implementing the LRU half of the eviction policy.
func TouchWorkingItem(ctx context.Context, q Querier, id int64) error {
	_, err := q.Exec(ctx, `UPDATE working_items SET last_accessed = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: touch working_item: %v", cogmemerr.ErrStorage, err)
	}
	return nil
}

// ListWorkingItemsBySession returns a session's working items ordered by
// last_accessed ascending — the eviction candidate order.
func ListWorkingItemsBySession(ctx context.Context, q Querier, sessionID string) ([]models.WorkingItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, session_id, content, importance, created_at, last_accessed, metadata
		FROM working_items WHERE session_id = $1 ORDER BY last_accessed ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: list working_items: %v", cogmemerr.ErrStorage, err)
	}
	defer rows.Close()

	var out []models.WorkingItem
	for rows.Next() {
		var w models.WorkingItem
		var meta []byte
		if err := rows.Scan(&w.ID, &w.SessionID, &w.Content, &w.Importance, &w.CreatedAt, &w.LastAccessed, &meta); err != nil {
			return nil, fmt.Errorf("%w: scan working_item: %v", cogmemerr.ErrStorage, err)
		}
		w.Metadata, err = unmarshalMetadata(meta)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeleteWorkingItem removes a working-memory row. Eviction of a critical
// item must go through ArchiveWorkingItem instead; this alone drops the
// row without an archive trail.
func DeleteWorkingItem(ctx context.Context, q Querier, id int64) error {
	_, err := q.Exec(ctx, `DELETE FROM working_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete working_item: %v", cogmemerr.ErrStorage, err)
	}
	return nil
}

// ArchiveWorkingItem atomically moves a working item to stale_items and
// deletes it from working_items within the same transaction, satisfying
// the archive-before-delete invariant. Callers must invoke this
// inside Pool.WithTx.
func ArchiveWorkingItem(ctx context.Context, tx Querier, w models.WorkingItem, reason models.StaleReason) (int64, error) {
	meta, err := marshalMetadata(w.Metadata)
	if err != nil {
		return 0, err
	}
	var staleID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO stale_items (working_item_id, session_id, content, importance, stale_reason, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		w.ID, w.SessionID, w.Content, w.Importance, string(reason), meta,
	).Scan(&staleID)
	if err != nil {
		return 0, fmt.Errorf("%w: insert stale_item: %v", cogmemerr.ErrStorage, err)
	}
	if err := DeleteWorkingItem(ctx, tx, w.ID); err != nil {
		return 0, err
	}
	return staleID, nil
}

// ListAllWorkingItems returns every working-memory row across all
// sessions, most recently accessed last — the default listing for
// memory://working-memory, which takes no session_id filter.
func ListAllWorkingItems(ctx context.Context, q Querier) ([]models.WorkingItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, session_id, content, importance, created_at, last_accessed, metadata
		FROM working_items ORDER BY last_accessed ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list working_items: %v", cogmemerr.ErrStorage, err)
	}
	defer rows.Close()
	return scanWorkingItemRows(rows)
}

func scanWorkingItemRows(rows pgx.Rows) ([]models.WorkingItem, error) {
	var out []models.WorkingItem
	for rows.Next() {
		var w models.WorkingItem
		var meta []byte
		if err := rows.Scan(&w.ID, &w.SessionID, &w.Content, &w.Importance, &w.CreatedAt, &w.LastAccessed, &meta); err != nil {
			return nil, fmt.Errorf("%w: scan working_item: %v", cogmemerr.ErrStorage, err)
		}
		m, err := unmarshalMetadata(meta)
		if err != nil {
			return nil, err
		}
		w.Metadata = m
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListStaleItemsBySession returns a session's archived working items,
// oldest first.
func ListStaleItemsBySession(ctx context.Context, q Querier, sessionID string) ([]models.StaleItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, working_item_id, session_id, content, importance, stale_reason, archived_at, metadata
		FROM stale_items WHERE session_id = $1 ORDER BY archived_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: list stale_items: %v", cogmemerr.ErrStorage, err)
	}
	defer rows.Close()

	var out []models.StaleItem
	for rows.Next() {
		var s models.StaleItem
		var meta []byte
		var reason string
		if err := rows.Scan(&s.ID, &s.WorkingItemID, &s.SessionID, &s.Content, &s.Importance, &reason, &s.ArchivedAt, &meta); err != nil {
			return nil, fmt.Errorf("%w: scan stale_item: %v", cogmemerr.ErrStorage, err)
		}
		s.StaleReason = models.StaleReason(reason)
		s.Metadata, err = unmarshalMetadata(meta)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListAllStaleItems returns every archived working item across all
// sessions, oldest first — the default listing for
// memory://stale-memory when no session scoping applies.
func ListAllStaleItems(ctx context.Context, q Querier) ([]models.StaleItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, working_item_id, session_id, content, importance, stale_reason, archived_at, metadata
		FROM stale_items ORDER BY archived_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list stale_items: %v", cogmemerr.ErrStorage, err)
	}
	defer rows.Close()
	return scanStaleItemRows(rows)
}

func scanStaleItemRows(rows pgx.Rows) ([]models.StaleItem, error) {
	var out []models.StaleItem
	for rows.Next() {
		var s models.StaleItem
		var meta []byte
		var reason string
		if err := rows.Scan(&s.ID, &s.WorkingItemID, &s.SessionID, &s.Content, &s.Importance, &reason, &s.ArchivedAt, &meta); err != nil {
			return nil, fmt.Errorf("%w: scan stale_item: %v", cogmemerr.ErrStorage, err)
		}
		s.StaleReason = models.StaleReason(reason)
		m, err := unmarshalMetadata(meta)
		if err != nil {
			return nil, err
		}
		s.Metadata = m
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListAllRawTurns returns up to limit raw dialogue turns across all
// sessions, newest first — the default listing for memory://l0-raw when
// no session_id filter is supplied. It applies no time-range filter.
func ListAllRawTurns(ctx context.Context, q Querier, limit int) ([]models.RawTurn, error) {
	rows, err := q.Query(ctx, `
		SELECT id, session_id, speaker, content, created_at, metadata
		FROM raw_turns ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list raw_turns: %v", cogmemerr.ErrStorage, err)
	}
	defer rows.Close()

	var out []models.RawTurn
	for rows.Next() {
		var t models.RawTurn
		var meta []byte
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Speaker, &t.Content, &t.CreatedAt, &meta); err != nil {
			return nil, fmt.Errorf("%w: scan raw_turn: %v", cogmemerr.ErrStorage, err)
		}
		m, err := unmarshalMetadata(meta)
		if err != nil {
			return nil, err
		}
		t.Metadata = m
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertEpisode persists a durable record of a retrieval event keyed by
// the query embedding that produced it.
func InsertEpisode(ctx context.Context, q Querier, e models.Episode) (int64, error) {
	if len(e.QueryEmbedding) != models.EmbeddingDim {
		return 0, cogmemerr.Validation("query_embedding", "must be exactly EmbeddingDim long")
	}
	meta, err := marshalMetadata(e.Metadata)
	if err != nil {
		return 0, err
	}
	var id int64
	err = q.QueryRow(ctx, `
		INSERT INTO episodes (session_id, query_text, query_embedding, outcome_summary, reward, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		e.SessionID, e.QueryText, pgvector.NewVector(e.QueryEmbedding), e.OutcomeSummary, e.Reward, meta,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert episode: %v", cogmemerr.ErrStorage, err)
	}
	return id, nil
}

// SearchEpisodesByEmbedding returns the topK episodes whose query
// embedding is nearest to query by cosine distance, used as the
// similarity gate before an episode is surfaced in retrieval.
func SearchEpisodesByEmbedding(ctx context.Context, q Querier, query models.Vector, topK int) ([]models.Episode, error) {
	if len(query) != models.EmbeddingDim {
		return nil, cogmemerr.Validation("query", "must be exactly EmbeddingDim long")
	}
	rows, err := q.Query(ctx, `
		SELECT id, session_id, query_text, query_embedding, outcome_summary, reward, created_at, metadata
		FROM episodes ORDER BY query_embedding <=> $1 LIMIT $2`,
		pgvector.NewVector(query), topK)
	if err != nil {
		return nil, fmt.Errorf("%w: search episodes: %v", cogmemerr.ErrStorage, err)
	}
	defer rows.Close()

	var out []models.Episode
	for rows.Next() {
		var e models.Episode
		var emb pgvector.Vector
		var meta []byte
		if err := rows.Scan(&e.ID, &e.SessionID, &e.QueryText, &emb, &e.OutcomeSummary, &e.Reward, &e.CreatedAt, &meta); err != nil {
			return nil, fmt.Errorf("%w: scan episode: %v", cogmemerr.ErrStorage, err)
		}
		e.QueryEmbedding = emb.Slice()
		e.Metadata, err = unmarshalMetadata(meta)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal metadata: %v", cogmemerr.ErrValidation, err)
	}
	return b, nil
}

func unmarshalMetadata(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: unmarshal metadata: %v", cogmemerr.ErrStorage, err)
	}
	return m, nil
}
