package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tarsy-labs/cogmem/pkg/cogmemerr"
	"github.com/tarsy-labs/cogmem/pkg/models"
)

// InsertCostRow records one external-API cost observation.
func InsertCostRow(ctx context.Context, q Querier, r models.CostRow) error {
	meta, err := marshalMetadata(r.Metadata)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO cost_log (api_name, cost_usd, metadata) VALUES ($1, $2, $3)`,
		r.APIName, r.CostUSD, meta)
	if err != nil {
		return fmt.Errorf("%w: insert cost_log: %v", cogmemerr.ErrStorage, err)
	}
	return nil
}

// SumCostSince totals cost_usd recorded on or after since, optionally
// filtered to one API — the aggregation the monthly projection is
// built from.
func SumCostSince(ctx context.Context, q Querier, since time.Time, apiName string) (float64, error) {
	var total float64
	var err error
	if apiName == "" {
		err = q.QueryRow(ctx, `SELECT COALESCE(SUM(cost_usd), 0) FROM cost_log WHERE occurred_at >= $1`, since).Scan(&total)
	} else {
		err = q.QueryRow(ctx, `SELECT COALESCE(SUM(cost_usd), 0) FROM cost_log WHERE occurred_at >= $1 AND api_name = $2`, since, apiName).Scan(&total)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: sum cost_log: %v", cogmemerr.ErrStorage, err)
	}
	return total, nil
}

// InsertRetryRow records one attempt of an external call under retry.
func InsertRetryRow(ctx context.Context, q Querier, r models.RetryRow) error {
	_, err := q.Exec(ctx, `
		INSERT INTO retry_log (api_name, attempt, succeeded, error_kind)
		VALUES ($1, $2, $3, $4)`, r.APIName, r.Attempt, r.Succeeded, r.ErrorKind)
	if err != nil {
		return fmt.Errorf("%w: insert retry_log: %v", cogmemerr.ErrStorage, err)
	}
	return nil
}

// InsertEvaluationRow records one judge evaluation and whether it
// triggered reflection.
func InsertEvaluationRow(ctx context.Context, q Querier, r models.EvaluationRow) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO evaluation_log (session_id, insight_id, query_text, answer_text, reward, rationale, tokens, cost_usd, reflected, episode_id, prompt_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		r.SessionID, r.InsightID, r.QueryText, r.AnswerText, r.Reward, r.Rationale, r.Tokens, r.CostUSD, r.Reflected, r.EpisodeID, r.PromptVersion,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert evaluation_log: %v", cogmemerr.ErrStorage, err)
	}
	return id, nil
}

// InsertFallbackStatusRow records a fallback controller state transition.
func InsertFallbackStatusRow(ctx context.Context, q Querier, r models.FallbackStatusRow) error {
	_, err := q.Exec(ctx, `
		INSERT INTO fallback_status_log (component, status, reason) VALUES ($1, $2, $3)`,
		r.Component, string(r.Status), r.Reason)
	if err != nil {
		return fmt.Errorf("%w: insert fallback_status_log: %v", cogmemerr.ErrStorage, err)
	}
	return nil
}

// LatestFallbackStatus returns the most recent status row for a
// component, or models.FallbackRecovered with a zero timestamp if the
// component has never transitioned.
func LatestFallbackStatus(ctx context.Context, q Querier, component string) (models.FallbackStatusRow, error) {
	var r models.FallbackStatusRow
	var status string
	err := q.QueryRow(ctx, `
		SELECT id, component, status, reason, occurred_at FROM fallback_status_log
		WHERE component = $1 ORDER BY occurred_at DESC LIMIT 1`, component,
	).Scan(&r.ID, &r.Component, &status, &r.Reason, &r.OccurredAt)
	if err != nil {
		return models.FallbackStatusRow{Component: component, Status: models.FallbackRecovered}, nil
	}
	r.Status = models.FallbackStatus(status)
	return r, nil
}

// InsertBudgetAlert records a budget alert, deduped per (date, alert_type)
// by the unique constraint; a duplicate insert is treated as a no-op.
func InsertBudgetAlert(ctx context.Context, q Querier, r models.BudgetAlertRow) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO budget_alerts (alert_date, alert_type, projected_usd, threshold_usd)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (alert_date, alert_type) DO NOTHING`,
		r.AlertDate, string(r.AlertType), r.ProjectedUSD, r.ThresholdUSD)
	if err != nil {
		return false, fmt.Errorf("%w: insert budget_alert: %v", cogmemerr.ErrStorage, err)
	}
	return tag.RowsAffected() > 0, nil
}

// InsertGroundTruthQuery persists one hand-labeled IRR benchmark query.
func InsertGroundTruthQuery(ctx context.Context, q Querier, g models.GroundTruthQuery) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO ground_truth_queries (query_text, prompt_version, judge1_scores, judge2_scores, per_query_kappa, human_override, override_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		g.QueryText, g.PromptVersion, g.Judge1Scores, g.Judge2Scores, g.PerQueryKappa, g.HumanOverride, g.OverrideReason,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert ground_truth_query: %v", cogmemerr.ErrStorage, err)
	}
	return id, nil
}

// ListGroundTruthQueriesByPromptVersion returns every benchmark query
// scored under a given judge prompt version, the pool an IRR sweep
// aggregates over.
func ListGroundTruthQueriesByPromptVersion(ctx context.Context, q Querier, promptVersion string) ([]models.GroundTruthQuery, error) {
	rows, err := q.Query(ctx, `
		SELECT id, query_text, prompt_version, judge1_scores, judge2_scores, per_query_kappa, human_override, override_reason, created_at
		FROM ground_truth_queries WHERE prompt_version = $1`, promptVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: list ground_truth_queries: %v", cogmemerr.ErrStorage, err)
	}
	defer rows.Close()

	var out []models.GroundTruthQuery
	for rows.Next() {
		var g models.GroundTruthQuery
		if err := rows.Scan(&g.ID, &g.QueryText, &g.PromptVersion, &g.Judge1Scores, &g.Judge2Scores, &g.PerQueryKappa, &g.HumanOverride, &g.OverrideReason, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan ground_truth_query: %v", cogmemerr.ErrStorage, err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// UpdateGroundTruthQueryKappa records the per-query kappa computed for a
// benchmark query after a validation sweep.
func UpdateGroundTruthQueryKappa(ctx context.Context, q Querier, id int64, kappa float64) error {
	_, err := q.Exec(ctx, `UPDATE ground_truth_queries SET per_query_kappa = $2 WHERE id = $1`, id, kappa)
	if err != nil {
		return fmt.Errorf("%w: update ground_truth_query kappa: %v", cogmemerr.ErrStorage, err)
	}
	return nil
}

// ListGoldenQueries returns every golden-test benchmark query, the set a
// retrieval-drift check runs against.
func ListGoldenQueries(ctx context.Context, q Querier) ([]models.GoldenQuery, error) {
	rows, err := q.Query(ctx, `
		SELECT id, query_text, query_type, expected_insight_ids, baseline_precision, created_at
		FROM golden_queries`)
	if err != nil {
		return nil, fmt.Errorf("%w: list golden_queries: %v", cogmemerr.ErrStorage, err)
	}
	defer rows.Close()

	var out []models.GoldenQuery
	for rows.Next() {
		var g models.GoldenQuery
		if err := rows.Scan(&g.ID, &g.QueryText, &g.QueryType, &g.ExpectedInsightIDs, &g.BaselinePrecision, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan golden_query: %v", cogmemerr.ErrStorage, err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// InsertValidationResult persists one IRR validation sweep outcome.
func InsertValidationResult(ctx context.Context, q Querier, v models.ValidationResult) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO validation_results
			(prompt_version, macro_kappa, micro_kappa, wilcoxon_statistic, wilcoxon_p_value, high_disagreement_count, status, recommendation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		v.PromptVersion, v.MacroKappa, v.MicroKappa, v.WilcoxonStatistic, v.WilcoxonPValue, v.HighDisagreementCount, string(v.Status), v.Recommendation,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert validation_result: %v", cogmemerr.ErrStorage, err)
	}
	return id, nil
}
