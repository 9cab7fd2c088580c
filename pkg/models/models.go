// Package models holds the shared row/struct types for the tiered memory
// model, the property graph, and the operational log tables.
// These are plain structs; the persistence layer (pkg/database) is the
// only package that turns them into SQL.
package models

import "time"

// EmbeddingDim is the fixed dimensionality enforced at every embedding
// boundary.
const EmbeddingDim = 1536

// Vector is a fixed-dimension embedding. Validated to EmbeddingDim at the
// client boundary, never elsewhere.
type Vector []float32

// RawTurn is an L0 immutable dialogue turn.
type RawTurn struct {
	ID        int64
	SessionID string
	Speaker   string
	Content   string
	CreatedAt time.Time
	Metadata  map[string]any
}

// Insight is an L2 compressed semantic unit.
type Insight struct {
	ID              int64
	Content         string
	Embedding       Vector
	CreatedAt       time.Time
	SourceIDs       []int64
	Metadata        map[string]any
	FidelityScore   *float64
	FidelityWarning bool
}

// WorkingItem is a bounded, LRU+importance evicted working-memory row.
type WorkingItem struct {
	ID           int64
	SessionID    string
	Content      string
	Importance   float64
	CreatedAt    time.Time
	LastAccessed time.Time
	Metadata     map[string]any
}

// Episode is a durable record of a prior retrieval event, keyed by the
// query embedding that produced it.
type Episode struct {
	ID             int64
	SessionID      string
	QueryText      string
	QueryEmbedding Vector
	OutcomeSummary string
	Reward         *float64
	CreatedAt      time.Time
	Metadata       map[string]any
}

// StaleReason enumerates why a working item was archived.
type StaleReason string

const (
	StaleReasonLRUEviction   StaleReason = "lru_eviction"
	StaleReasonManualArchive StaleReason = "manual_archive"
)

// StaleItem is an append-only archive row for an evicted working item.
type StaleItem struct {
	ID            int64
	WorkingItemID int64
	SessionID     string
	Content       string
	Importance    float64
	StaleReason   StaleReason
	ArchivedAt    time.Time
	Metadata      map[string]any
}

// GroundTruthQuery is a labeled IRR benchmark query, scored independently
// by two judge configurations.
type GroundTruthQuery struct {
	ID             int64
	QueryText      string
	PromptVersion  string
	Judge1Scores   []float64
	Judge2Scores   []float64
	PerQueryKappa  *float64
	HumanOverride  bool
	OverrideReason string
	CreatedAt      time.Time
}

// ValidationStatus is the outcome of an IRR validation run.
type ValidationStatus string

const (
	ValidationPassed               ValidationStatus = "passed"
	ValidationContingencyTriggered ValidationStatus = "contingency_triggered"
)

// ValidationResult is a persisted IRR validation sweep outcome.
type ValidationResult struct {
	ID                    int64
	RunAt                 time.Time
	PromptVersion         string
	MacroKappa            float64
	MicroKappa            float64
	WilcoxonStatistic     *float64
	WilcoxonPValue        *float64
	HighDisagreementCount int
	Status                ValidationStatus
	Recommendation        string
}

// GraphNode is a property-graph node, uniquely identified by (label, name).
type GraphNode struct {
	ID         string
	Label      string
	Name       string
	Properties map[string]any
	CreatedAt  time.Time
}

// GraphEdge is a directed, weighted, typed property-graph edge, unique per
// (source, target, relation).
type GraphEdge struct {
	ID         string
	SourceID   string
	TargetID   string
	Relation   string
	Weight     float64
	Properties map[string]any
	CreatedAt  time.Time
}

// CostRow records a single external-API cost observation.
type CostRow struct {
	ID         int64
	APIName    string
	OccurredAt time.Time
	CostUSD    float64
	Metadata   map[string]any
}

// RetryRow records one attempt — successful or not — of an external call
// under retry.
type RetryRow struct {
	ID         int64
	APIName    string
	Attempt    int
	Succeeded  bool
	ErrorKind  string
	OccurredAt time.Time
}

// EvaluationRow records one judge evaluation and whether it triggered
// reflection.
type EvaluationRow struct {
	ID            int64
	SessionID     string
	InsightID     *int64
	QueryText     string
	AnswerText    string
	Reward        float64
	Rationale     string
	Tokens        int64
	CostUSD       float64
	Reflected     bool
	EpisodeID     *int64
	PromptVersion string
	CreatedAt     time.Time
}

// FallbackStatus enumerates the two states a fallback status row can
// record.
type FallbackStatus string

const (
	FallbackActive    FallbackStatus = "active"
	FallbackRecovered FallbackStatus = "recovered"
)

// FallbackStatusRow records a fallback controller state transition.
type FallbackStatusRow struct {
	ID         int64
	Component  string
	Status     FallbackStatus
	Reason     string
	OccurredAt time.Time
}

// BudgetAlertType enumerates the budget-monitor alert severities.
type BudgetAlertType string

const (
	BudgetAlertUnder    BudgetAlertType = "under"
	BudgetAlertWarning  BudgetAlertType = "warning"
	BudgetAlertExceeded BudgetAlertType = "exceeded"
)

// BudgetAlertRow records a single per-day-deduplicated budget alert.
type BudgetAlertRow struct {
	ID           int64
	AlertDate    time.Time
	AlertType    BudgetAlertType
	ProjectedUSD float64
	ThresholdUSD float64
	CreatedAt    time.Time
}

// GoldenQuery is a fixed retrieval-quality benchmark query with a known
// set of relevant insight ids and a recorded baseline precision@5,
// grouped by query_type for the per-category drift breakdown.
type GoldenQuery struct {
	ID                 int64
	QueryText          string
	QueryType          string
	ExpectedInsightIDs []int64
	BaselinePrecision  float64
	CreatedAt          time.Time
}
