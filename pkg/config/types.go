package config

import "time"

// YAMLConfig mirrors the on-disk cogmem.yaml structure.
// Pointers distinguish "unset" from "zero value" so Initialize can
// layer built-in defaults under whatever the operator actually wrote.
type YAMLConfig struct {
	Memory     *MemoryConfig     `yaml:"memory"`
	Retrieval  *RetrievalConfig  `yaml:"retrieval"`
	Expansion  *ExpansionConfig  `yaml:"expansion"`
	Evaluation *EvaluationConfig `yaml:"evaluation"`
	Retry      *RetryConfig      `yaml:"retry"`
	Fallback   *FallbackConfig   `yaml:"fallback"`
	Budget     *BudgetConfig     `yaml:"budget"`
	Graph      *GraphConfig      `yaml:"graph"`
	Scheduler  *SchedulerConfig  `yaml:"scheduler"`
}

// MemoryConfig bounds the working-memory tier.
type MemoryConfig struct {
	Working *WorkingMemoryConfig `yaml:"working"`
}

// WorkingMemoryConfig holds the LRU+importance eviction capacity.
type WorkingMemoryConfig struct {
	Capacity          int     `yaml:"capacity,omitempty"`
	CriticalThreshold float64 `yaml:"critical_threshold,omitempty"`
}

// RetrievalConfig tunes the hybrid-search fusion stage.
type RetrievalConfig struct {
	RRFK          int     `yaml:"rrf_k,omitempty"`
	VectorWeight  float64 `yaml:"vector_weight,omitempty"`
	LexicalWeight float64 `yaml:"lexical_weight,omitempty"`
	TopK          int     `yaml:"top_k,omitempty"`
}

// ExpansionConfig tunes multi-query fusion.
type ExpansionConfig struct {
	NumVariants int `yaml:"num_variants,omitempty"`
}

// EvaluationConfig tunes the judge/reflection pipeline.
type EvaluationConfig struct {
	ModelID         string  `yaml:"model_id,omitempty"`
	RewardThreshold float64 `yaml:"reward_threshold,omitempty"`
	PromptVersion   string  `yaml:"prompt_version,omitempty"`
	MaxTokens       int     `yaml:"max_tokens,omitempty"`
}

// RetryConfig tunes the retry/backoff decorator.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts,omitempty"`
	InitialInterval time.Duration `yaml:"initial_interval,omitempty"`
	MaxInterval     time.Duration `yaml:"max_interval,omitempty"`
	Multiplier      float64       `yaml:"multiplier,omitempty"`
	JitterPct       float64       `yaml:"jitter_pct,omitempty"`
}

// FallbackConfig tunes the fallback controller's health-ping cadence.
type FallbackConfig struct {
	HealthcheckIntervalSeconds int `yaml:"healthcheck_interval_seconds,omitempty"`
}

// BudgetConfig tunes the budget monitor's projection and alert thresholds.
type BudgetConfig struct {
	MonthlyLimitUSD float64 `yaml:"monthly_limit_usd,omitempty"`
	WarningFraction float64 `yaml:"warning_fraction,omitempty"`
}

// GraphConfig tunes the graph store's bounded traversal.
type GraphConfig struct {
	MaxBFSDepth       int           `yaml:"max_bfs_depth,omitempty"`
	MaxPathDepth      int           `yaml:"max_path_depth,omitempty"`
	PathSearchTimeout time.Duration `yaml:"path_search_timeout,omitempty"`
}

// SchedulerConfig tunes the background maintenance loop's cadences.
type SchedulerConfig struct {
	IRRSweepIntervalSeconds        int           `yaml:"irr_sweep_interval_seconds,omitempty"`
	BudgetAggregateIntervalSeconds int           `yaml:"budget_aggregate_interval_seconds,omitempty"`
	ShutdownDeadline               time.Duration `yaml:"shutdown_deadline,omitempty"`
}

// Config is the fully resolved, validated configuration handed to every
// component constructor. Unlike YAMLConfig every field here is concrete —
// defaults have already been applied.
type Config struct {
	WorkingMemoryCapacity       int
	WorkingCriticalThreshold    float64
	RRFK                        int
	VectorWeight                float64
	LexicalWeight               float64
	RetrievalTopK               int
	ExpansionNumVariants        int
	RewardThreshold             float64
	JudgeModelID                string
	JudgePromptVersion          string
	JudgeMaxTokens              int
	RetryMaxAttempts            int
	RetryInitialInterval        time.Duration
	RetryMaxInterval            time.Duration
	RetryMultiplier             float64
	RetryJitterPct              float64
	FallbackHealthcheckInterval time.Duration
	BudgetMonthlyLimitUSD       float64
	BudgetWarningFraction       float64
	GraphMaxBFSDepth            int
	GraphMaxPathDepth           int
	GraphPathSearchTimeout      time.Duration
	IRRSweepInterval            time.Duration
	BudgetAggregateInterval     time.Duration
	ShutdownDeadline            time.Duration
}
