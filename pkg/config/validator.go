package config

import "fmt"

// validate checks every resolved value against its documented range.
// Weights must sum to 1; the reward threshold, budget warning fraction,
// critical threshold, graph depths and variant count have bounded ranges;
// everything else just needs to be positive.
func validate(cfg *Config) error {
	if cfg.WorkingMemoryCapacity <= 0 {
		return &FieldError{Field: "memory.working.capacity", Err: fmt.Errorf("must be positive")}
	}
	if cfg.RRFK <= 0 {
		return &FieldError{Field: "retrieval.rrf_k", Err: fmt.Errorf("must be positive")}
	}
	sum := cfg.VectorWeight + cfg.LexicalWeight
	if sum < 0.999 || sum > 1.001 {
		return &FieldError{Field: "retrieval.{vector_weight,lexical_weight}", Err: fmt.Errorf("must sum to 1, got %v", sum)}
	}
	if cfg.RetrievalTopK <= 0 {
		return &FieldError{Field: "retrieval.top_k", Err: fmt.Errorf("must be positive")}
	}
	if cfg.ExpansionNumVariants <= 0 {
		return &FieldError{Field: "expansion.num_variants", Err: fmt.Errorf("must be positive")}
	}
	if cfg.RewardThreshold < -1 || cfg.RewardThreshold > 1 {
		return &FieldError{Field: "evaluation.reward_threshold", Err: fmt.Errorf("must be in [-1,1]")}
	}
	if cfg.RetryMaxAttempts <= 0 {
		return &FieldError{Field: "retry.max_attempts", Err: fmt.Errorf("must be positive")}
	}
	if cfg.FallbackHealthcheckInterval <= 0 {
		return &FieldError{Field: "fallback.healthcheck_interval_seconds", Err: fmt.Errorf("must be positive")}
	}
	if cfg.BudgetMonthlyLimitUSD <= 0 {
		return &FieldError{Field: "budget.monthly_limit_usd", Err: fmt.Errorf("must be positive")}
	}
	if cfg.BudgetWarningFraction <= 0 || cfg.BudgetWarningFraction > 1 {
		return &FieldError{Field: "budget.warning_fraction", Err: fmt.Errorf("must be in (0,1]")}
	}
	if cfg.GraphMaxBFSDepth <= 0 || cfg.GraphMaxBFSDepth > 5 {
		return &FieldError{Field: "graph.max_bfs_depth", Err: fmt.Errorf("must be in [1,5]")}
	}
	if cfg.GraphMaxPathDepth <= 0 || cfg.GraphMaxPathDepth > 10 {
		return &FieldError{Field: "graph.max_path_depth", Err: fmt.Errorf("must be in [1,10]")}
	}
	if cfg.ExpansionNumVariants < 2 || cfg.ExpansionNumVariants > 5 {
		return &FieldError{Field: "expansion.num_variants", Err: fmt.Errorf("must be in [2,5]")}
	}
	if cfg.WorkingCriticalThreshold <= 0 || cfg.WorkingCriticalThreshold > 1 {
		return &FieldError{Field: "memory.working.critical_threshold", Err: fmt.Errorf("must be in (0,1]")}
	}
	return nil
}
