package config

import "time"

// DefaultConfig returns the built-in configuration applied for every
// value the operator's YAML leaves unset.
func DefaultConfig() *Config {
	return &Config{
		WorkingMemoryCapacity:       10,
		WorkingCriticalThreshold:    0.8,
		RRFK:                        60,
		VectorWeight:                0.7,
		LexicalWeight:               0.3,
		RetrievalTopK:               5,
		ExpansionNumVariants:        3,
		RewardThreshold:             0.3,
		JudgeModelID:                "gpt-4o-mini",
		JudgePromptVersion:          "v1",
		JudgeMaxTokens:              500,
		RetryMaxAttempts:            4,
		RetryInitialInterval:        1 * time.Second,
		RetryMaxInterval:            8 * time.Second,
		RetryMultiplier:             2.0,
		RetryJitterPct:              20,
		FallbackHealthcheckInterval: 15 * time.Minute,
		BudgetMonthlyLimitUSD:       100.0,
		BudgetWarningFraction:       0.8,
		GraphMaxBFSDepth:            5,
		GraphMaxPathDepth:           10,
		GraphPathSearchTimeout:      1 * time.Second,
		IRRSweepInterval:            24 * time.Hour,
		BudgetAggregateInterval:     1 * time.Hour,
		ShutdownDeadline:            10 * time.Second,
	}
}
