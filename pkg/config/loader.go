package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads cogmem.yaml from configDir, merges it over the
// built-in defaults, validates the result, and returns a ready-to-use
// Config. Missing configDir/cogmem.yaml is not an error — defaults alone
// are a valid configuration.
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)

	yamlCfg, err := loadYAML(configDir)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := applyYAML(cfg, yamlCfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	log.Info("configuration initialized",
		"working_memory_capacity", cfg.WorkingMemoryCapacity,
		"rrf_k", cfg.RRFK,
		"reward_threshold", cfg.RewardThreshold)
	return cfg, nil
}

func loadYAML(configDir string) (*YAMLConfig, error) {
	path := filepath.Join(configDir, "cogmem.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &YAMLConfig{}, nil
		}
		return nil, NewLoadError(path, err)
	}

	data = ExpandEnv(data)

	var yamlCfg YAMLConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	return &yamlCfg, nil
}

// applyYAML merges non-zero YAML fields over the built-in defaults
// in-place using mergo's override-merge.
func applyYAML(cfg *Config, y *YAMLConfig) error {
	merge := func(dst, src any) error {
		return mergo.Merge(dst, src, mergo.WithOverride)
	}

	if y.Memory != nil && y.Memory.Working != nil && y.Memory.Working.Capacity != 0 {
		cfg.WorkingMemoryCapacity = y.Memory.Working.Capacity
	}
	if y.Retrieval != nil {
		r := RetrievalConfig{
			RRFK:          cfg.RRFK,
			VectorWeight:  cfg.VectorWeight,
			LexicalWeight: cfg.LexicalWeight,
			TopK:          cfg.RetrievalTopK,
		}
		if err := merge(&r, y.Retrieval); err != nil {
			return fmt.Errorf("merge retrieval config: %w", err)
		}
		cfg.RRFK, cfg.VectorWeight, cfg.LexicalWeight, cfg.RetrievalTopK = r.RRFK, r.VectorWeight, r.LexicalWeight, r.TopK
	}
	if y.Expansion != nil && y.Expansion.NumVariants != 0 {
		cfg.ExpansionNumVariants = y.Expansion.NumVariants
	}
	if y.Evaluation != nil {
		if y.Evaluation.ModelID != "" {
			cfg.JudgeModelID = y.Evaluation.ModelID
		}
		if y.Evaluation.RewardThreshold != 0 {
			cfg.RewardThreshold = y.Evaluation.RewardThreshold
		}
		if y.Evaluation.PromptVersion != "" {
			cfg.JudgePromptVersion = y.Evaluation.PromptVersion
		}
	}
	if y.Retry != nil {
		r := RetryConfig{
			MaxAttempts:     cfg.RetryMaxAttempts,
			InitialInterval: cfg.RetryInitialInterval,
			MaxInterval:     cfg.RetryMaxInterval,
			Multiplier:      cfg.RetryMultiplier,
			JitterPct:       cfg.RetryJitterPct,
		}
		if err := merge(&r, y.Retry); err != nil {
			return fmt.Errorf("merge retry config: %w", err)
		}
		cfg.RetryMaxAttempts, cfg.RetryInitialInterval, cfg.RetryMaxInterval, cfg.RetryMultiplier, cfg.RetryJitterPct =
			r.MaxAttempts, r.InitialInterval, r.MaxInterval, r.Multiplier, r.JitterPct
	}
	if y.Fallback != nil && y.Fallback.HealthcheckIntervalSeconds != 0 {
		cfg.FallbackHealthcheckInterval = time.Duration(y.Fallback.HealthcheckIntervalSeconds) * time.Second
	}
	if y.Budget != nil {
		if y.Budget.MonthlyLimitUSD != 0 {
			cfg.BudgetMonthlyLimitUSD = y.Budget.MonthlyLimitUSD
		}
		if y.Budget.WarningFraction != 0 {
			cfg.BudgetWarningFraction = y.Budget.WarningFraction
		}
	}
	if y.Graph != nil {
		if y.Graph.MaxBFSDepth != 0 {
			cfg.GraphMaxBFSDepth = y.Graph.MaxBFSDepth
		}
		if y.Graph.MaxPathDepth != 0 {
			cfg.GraphMaxPathDepth = y.Graph.MaxPathDepth
		}
		if y.Graph.PathSearchTimeout != 0 {
			cfg.GraphPathSearchTimeout = y.Graph.PathSearchTimeout
		}
	}
	if y.Memory != nil && y.Memory.Working != nil && y.Memory.Working.CriticalThreshold != 0 {
		cfg.WorkingCriticalThreshold = y.Memory.Working.CriticalThreshold
	}
	if y.Evaluation != nil && y.Evaluation.MaxTokens != 0 {
		cfg.JudgeMaxTokens = y.Evaluation.MaxTokens
	}
	if y.Scheduler != nil {
		if y.Scheduler.IRRSweepIntervalSeconds != 0 {
			cfg.IRRSweepInterval = time.Duration(y.Scheduler.IRRSweepIntervalSeconds) * time.Second
		}
		if y.Scheduler.BudgetAggregateIntervalSeconds != 0 {
			cfg.BudgetAggregateInterval = time.Duration(y.Scheduler.BudgetAggregateIntervalSeconds) * time.Second
		}
		if y.Scheduler.ShutdownDeadline != 0 {
			cfg.ShutdownDeadline = y.Scheduler.ShutdownDeadline
		}
	}
	return nil
}
