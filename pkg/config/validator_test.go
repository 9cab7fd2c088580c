package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDefaultConfigPasses(t *testing.T) {
	assert.NoError(t, validate(DefaultConfig()))
}

func TestValidateRejectsWeightsNotSummingToOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VectorWeight = 0.9
	err := validate(cfg)
	assert.Error(t, err)
	assert.ErrorContains(t, err, "weight")
}

func TestValidateRejectsOutOfRangeRewardThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RewardThreshold = 2.0
	err := validate(cfg)
	assert.Error(t, err)
}

func TestValidateRejectsNonPositiveCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WorkingMemoryCapacity = 0
	err := validate(cfg)
	assert.Error(t, err)
}
