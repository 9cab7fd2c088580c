package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeWithoutConfigFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().WorkingMemoryCapacity, cfg.WorkingMemoryCapacity)
	assert.Equal(t, DefaultConfig().RRFK, cfg.RRFK)
}

func TestInitializeMergesUserYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
memory:
  working:
    capacity: 200
evaluation:
  reward_threshold: 0.6
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cogmem.yaml"), []byte(yamlContent), 0o644))

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.WorkingMemoryCapacity)
	assert.Equal(t, 0.6, cfg.RewardThreshold)
	// Unset fields still fall back to the built-in default.
	assert.Equal(t, DefaultConfig().RRFK, cfg.RRFK)
}

func TestInitializeOverridesJudgeModelID(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
evaluation:
  model_id: judge-model-2
  max_tokens: 800
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cogmem.yaml"), []byte(yamlContent), 0o644))

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "judge-model-2", cfg.JudgeModelID)
	assert.Equal(t, 800, cfg.JudgeMaxTokens)
}

func TestInitializeRejectsInvalidMergedConfig(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
evaluation:
  reward_threshold: 5.0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cogmem.yaml"), []byte(yamlContent), 0o644))

	_, err := Initialize(context.Background(), dir)
	assert.ErrorIs(t, err, ErrValidationFailed)
}
