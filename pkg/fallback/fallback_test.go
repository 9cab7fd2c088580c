package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-labs/cogmem/pkg/cogmemerr"
)

func TestObserveErrorIgnoresNonJudgeSentinel(t *testing.T) {
	// A nil pool would panic if Activate were reached; observing a
	// non-matching error must short-circuit before touching storage.
	c := New(nil)
	activated, err := c.ObserveError(context.Background(), JudgeComponent, errors.New("some transport error"))
	require.NoError(t, err)
	assert.False(t, activated)
	assert.False(t, c.IsActive(JudgeComponent))
}

func TestObserveErrorIgnoresWrappedNonJudgeSentinel(t *testing.T) {
	c := New(nil)
	wrapped := cogmemerr.Validation("weights", "must sum to 1")
	activated, err := c.ObserveError(context.Background(), JudgeComponent, wrapped)
	require.NoError(t, err)
	assert.False(t, activated)
}

func TestIsActiveDefaultsToFalseForUnknownComponent(t *testing.T) {
	c := New(nil)
	assert.False(t, c.IsActive("never-seen-before"))
}

func TestHealthPingIsNoOpWhenNotActive(t *testing.T) {
	c := New(nil)
	calls := 0
	err := c.HealthPing(context.Background(), JudgeComponent, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, calls, "ping must not run while the component isn't active")
}
