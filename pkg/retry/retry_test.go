package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-labs/cogmem/pkg/models"
)

func testCfg() Config {
	return Config{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2}
}

func TestDoSucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testCfg(), "embedding", nil, nil, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testCfg(), "embedding", nil, AlwaysRetryable, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoReturnsTerminalErrorAfterExhaustingAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testCfg(), "embedding", nil, AlwaysRetryable, func(context.Context) error {
		calls++
		return errors.New("permanently down")
	})
	require.Error(t, err)
	assert.Equal(t, testCfg().MaxAttempts, calls)
}

func TestDoStopsImmediatelyOnNonRetryableError(t *testing.T) {
	sentinel := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), testCfg(), "judge", nil, func(error) bool { return false }, func(context.Context) error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, sentinel)
}

func TestDoRecordsOnlyFailedAttempts(t *testing.T) {
	var rows []models.RetryRow
	record := func(_ context.Context, row models.RetryRow) error {
		rows = append(rows, row)
		return nil
	}

	calls := 0
	_ = Do(context.Background(), testCfg(), "embedding", record, AlwaysRetryable, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	// One failure followed by one success must produce exactly one retry
	// row — the eventual successful attempt is never logged.
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Succeeded)
	assert.Equal(t, 1, rows[0].Attempt)
}
