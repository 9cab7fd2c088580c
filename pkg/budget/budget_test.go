package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func mustDate(t *testing.T, year int, month time.Month, day int) time.Time {
	t.Helper()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestCheckStatusUnderBand(t *testing.T) {
	assert.Equal(t, StatusUnder, CheckStatus(50, 100, 0.8))
}

func TestCheckStatusAlertBand(t *testing.T) {
	assert.Equal(t, StatusAlert, CheckStatus(85, 100, 0.8))
}

func TestCheckStatusExceededBand(t *testing.T) {
	assert.Equal(t, StatusExceeded, CheckStatus(100, 100, 0.8))
	assert.Equal(t, StatusExceeded, CheckStatus(150, 100, 0.8))
}

func TestCheckStatusZeroLimitIsUnder(t *testing.T) {
	assert.Equal(t, StatusUnder, CheckStatus(1000, 0, 0.8))
}

func TestDaysInMonthHandlesLeapFebruary(t *testing.T) {
	leapFeb := mustDate(t, 2024, 2, 15)
	nonLeapFeb := mustDate(t, 2023, 2, 15)
	assert.Equal(t, 29, daysInMonth(leapFeb))
	assert.Equal(t, 28, daysInMonth(nonLeapFeb))
}
