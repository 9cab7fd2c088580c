// Package retry wraps an external API call with jittered exponential
// backoff, a pluggable retryable/terminal error classifier, and an audit
// trail of every attempt — the operational envelope's shared retry
// decorator. Both the embedding client and the judge client are built
// on top of Do rather than retrying ad hoc.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tarsy-labs/cogmem/pkg/cogmemerr"
	"github.com/tarsy-labs/cogmem/pkg/models"
)

// Classifier reports whether err is worth retrying. A nil err is never
// passed to a Classifier.
type Classifier func(err error) bool

// AlwaysRetryable retries any non-nil error until attempts are exhausted.
func AlwaysRetryable(error) bool { return true }

// Config carries the backoff shape for one Do call, mirroring
// config.RetryConfig so callers don't need to import pkg/config.
type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// JitterPct is the +/- multiplicative jitter applied to each computed
	// delay, expressed as a percentage (20 means +/-20%). Zero falls back
	// to backoff's own default randomization.
	JitterPct float64
}

// Recorder persists one retry attempt. Implemented by pkg/database's
// InsertRetryRow against a live Pool; tests can substitute a stub.
type Recorder func(ctx context.Context, row models.RetryRow) error

// terminalErr marks an error that exhausted its retry budget, prefixing
// the API name; Unwrap exposes the last attempt's error so errors.Is
// still matches the caller's own sentinel.
type terminalErr struct {
	apiName string
	last    error
}

func (e *terminalErr) Error() string {
	return fmt.Sprintf("%s: retries exhausted: %v", e.apiName, e.last)
}
func (e *terminalErr) Unwrap() error { return e.last }

// Do runs fn under exponential backoff, recording every attempt via
// record (if non-nil). It stops as soon as fn succeeds, classify reports
// an error as non-retryable, or MaxAttempts is reached — whichever comes
// first. A non-retryable error is returned as-is; an error that survives
// all attempts is wrapped so errors.Is(err, <terminal sentinel>) still
// works for the caller's own sentinel.
func Do(ctx context.Context, cfg Config, apiName string, record Recorder, classify Classifier, fn func(ctx context.Context) error) error {
	if classify == nil {
		classify = AlwaysRetryable
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.Multiplier = cfg.Multiplier
	if cfg.JitterPct > 0 {
		b.RandomizationFactor = cfg.JitterPct / 100
	}
	b.MaxElapsedTime = 0 // bounded by WithMaxRetries below, not wall clock
	bounded := backoff.WithMaxRetries(b, uint64(max(cfg.MaxAttempts-1, 0)))
	bounded.Reset()

	var lastErr error
	attempt := 0
	op := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}

		// A retry row is written only for a failed attempt; the eventual successful
		// attempt that ends the loop is never logged here, so a call that
		// fails k times then succeeds produces exactly k retry rows.
		if record != nil {
			_ = record(ctx, models.RetryRow{
				APIName:   apiName,
				Attempt:   attempt,
				Succeeded: false,
				ErrorKind: errorKind(err),
			})
		}

		lastErr = err
		if !classify(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(bounded, ctx))
	if err == nil {
		return nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return &terminalErr{apiName: apiName, last: lastErr}
}

func errorKind(err error) string {
	if err == nil {
		return ""
	}
	return cogmemerr.Kind(err)
}
