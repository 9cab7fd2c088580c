package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestStartStopWithNoJobsConfiguredReturnsPromptly(t *testing.T) {
	s := New(Config{}, nil, nil, nil, nil)
	s.Start(context.Background())

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return for a scheduler with no configured jobs")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	s := New(Config{}, nil, nil, nil, nil)
	s.Start(context.Background())
	s.Start(context.Background()) // must not replace cancel/done or hang
	s.Stop()
}

func TestStopWithoutStartIsNoOp(t *testing.T) {
	s := New(Config{}, nil, nil, nil, nil)
	s.Stop() // cancel is nil; must return immediately, not panic
}
