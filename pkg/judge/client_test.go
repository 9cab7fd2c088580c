package judge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-labs/cogmem/pkg/retry"
)

func fastRetryConfig() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, Multiplier: 2}
}

func chatResponseWith(content string) chatResponse {
	resp := chatResponse{}
	resp.Choices = []struct {
		Message chatMessage `json:"message"`
	}{{Message: chatMessage{Role: "assistant", Content: content}}}
	resp.Usage.TotalTokens = 120
	return resp
}

func TestEvaluateReturnsRewardOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponseWith(`{"reward": 0.5, "reasoning": "good"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "judge-model", 500, fastRetryConfig(), nil, nil)
	out, err := c.Evaluate(context.Background(), "q", []string{"ctx"}, "a")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out.Reward, 1e-9)
	assert.Equal(t, "good", out.Reasoning)
}

func TestEvaluateToleratesProseAroundJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponseWith("Here is my evaluation:\n{\"reward\": -0.2, \"reasoning\": \"weak\"}\nthanks"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "judge-model", 500, fastRetryConfig(), nil, nil)
	out, err := c.Evaluate(context.Background(), "q", nil, "a")
	require.NoError(t, err)
	assert.InDelta(t, -0.2, out.Reward, 1e-9)
}

func TestEvaluateRetriesOnParseFailureThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			_ = json.NewEncoder(w).Encode(chatResponseWith("not json at all"))
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponseWith(`{"reward": 0.1, "reasoning": "ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "judge-model", 500, fastRetryConfig(), nil, nil)
	out, err := c.Evaluate(context.Background(), "q", nil, "a")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, out.Reward, 1e-9)
	assert.Equal(t, 2, attempts)
}

func TestEvaluateFailsTerminallyAfterParseRetryBudgetExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponseWith("still not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "judge-model", 500, fastRetryConfig(), nil, nil)
	_, err := c.Evaluate(context.Background(), "q", nil, "a")
	require.Error(t, err)
}

func TestEvaluateDoesNotRetryOn4xx(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "judge-model", 500, fastRetryConfig(), nil, nil)
	_, err := c.Evaluate(context.Background(), "q", nil, "a")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestEvaluateRetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponseWith(`{"reward": 0.9, "reasoning": "great"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "judge-model", 500, fastRetryConfig(), nil, nil)
	out, err := c.Evaluate(context.Background(), "q", nil, "a")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, out.Reward, 1e-9)
	assert.Equal(t, 2, attempts)
}

func TestReflectReturnsTrimmedText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponseWith("  be more specific next time.  \n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "judge-model", 500, fastRetryConfig(), nil, nil)
	reflection, err := c.Reflect(context.Background(), "q", "a", -0.5, "too vague")
	require.NoError(t, err)
	assert.Equal(t, "be more specific next time.", reflection)
}

func TestLocalEvaluatorScoresOverlapHeuristically(t *testing.T) {
	e := NewLocalEvaluator()
	out, err := e.Evaluate(context.Background(), "what is autonomy", []string{"autonomy is an emergent property"}, "autonomy is an emergent property of complex systems")
	require.NoError(t, err)
	assert.Greater(t, out.Reward, 0.0)
	assert.Zero(t, out.Tokens)
	assert.Zero(t, out.CostUSD)
}

func TestLocalEvaluatorScoresUnrelatedAnswerLow(t *testing.T) {
	e := NewLocalEvaluator()
	out, err := e.Evaluate(context.Background(), "what is autonomy", []string{"autonomy is an emergent property"}, "bananas are yellow fruit")
	require.NoError(t, err)
	assert.Less(t, out.Reward, 0.0)
}

func TestLocalEvaluatorReflectReturnsNonEmptyLesson(t *testing.T) {
	e := NewLocalEvaluator()
	reflection, err := e.Reflect(context.Background(), "q", "a", -0.4, "weak grounding")
	require.NoError(t, err)
	assert.NotEmpty(t, reflection)
}
