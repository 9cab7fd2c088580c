// Package judge implements the deterministic text->(score, rationale)
// client: evaluate and reflect operations at temperature 0 against
// the fixed Relevance/Accuracy/Completeness rubric, with the same
// retry/parse-retry contract as the embedding client.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tarsy-labs/cogmem/pkg/cogmemerr"
	"github.com/tarsy-labs/cogmem/pkg/retry"
)

// Temperature is fixed at 0 for determinism.
const Temperature = 0.0

// MaxParseRetries bounds how many times an unparseable response is
// retried as a parse failure before the call becomes a terminal
// SchemaError.
const MaxParseRetries = 2

// Rubric weights: Relevance(0.4), Accuracy(0.4), Completeness(0.2).
const (
	WeightRelevance   = 0.4
	WeightAccuracy    = 0.4
	WeightCompletness = 0.2
)

// CostRecorder persists one cost observation.
type CostRecorder func(ctx context.Context, apiName string, costUSD float64) error

// EvalResult is the result of Evaluate.
type EvalResult struct {
	Reward    float64
	Reasoning string
	Tokens    int64
	CostUSD   float64
}

// Client is an HTTP client for an external judge LLM API, decorated with
// the shared retry wrapper.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	modelID     string
	maxTokens   int
	retryCfg    retry.Config
	recordCost  CostRecorder
	recordRetry retry.Recorder
}

// NewClient builds a judge client. baseURL and apiKey come from process
// environment.
func NewClient(baseURL, apiKey, modelID string, maxTokens int, retryCfg retry.Config, recordCost CostRecorder, recordRetry retry.Recorder) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     baseURL,
		apiKey:      apiKey,
		modelID:     modelID,
		maxTokens:   maxTokens,
		retryCfg:    retryCfg,
		recordCost:  recordCost,
		recordRetry: recordRetry,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

type evaluationPayload struct {
	Reward    float64 `json:"reward"`
	Reasoning string  `json:"reasoning"`
}

// Evaluate scores an (query, context, answer) triple against the fixed
// rubric. Terminal failure raises JudgeUnavailable so the fallback
// controller can observe it.
func (c *Client) Evaluate(ctx context.Context, query string, contextDocs []string, answer string) (EvalResult, error) {
	prompt := evaluationPrompt(query, contextDocs, answer)

	var out EvalResult
	parseFailures := 0
	err := retry.Do(ctx, c.retryCfg, "judge_evaluate", c.recordRetry, classifyJudgeErr, func(ctx context.Context) error {
		raw, tokens, cost, err := c.callAPI(ctx, prompt)
		if err != nil {
			return err
		}
		payload, perr := parseEvaluation(raw)
		if perr != nil {
			parseFailures++
			if parseFailures > MaxParseRetries {
				return permanent(fmt.Errorf("%w: %v", cogmemerr.ErrSchema, perr))
			}
			return fmt.Errorf("%w: %v", cogmemerr.ErrSchema, perr)
		}
		out = EvalResult{Reward: payload.Reward, Reasoning: payload.Reasoning, Tokens: tokens, CostUSD: cost}
		return nil
	})
	if err != nil {
		return EvalResult{}, fmt.Errorf("%w: %v", cogmemerr.ErrJudgeUnavailable, err)
	}

	if c.recordCost != nil {
		_ = c.recordCost(ctx, "judge_evaluate", out.CostUSD)
	}
	return out, nil
}

// Reflect produces a short verbal lesson for a low-reward interaction,
// invoked by the evaluation loop only when reward < threshold.
func (c *Client) Reflect(ctx context.Context, query, answer string, reward float64, reasoning string) (string, error) {
	prompt := reflectionPrompt(query, answer, reward, reasoning)

	var reflection string
	var costUSD float64
	err := retry.Do(ctx, c.retryCfg, "judge_reflect", c.recordRetry, classifyJudgeErr, func(ctx context.Context) error {
		raw, _, cost, err := c.callAPI(ctx, prompt)
		if err != nil {
			return err
		}
		reflection = strings.TrimSpace(raw)
		costUSD = cost
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", cogmemerr.ErrJudgeUnavailable, err)
	}

	if c.recordCost != nil {
		_ = c.recordCost(ctx, "judge_reflect", costUSD)
	}
	return reflection, nil
}

func (c *Client) callAPI(ctx context.Context, prompt string) (string, int64, float64, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.modelID,
		Temperature: Temperature,
		MaxTokens:   c.maxTokens,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: marshal judge request: %v", cogmemerr.ErrValidation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", 0, 0, fmt.Errorf("judge API unavailable: status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", 0, 0, permanent(fmt.Errorf("judge API rejected request: status %d", resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", 0, 0, permanent(fmt.Errorf("%w: decode judge response: %v", cogmemerr.ErrSchema, err))
	}
	if len(parsed.Choices) == 0 {
		return "", 0, 0, permanent(fmt.Errorf("%w: judge response had no choices", cogmemerr.ErrSchema))
	}

	costUSD := tokensToUSD(parsed.Usage.TotalTokens)
	return parsed.Choices[0].Message.Content, parsed.Usage.TotalTokens, costUSD, nil
}

func tokensToUSD(tokens int64) float64 {
	const usdPerMillionTokens = 3.0
	return float64(tokens) / 1_000_000 * usdPerMillionTokens
}

// jsonObjectPattern extracts the first {...} block from a response that
// may carry adjacent prose/whitespace.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

func parseEvaluation(raw string) (evaluationPayload, error) {
	match := jsonObjectPattern.FindString(raw)
	if match == "" {
		return evaluationPayload{}, fmt.Errorf("no JSON object found in judge response")
	}
	var payload evaluationPayload
	if err := json.Unmarshal([]byte(match), &payload); err != nil {
		return evaluationPayload{}, fmt.Errorf("unmarshal judge payload: %w", err)
	}
	if payload.Reward < -1 || payload.Reward > 1 {
		return evaluationPayload{}, fmt.Errorf("reward %v out of [-1,1]", payload.Reward)
	}
	return payload, nil
}

func evaluationPrompt(query string, contextDocs []string, answer string) string {
	var b strings.Builder
	b.WriteString("You are an exacting evaluator. Score the answer against the query and context ")
	b.WriteString("using the rubric Relevance(0.4), Accuracy(0.4), Completeness(0.2). ")
	b.WriteString("Respond with a single JSON object {\"reward\": <float -1..1>, \"reasoning\": <string>} and nothing else.\n\n")
	fmt.Fprintf(&b, "Query: %s\n\n", query)
	b.WriteString("Context:\n")
	for _, d := range contextDocs {
		fmt.Fprintf(&b, "- %s\n", d)
	}
	fmt.Fprintf(&b, "\nAnswer: %s\n", answer)
	return b.String()
}

func reflectionPrompt(query, answer string, reward float64, reasoning string) string {
	return fmt.Sprintf(
		"The following answer scored %.2f (below threshold) for reward reasoning: %q.\n"+
			"Query: %s\nAnswer: %s\n"+
			"Write one short, concrete, verbal lesson (1-2 sentences) that would help produce a better "+
			"answer next time a similar query arrives. Respond with the lesson text only.",
		reward, reasoning, query, answer)
}

// classifyJudgeErr reports whether err is worth retrying: transport
// timeouts and 5xx/429 are retryable; errors marked
// permanent (4xx, malformed response shape, parse failures past the
// parse-retry budget) are not.
func classifyJudgeErr(err error) bool {
	var perm *permanentError
	return !errors.As(err, &perm)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }
