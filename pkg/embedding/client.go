// Package embedding implements the deterministic text→vector client.
// Embeddings sit on the write critical path and have no
// fallback: a terminal failure here is always surfaced, never masked.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tarsy-labs/cogmem/pkg/cogmemerr"
	"github.com/tarsy-labs/cogmem/pkg/models"
	"github.com/tarsy-labs/cogmem/pkg/retry"
)

// ModelID is the fixed embeddings model this client targets. Changing it
// changes the embedding space; callers must re-embed existing rows
// out-of-band if they do.
const ModelID = "text-embedding-3-small"

// CostRecorder persists one cost observation. Wired to
// database.InsertCostRow by the caller that constructs a Client.
type CostRecorder func(ctx context.Context, apiName string, costUSD float64) error

// Client is an HTTP client for an external embeddings API, decorated with
// the shared retry wrapper.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	retryCfg    retry.Config
	recordCost  CostRecorder
	recordRetry retry.Recorder
}

// NewClient builds an embedding client. baseURL and apiKey are read from
// process environment by the caller before construction.
func NewClient(baseURL, apiKey string, retryCfg retry.Config, recordCost CostRecorder, recordRetry retry.Recorder) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     baseURL,
		apiKey:      apiKey,
		retryCfg:    retryCfg,
		recordCost:  recordCost,
		recordRetry: recordRetry,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponseItem struct {
	Embedding []float32 `json:"embedding"`
}

type embedResponse struct {
	Data  []embedResponseItem `json:"data"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

// Embed returns the vector for a single text. Equivalent to
// EmbedBatch([text])[0] but kept as a distinct entry point for callers
// that only ever embed one text.
func (c *Client) Embed(ctx context.Context, text string) (models.Vector, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds N texts in a single API round-trip. Each returned
// vector is validated to exactly models.EmbeddingDim before being handed
// back — a dimension mismatch from the API is a client-boundary
// validation failure, not a retryable condition.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([]models.Vector, error) {
	if len(texts) == 0 {
		return nil, cogmemerr.Validation("texts", "must be non-empty")
	}

	var result []models.Vector
	var costUSD float64

	err := retry.Do(ctx, c.retryCfg, "embedding", c.recordRetry, classifyEmbeddingError, func(ctx context.Context) error {
		vecs, cost, err := c.callAPI(ctx, texts)
		if err != nil {
			return err
		}
		result, costUSD = vecs, cost
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cogmemerr.ErrEmbedding, err)
	}

	if c.recordCost != nil {
		_ = c.recordCost(ctx, "embedding", costUSD)
	}
	return result, nil
}

func (c *Client) callAPI(ctx context.Context, texts []string) ([]models.Vector, float64, error) {
	body, err := json.Marshal(embedRequest{Model: ModelID, Input: texts})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: marshal embed request: %v", cogmemerr.ErrValidation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, 0, fmt.Errorf("embeddings API unavailable: status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, 0, backoffPermanent(fmt.Errorf("embeddings API rejected request: status %d", resp.StatusCode))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, 0, backoffPermanent(fmt.Errorf("%w: decode embed response: %v", cogmemerr.ErrSchema, err))
	}

	vecs := make([]models.Vector, len(parsed.Data))
	for i, item := range parsed.Data {
		if len(item.Embedding) != models.EmbeddingDim {
			return nil, 0, backoffPermanent(fmt.Errorf("%w: embedding dim %d, want %d", cogmemerr.ErrValidation, len(item.Embedding), models.EmbeddingDim))
		}
		vecs[i] = models.Vector(item.Embedding)
	}

	costUSD := tokensToUSD(parsed.Usage.TotalTokens)
	return vecs, costUSD, nil
}

// tokensToUSD converts a token count to an estimated dollar cost at this
// model's published per-token rate.
func tokensToUSD(tokens int64) float64 {
	const usdPerMillionTokens = 0.02
	return float64(tokens) / 1_000_000 * usdPerMillionTokens
}
