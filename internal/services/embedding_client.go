package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
)

// EmbeddingClient maps texts to fixed-dimension vectors. vectors[i]
// always corresponds to texts[i].
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

const (
	DefaultEmbeddingModel      = "text-embedding-3-small"
	DefaultEmbeddingDimensions = 1536
	DefaultEmbedBatchSize      = 64
	DefaultEmbedConcurrency    = 4
)

// EmbeddingConfig configures the OpenAI-compatible embeddings endpoint
type EmbeddingConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Dimensions  int
	BatchSize   int
	Concurrency int
	Timeout     time.Duration
}

// OpenAIEmbeddingClient calls POST {base}/embeddings. Large inputs are split
// into batches sent concurrently.
type OpenAIEmbeddingClient struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	dimensions  int
	batchSize   int
	concurrency int
}

var _ EmbeddingClient = (*OpenAIEmbeddingClient)(nil)

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIEmbeddingClient creates an embedding client with defaults applied
func NewOpenAIEmbeddingClient(cfg EmbeddingConfig) *OpenAIEmbeddingClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultEmbeddingDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbedBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultEmbedConcurrency
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &OpenAIEmbeddingClient{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		dimensions:  cfg.Dimensions,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
	}
}

// Dimension returns the vector length
func (c *OpenAIEmbeddingClient) Dimension() int {
	return c.dimensions
}

// Embed embeds a single text
func (c *OpenAIEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in order. Any failed batch fails the whole call.
func (c *OpenAIEmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		g.Go(func() error {
			batch, err := c.embed(gctx, texts[start:end])
			if err != nil {
				return err
			}
			// each batch owns a disjoint range of vectors
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (c *OpenAIEmbeddingClient) embed(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := embeddingRequest{
		Model:      c.model,
		Input:      texts,
		Dimensions: c.dimensions,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, embeddingError("failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, embeddingError("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, embeddingError("request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, embeddingError("failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, embeddingError(fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(string(body), 512)), nil)
	}

	var embedResp embeddingResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, embeddingError("failed to decode response", err)
	}
	if embedResp.Error != nil {
		return nil, embeddingError(embedResp.Error.Message, nil)
	}
	if len(embedResp.Data) != len(texts) {
		return nil, embeddingError(fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(embedResp.Data)), nil)
	}

	// Order by index, the API does not promise response order
	vectors := make([][]float32, len(texts))
	for _, d := range embedResp.Data {
		if d.Index < 0 || d.Index >= len(texts) || vectors[d.Index] != nil {
			return nil, embeddingError(fmt.Sprintf("invalid embedding index %d", d.Index), nil)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func embeddingError(message string, err error) error {
	return apperrors.New(apperrors.ErrEmbeddingService, "embed", message, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
