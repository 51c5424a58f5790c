package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MLAPIConfig holds configuration for the ML API embedder.
type MLAPIConfig struct {
	// BaseURL is the ML API root, e.g. http://localhost:8000/.
	BaseURL string

	// Dimension is the expected embedding dimension (VECTOR_LENGTH).
	Dimension int

	// Timeout bounds each request (default: 10s).
	Timeout time.Duration

	HTTPClient *http.Client
}

// MLAPIEmbedder calls the ML API's create-embeddings endpoint, which takes
// {"inputs": [...]} and answers with a bare list of vectors.
type MLAPIEmbedder struct {
	url       string
	dimension int
	client    *http.Client
}

type mlapiRequest struct {
	Inputs []string `json:"inputs"`
}

// NewMLAPIEmbedder creates a new ML API embedder.
func NewMLAPIEmbedder(cfg MLAPIConfig) *MLAPIEmbedder {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &MLAPIEmbedder{
		url:       strings.TrimRight(cfg.BaseURL, "/") + "/create-embeddings",
		dimension: cfg.Dimension,
		client:    client,
	}
}

// Embed generates an embedding vector for a single text input.
func (e *MLAPIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, e, text)
}

// EmbedBatch embeds all texts in one request.
func (e *MLAPIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	jsonBody, err := json.Marshal(mlapiRequest{Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ML API error (status %d): %s", resp.StatusCode, string(body))
	}

	var vectors [][]float64
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return checkVectors(vectors, len(texts), e.dimension)
}

// Dimension returns the dimensionality of the embedding vectors.
func (e *MLAPIEmbedder) Dimension() int {
	return e.dimension
}

// ModelName returns a fixed label, since the ML API does not name its model.
func (e *MLAPIEmbedder) ModelName() string {
	return "mlapi"
}

var _ Embedder = (*MLAPIEmbedder)(nil)
