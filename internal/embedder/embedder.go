// Package embedder provides clients for the text embedding services that
// turn queries into vectors.
package embedder

import (
	"context"
	"errors"
	"fmt"
)

// ErrBadResponse is returned when a provider answers with the wrong number
// of vectors or vectors of the wrong dimension.
var ErrBadResponse = errors.New("malformed embedding response")

// Embedder defines the interface for text embedding services.
type Embedder interface {
	// Embed generates an embedding vector for a single text input.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embedding vectors for multiple text inputs.
	// Returns a slice of embeddings in the same order as the input texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of the embedding vectors.
	Dimension() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string
}

// ModelConfig holds configuration for a specific embedding model.
type ModelConfig struct {
	Dimension     int // Embedding dimension
	ContextLength int // Max tokens the model can process
}

// KnownModels maps embedding model names to their configurations.
var KnownModels = map[string]ModelConfig{
	"nomic-embed-text":       {Dimension: 768, ContextLength: 8192},
	"mxbai-embed-large":      {Dimension: 1024, ContextLength: 512},
	"all-minilm":             {Dimension: 384, ContextLength: 256},
	"snowflake-arctic-embed": {Dimension: 1024, ContextLength: 8192},
	"bge-small-en":           {Dimension: 384, ContextLength: 512},
}

// GetModelConfig returns the configuration for a model, or defaults if unknown.
func GetModelConfig(modelName string) ModelConfig {
	if cfg, ok := KnownModels[modelName]; ok {
		return cfg
	}
	return ModelConfig{Dimension: 384, ContextLength: 512}
}

// checkVectors verifies a provider reply against the request.
// A dimension of zero or less skips the dimension check.
func checkVectors(vectors [][]float64, n, dimension int) ([][]float32, error) {
	if len(vectors) != n {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrBadResponse, len(vectors), n)
	}
	out := make([][]float32, n)
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty vector at index %d", ErrBadResponse, i)
		}
		if dimension > 0 && len(v) != dimension {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrBadResponse, i, len(v), dimension)
		}
		// Convert float64 to float32
		vec := make([]float32, len(v))
		for j, x := range v {
			vec[j] = float32(x)
		}
		out[i] = vec
	}
	return out, nil
}

// embedOne runs a single-text batch.
func embedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
