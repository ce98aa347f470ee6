// Package embedding holds the shared text vectorization contracts.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrProviderError signals an embedding provider failure. Callers at the
// per-filing level catch it and skip the filing rather than the whole run.
var ErrProviderError = errors.New("embedding provider error")

// Embedder is the single-text vectorization contract.
type Embedder interface {
	Embed(ctx context.Context, text string) (Result, error)
}

// BatchEmbedder vectorizes multiple texts in a single API call,
// order-preserving.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Result carries one embedding vector and its token usage through the
// decorator chain.
type Result struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchResult carries multiple embedding vectors and aggregate token usage.
type BatchResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// BatchFallback calls Embed one text at a time. Safety net for decorators
// whose inner embedder lacks native batching.
func BatchFallback(ctx context.Context, e Embedder, texts []string) (BatchResult, error) {
	embeddings := make([][]float32, len(texts))
	var totalPrompt, totalTokens int

	for i, text := range texts {
		res, err := e.Embed(ctx, text)
		if err != nil {
			return BatchResult{}, fmt.Errorf("fallback embed [%d]: %w", i, err)
		}
		embeddings[i] = res.Embedding
		totalPrompt += res.PromptTokens
		totalTokens += res.TotalTokens
	}

	return BatchResult{
		Embeddings:   embeddings,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}
