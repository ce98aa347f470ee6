package search

import (
	"context"

	"github.com/kailas-cloud/findex/internal/domain/embedding"
	"github.com/kailas-cloud/findex/internal/domain/filing"
	"github.com/kailas-cloud/findex/internal/domain/search"
)

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (embedding.Result, error)
}

// Repository runs metadata-filtered KNN over a company's passages.
type Repository interface {
	Search(ctx context.Context, q *search.Query, vector []float32, k int) ([]search.Result, error)
}

// StateRepo answers whether a company has an index at all.
type StateRepo interface {
	Get(ctx context.Context, ticker string) (filing.IndexState, error)
}
