package chat

import (
	"context"

	"github.com/kailas-cloud/findex/internal/domain/chat"
	"github.com/kailas-cloud/findex/internal/domain/search"
	"github.com/kailas-cloud/findex/internal/usecase/indexer"
)

// Completer streams one model completion, invoking onDelta per chunk.
// A non-nil error from onDelta aborts the stream and is returned as-is.
type Completer interface {
	StreamCompletion(ctx context.Context, messages []chat.Message,
		tools []chat.Tool, onDelta func(chat.Delta) error) error
}

// Searcher executes the search_filings tool.
type Searcher interface {
	Search(ctx context.Context, q search.Query) ([]search.Result, error)
}

// StatusProvider reports the company's index status for the system prompt.
type StatusProvider interface {
	Status(ctx context.Context, ticker string) (indexer.StatusReport, error)
}
