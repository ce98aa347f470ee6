package indexer

import (
	"context"

	"github.com/kailas-cloud/findex/internal/domain/embedding"
	"github.com/kailas-cloud/findex/internal/domain/filing"
	"github.com/kailas-cloud/findex/internal/edgar"
	"github.com/kailas-cloud/findex/internal/filing/topics"
)

// Edgar is the SEC access contract: ticker resolution, submissions
// listings, document retrieval.
type Edgar interface {
	Resolve(ctx context.Context, ticker string) (*edgar.Company, error)
	ListFilings(ctx context.Context, cik string) ([]filing.Filing, error)
	FetchHTML(ctx context.Context, url string) (string, error)
}

// Parser splits a filing document into taxonomy sections.
type Parser interface {
	Parse(htmlSrc string, formType filing.Type) (*filing.ParsedDocument, error)
}

// Chunker turns parsed sections into token-bounded passages.
type Chunker interface {
	Split(doc *filing.ParsedDocument) []filing.Passage
}

// TopicTagger extracts topic phrases from section text, told which
// company, form, and section the text belongs to. Returns nil on any
// failure; tagging is best-effort.
type TopicTagger interface {
	Extract(ctx context.Context, text string, src topics.Source) []string
}

// Embedder vectorizes passage texts in batches.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (embedding.BatchResult, error)
}

// PassageRepo is the passage persistence contract.
type PassageRepo interface {
	InsertBatch(ctx context.Context, passages []filing.Passage) error
	DeleteByTicker(ctx context.Context, ticker string) (int, error)
	CountByType(ctx context.Context, ticker string) (map[filing.Type]int, error)
}

// StateRepo is the index-state persistence contract.
type StateRepo interface {
	Get(ctx context.Context, ticker string) (filing.IndexState, error)
	Upsert(ctx context.Context, ticker string, upd filing.StateUpdate) error
	Delete(ctx context.Context, ticker string) error
}
