// Package search defines the query and result types for passage retrieval.
package search

import "github.com/kailas-cloud/findex/internal/domain/filing"

// Query describes one metadata-filtered vector search over a company's
// indexed passages.
type Query struct {
	Ticker     string
	Text       string
	Types      []filing.Type
	Categories []filing.Category
	MinDate    string // YYYY-MM-DD, inclusive lower bound
	TopK       int
	// TokenBudget caps the cumulative token count of returned passages.
	// The first result is always included even when it alone exceeds it.
	TokenBudget int
}

// Result is one retrieved passage, ephemeral per query.
type Result struct {
	Text            string
	FilingType      filing.Type
	FilingDate      string
	SectionName     string
	SectionCategory filing.Category
	Topics          []string
	IsTable         bool
	// Similarity is cosine similarity (1 - cosine distance), higher is better.
	Similarity float64
	TokenCount int
}
