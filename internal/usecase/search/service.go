// Package search retrieves the most relevant passages for a question
// about one company's filings, under a token budget sized for a model
// context window.
package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/findex/internal/domain/search"
	"github.com/kailas-cloud/findex/internal/metrics"
)

// maxTopK is the hard ceiling on requested result counts.
const maxTopK = 25

// overfetchFactor widens the KNN fetch so topK survives hits that were
// deleted between scan and fetch or carry empty payloads.
const overfetchFactor = 2

// Service answers passage-retrieval queries.
type Service struct {
	embedder Embedder
	repo     Repository
	states   StateRepo

	defaultTopK   int
	defaultBudget int
	logger        *zap.Logger
}

// New creates a search service with config-supplied defaults.
func New(embedder Embedder, repo Repository, states StateRepo,
	defaultTopK, defaultBudget int, logger *zap.Logger,
) *Service {
	return &Service{
		embedder:      embedder,
		repo:          repo,
		states:        states,
		defaultTopK:   defaultTopK,
		defaultBudget: defaultBudget,
		logger:        logger,
	}
}

// Search embeds the query text, over-fetches KNN candidates, and keeps
// the most similar ones until the cumulative token count would exceed
// the budget. The first candidate is always returned, even when it
// alone exceeds the budget. Returns filing.ErrNotIndexed when the
// company has no index.
func (s *Service) Search(ctx context.Context, q search.Query) ([]search.Result, error) {
	q.Ticker = strings.ToUpper(strings.TrimSpace(q.Ticker))
	applyDefaults(&q, s.defaultTopK, s.defaultBudget)

	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("query text is required")
	}

	if _, err := s.states.Get(ctx, q.Ticker); err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("check index %s: %w", q.Ticker, err)
	}

	emb, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := s.repo.Search(ctx, &q, emb.Embedding, q.TopK*overfetchFactor)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("search passages: %w", err)
	}

	results := budgetWalk(candidates, q.TopK, q.TokenBudget)

	metrics.SearchRequestsTotal.WithLabelValues("ok").Inc()
	s.logger.Debug("Search completed",
		zap.String("ticker", q.Ticker),
		zap.Int("candidates", len(candidates)),
		zap.Int("returned", len(results)),
	)

	return results, nil
}

// FormatForModel renders results as numbered excerpts with filing
// metadata headers, the shape the chat tool feeds back to the model.
func FormatForModel(results []search.Result) string {
	if len(results) == 0 {
		return "No relevant passages found."
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s filed %s — %s", i+1, r.FilingType, r.FilingDate, r.SectionName)
		if len(r.Topics) > 0 {
			fmt.Fprintf(&b, " (topics: %s)", strings.Join(r.Topics, ", "))
		}
		b.WriteString("\n")
		b.WriteString(r.Text)
	}
	return b.String()
}

func applyDefaults(q *search.Query, defaultTopK, defaultBudget int) {
	if q.TopK <= 0 {
		q.TopK = defaultTopK
	}
	if q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	if q.TokenBudget <= 0 {
		q.TokenBudget = defaultBudget
	}
}

// budgetWalk keeps candidates most-similar first and stops at the first
// one whose tokens would overflow the budget, or at topK. The first
// candidate is always kept. Candidates arrive already sorted by
// similarity from the KNN search.
func budgetWalk(candidates []search.Result, topK, budget int) []search.Result {
	var results []search.Result
	used := 0

	for _, c := range candidates {
		if len(results) >= topK {
			break
		}
		if len(results) > 0 && used+c.TokenCount > budget {
			break
		}
		results = append(results, c)
		used += c.TokenCount
	}
	return results
}
