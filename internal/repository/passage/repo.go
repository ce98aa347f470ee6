// Package passage persists filing passages as Redis hashes and answers
// metadata-filtered KNN queries over them through a single shared FT index.
package passage

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/findex/internal/db"
	"github.com/kailas-cloud/findex/internal/domain/filing"
	"github.com/kailas-cloud/findex/internal/domain/search"
)

// store is the consumer interface for passages (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	DelMulti(ctx context.Context, keys []string) (int, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// resultFields are the fields fetched per KNN hit: the hash fields plus the
// computed __vector_score distance the similarity is derived from. The
// vector itself is deliberately excluded: results never need it and it
// dominates payload size.
var resultFields = []string{
	"__content", "filing_type", "filing_date", "section",
	"category", "topics", "is_table", "token_count", "__vector_score",
}

// Repo implements the passage persistence contracts of usecase/indexer
// and usecase/search.
type Repo struct {
	store store
}

// New creates a passage repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// InsertBatch stores passages as hashes in one pipelined round trip.
func (r *Repo) InsertBatch(ctx context.Context, passages []filing.Passage) error {
	if len(passages) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(passages))
	for i := range passages {
		p := &passages[i]
		items[i] = db.HashSetItem{
			Key:    passageKey(p.Ticker, p.AccessionNumber, p.ChunkIndex),
			Fields: buildHashFields(p),
		}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("insert %d passages: %w", len(passages), err)
	}
	return nil
}

// DeleteByTicker removes every stored passage for a ticker and returns
// how many were deleted.
func (r *Repo) DeleteByTicker(ctx context.Context, ticker string) (int, error) {
	keys, err := r.store.Scan(ctx, keyPrefix+ticker+":*")
	if err != nil {
		return 0, fmt.Errorf("scan passages for %s: %w", ticker, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := r.store.DelMulti(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("delete passages for %s: %w", ticker, err)
	}
	return n, nil
}

// Search runs a KNN query restricted to the ticker's passages with optional
// filing-type, category, and date prefilters. k is the fetch size; the
// caller applies its own token-budget cut afterwards.
func (r *Repo) Search(ctx context.Context, q *search.Query, vector []float32, k int) ([]search.Result, error) {
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    IndexName,
		Prefilter:    buildPrefilter(q),
		Vector:       vector,
		K:            k,
		ReturnFields: resultFields,
	})
	if err != nil {
		return nil, fmt.Errorf("search passages for %s: %w", q.Ticker, err)
	}

	if sr == nil || len(sr.Entries) == 0 {
		return nil, nil
	}

	results := make([]search.Result, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		results = append(results, parseResultEntry(entry))
	}
	return results, nil
}

// CountByType returns the number of stored passages per filing type for a
// ticker. Types with zero passages are omitted.
func (r *Repo) CountByType(ctx context.Context, ticker string) (map[filing.Type]int, error) {
	counts := make(map[filing.Type]int, len(filing.Types))
	for _, t := range filing.Types {
		query := fmt.Sprintf("@ticker:{%s} @filing_type:{%s}",
			db.EscapeTag(ticker), db.EscapeTag(string(t)))
		n, err := r.store.SearchCount(ctx, IndexName, query)
		if err != nil {
			return nil, fmt.Errorf("count %s passages for %s: %w", t, ticker, err)
		}
		if n > 0 {
			counts[t] = n
		}
	}
	return counts, nil
}

func passageKey(ticker, accession string, chunkIndex int) string {
	return fmt.Sprintf("%s%s:%s:%d", keyPrefix, ticker, accession, chunkIndex)
}

// buildPrefilter assembles the FT pre-filter expression for a query.
// The ticker clause is always present; list filters become OR groups.
func buildPrefilter(q *search.Query) string {
	clauses := []string{fmt.Sprintf("@ticker:{%s}", db.EscapeTag(q.Ticker))}

	if len(q.Types) > 0 {
		values := make([]string, len(q.Types))
		for i, t := range q.Types {
			values[i] = string(t)
		}
		clauses = append(clauses, orGroup("filing_type", values))
	}

	if len(q.Categories) > 0 {
		values := make([]string, len(q.Categories))
		for i, c := range q.Categories {
			values[i] = string(c)
		}
		clauses = append(clauses, orGroup("category", values))
	}

	if q.MinDate != "" {
		clauses = append(clauses, fmt.Sprintf("@filing_date:[%d +inf]", dateToNumeric(q.MinDate)))
	}

	return strings.Join(clauses, " ")
}

// orGroup renders `(@field:{a} | @field:{b})` for a value list.
func orGroup(field string, values []string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("@%s:{%s}", field, db.EscapeTag(v))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " | ") + ")"
}
