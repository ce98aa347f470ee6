package passage

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/findex/internal/db"
)

const (
	// IndexName is the FT index over all passage hashes.
	IndexName = "findex:passages:idx"
	keyPrefix = "findex:passages:"

	topicsSeparator = "|"
)

// Definition returns the passage index schema for the given vector
// dimensionality and HNSW build parameters.
func Definition(dims, m, efConstruct int) *db.IndexDefinition {
	return db.NewIndex(IndexName).
		Prefix(keyPrefix).
		Tag("ticker").
		Tag("filing_type").
		Tag("category").
		Tag("is_table").
		Tag("accession").
		TagWithSeparator("topics", topicsSeparator).
		Numeric("filing_date").
		Numeric("chunk_index").
		Numeric("token_count").
		Text("section").
		Text("__content").
		VectorHNSW("__vector", dims, db.DistanceCosine, m, efConstruct).
		MustBuild()
}

// EnsureIndex creates the passage index if it does not exist yet.
// Safe to call on every startup.
func EnsureIndex(ctx context.Context, mgr db.IndexManager, dims, m, efConstruct int) error {
	exists, err := mgr.IndexExists(ctx, IndexName)
	if err != nil {
		return fmt.Errorf("check index %s: %w", IndexName, err)
	}
	if exists {
		return nil
	}
	if err := mgr.CreateIndex(ctx, Definition(dims, m, efConstruct)); err != nil {
		return fmt.Errorf("create index %s: %w", IndexName, err)
	}
	return nil
}
