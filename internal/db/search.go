package db

// KNNQuery is the input for vector similarity search.
//
// Prefilter is a raw FT.SEARCH pre-filter expression (tag/numeric clauses)
// built by the repository layer; empty means match-all.
type KNNQuery struct {
	IndexName    string
	Prefilter    string
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
// Score is cosine similarity in [0,1], higher is better.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
