package filing

// Passage is the atomic unit of embedding and retrieval: a token-bounded
// window of section text, or one whole table.
//
// Invariants: ChunkIndex values are contiguous from 0 within a document;
// table passages are never split regardless of size.
type Passage struct {
	Ticker          string
	AccessionNumber string
	FilingType      Type
	FilingDate      string // YYYY-MM-DD
	SectionName     string
	SectionCategory Category
	ChunkIndex      int
	Text            string
	TokenCount      int
	IsTable         bool
	Topics          []string
	Vector          []float32
}
