package sdk

import "time"

// IndexAck acknowledges an accepted indexing run.
type IndexAck struct {
	Ticker  string `json:"ticker"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// IndexStatus is the indexing state of one company.
type IndexStatus struct {
	Ticker         string         `json:"ticker"`
	Status         string         `json:"status"`
	FilingsIndexed int            `json:"filings_indexed"`
	ChunksTotal    int            `json:"chunks_total"`
	LastFilingDate string         `json:"last_filing_date,omitempty"`
	LastIndexedAt  *time.Time     `json:"last_indexed_at,omitempty"`
	Error          string         `json:"error,omitempty"`
	Progress       string         `json:"progress,omitempty"`
	Breakdown      map[string]int `json:"filing_type_breakdown,omitempty"`
}

// SearchRequest filters a semantic search over one company's filings.
type SearchRequest struct {
	Query       string   `json:"query"`
	FilingTypes []string `json:"filing_types,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	MinDate     string   `json:"min_date,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	TokenBudget int      `json:"token_budget,omitempty"`
}

// SearchResult is one retrieved filing passage.
type SearchResult struct {
	Text       string   `json:"text"`
	FilingType string   `json:"filing_type"`
	FilingDate string   `json:"filing_date"`
	Section    string   `json:"section"`
	Category   string   `json:"category"`
	Topics     []string `json:"topics,omitempty"`
	IsTable    bool     `json:"is_table,omitempty"`
	Similarity float64  `json:"similarity"`
	TokenCount int      `json:"token_count"`
}

// ChatMessage is one conversation entry sent to the chat endpoint.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatEvent is one server-pushed event of a chat turn: token, status,
// done, or error.
type ChatEvent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}
