package filing

import "time"

// Status is the lifecycle state of a company's filing index.
type Status string

const (
	StatusNotIndexed Status = "not_indexed"
	StatusIndexing   Status = "indexing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// IndexState is the durable per-company indexing record. Exactly one exists
// per ticker; the orchestrator owns all writes to it during a run.
type IndexState struct {
	Ticker         string
	Status         Status
	FilingsIndexed int
	ChunksTotal    int
	LastFilingDate string // date of the newest successfully indexed filing
	ErrorMessage   string
	LastIndexedAt  time.Time // set only when the status transitions to ready
	UpdatedAt      time.Time
}

// StateUpdate carries a partial-field upsert for IndexState. Nil pointers
// leave the stored value untouched.
type StateUpdate struct {
	Status         *Status
	FilingsIndexed *int
	ChunksTotal    *int
	LastFilingDate *string
	ErrorMessage   *string
	LastIndexedAt  *time.Time
}
