package filing

import "errors"

var (
	// ErrIndexingConflict signals that an indexing run is already in
	// progress for the ticker. The second caller is rejected, not queued.
	ErrIndexingConflict = errors.New("indexing already in progress")
	// ErrCompanyNotFound signals an unresolvable ticker.
	ErrCompanyNotFound = errors.New("company not found")
	// ErrNoFilings signals that EDGAR returned no indexable filings.
	ErrNoFilings = errors.New("no filings found")
	// ErrNotIndexed signals that no filing index exists for the ticker.
	ErrNotIndexed = errors.New("company not indexed")
)
