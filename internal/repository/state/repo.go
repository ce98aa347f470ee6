// Package state persists the per-company index state record as a Redis hash.
package state

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/findex/internal/domain/filing"
)

const keyPrefix = "findex:index_state:"

// store is the consumer interface for index state (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
}

// Repo implements the index-state persistence contract of usecase/indexer.
type Repo struct {
	store store
	now   func() time.Time
}

// New creates an index-state repository.
func New(s store) *Repo {
	return &Repo{store: s, now: time.Now}
}

// Get returns the stored state for a ticker, or filing.ErrNotIndexed when
// no record exists.
func (r *Repo) Get(ctx context.Context, ticker string) (filing.IndexState, error) {
	fields, err := r.store.HGetAll(ctx, stateKey(ticker))
	if err != nil {
		return filing.IndexState{}, fmt.Errorf("get state %s: %w", ticker, err)
	}
	if len(fields) == 0 {
		return filing.IndexState{}, filing.ErrNotIndexed
	}
	return parseState(ticker, fields), nil
}

// Upsert applies a partial update to the ticker's state record. Nil fields
// in the update leave stored values untouched; updated_at is always bumped.
func (r *Repo) Upsert(ctx context.Context, ticker string, upd filing.StateUpdate) error {
	fields := map[string]string{
		"updated_at": strconv.FormatInt(r.now().Unix(), 10),
	}
	if upd.Status != nil {
		fields["status"] = string(*upd.Status)
	}
	if upd.FilingsIndexed != nil {
		fields["filings_indexed"] = strconv.Itoa(*upd.FilingsIndexed)
	}
	if upd.ChunksTotal != nil {
		fields["chunks_total"] = strconv.Itoa(*upd.ChunksTotal)
	}
	if upd.LastFilingDate != nil {
		fields["last_filing_date"] = *upd.LastFilingDate
	}
	if upd.ErrorMessage != nil {
		fields["error_message"] = *upd.ErrorMessage
	}
	if upd.LastIndexedAt != nil {
		fields["last_indexed_at"] = strconv.FormatInt(upd.LastIndexedAt.Unix(), 10)
	}

	if err := r.store.HSet(ctx, stateKey(ticker), fields); err != nil {
		return fmt.Errorf("upsert state %s: %w", ticker, err)
	}
	return nil
}

// Delete removes the ticker's state record.
func (r *Repo) Delete(ctx context.Context, ticker string) error {
	if err := r.store.Del(ctx, stateKey(ticker)); err != nil {
		return fmt.Errorf("delete state %s: %w", ticker, err)
	}
	return nil
}

func stateKey(ticker string) string {
	return keyPrefix + ticker
}

func parseState(ticker string, fields map[string]string) filing.IndexState {
	st := filing.IndexState{
		Ticker:         ticker,
		Status:         filing.Status(fields["status"]),
		LastFilingDate: fields["last_filing_date"],
		ErrorMessage:   fields["error_message"],
	}
	if st.Status == "" {
		st.Status = filing.StatusNotIndexed
	}
	if n, err := strconv.Atoi(fields["filings_indexed"]); err == nil {
		st.FilingsIndexed = n
	}
	if n, err := strconv.Atoi(fields["chunks_total"]); err == nil {
		st.ChunksTotal = n
	}
	if ts, err := strconv.ParseInt(fields["last_indexed_at"], 10, 64); err == nil && ts > 0 {
		st.LastIndexedAt = time.Unix(ts, 0).UTC()
	}
	if ts, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil && ts > 0 {
		st.UpdatedAt = time.Unix(ts, 0).UTC()
	}
	return st
}
