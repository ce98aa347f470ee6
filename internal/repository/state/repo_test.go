package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/findex/internal/domain/filing"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetFn    func(ctx context.Context, key string, fields map[string]string) error
	hgetAllFn func(ctx context.Context, key string) (map[string]string, error)
	delFn     func(ctx context.Context, key string) error
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms)
	repo.now = func() time.Time { return time.Unix(1700000000, 0) }
	return repo, ms
}

func TestGet(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.hgetAllFn = func(_ context.Context, key string) (map[string]string, error) {
		if key != "findex:index_state:AAPL" {
			t.Errorf("key = %q", key)
		}
		return map[string]string{
			"status":           "ready",
			"filings_indexed":  "12",
			"chunks_total":     "3400",
			"last_filing_date": "2024-11-01",
			"last_indexed_at":  "1700000000",
			"updated_at":       "1700000100",
		}, nil
	}

	st, err := repo.Get(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Ticker != "AAPL" || st.Status != filing.StatusReady {
		t.Errorf("state = %+v", st)
	}
	if st.FilingsIndexed != 12 || st.ChunksTotal != 3400 {
		t.Errorf("counts = %d/%d", st.FilingsIndexed, st.ChunksTotal)
	}
	if st.LastFilingDate != "2024-11-01" {
		t.Errorf("last filing date = %q", st.LastFilingDate)
	}
	if st.LastIndexedAt.Unix() != 1700000000 {
		t.Errorf("last indexed at = %v", st.LastIndexedAt)
	}
}

func TestGet_NotIndexed(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.hgetAllFn = func(_ context.Context, _ string) (map[string]string, error) {
		return map[string]string{}, nil
	}

	_, err := repo.Get(context.Background(), "ZZZZ")
	if !errors.Is(err, filing.ErrNotIndexed) {
		t.Fatalf("expected ErrNotIndexed, got %v", err)
	}
}

func TestGet_DefaultsStatusWhenMissing(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.hgetAllFn = func(_ context.Context, _ string) (map[string]string, error) {
		return map[string]string{"updated_at": "1700000000"}, nil
	}

	st, err := repo.Get(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Status != filing.StatusNotIndexed {
		t.Errorf("status = %q, want not_indexed", st.Status)
	}
}

func TestUpsert_PartialFields(t *testing.T) {
	repo, ms := newTestRepo(t)

	var captured map[string]string
	ms.hsetFn = func(_ context.Context, key string, fields map[string]string) error {
		if key != "findex:index_state:AAPL" {
			t.Errorf("key = %q", key)
		}
		captured = fields
		return nil
	}

	status := filing.StatusIndexing
	err := repo.Upsert(context.Background(), "AAPL", filing.StateUpdate{Status: &status})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured["status"] != "indexing" {
		t.Errorf("status = %q", captured["status"])
	}
	if captured["updated_at"] != "1700000000" {
		t.Errorf("updated_at = %q", captured["updated_at"])
	}
	// untouched fields must not be written at all
	if _, ok := captured["filings_indexed"]; ok {
		t.Error("filings_indexed should not be written for nil update field")
	}
	if _, ok := captured["error_message"]; ok {
		t.Error("error_message should not be written for nil update field")
	}
}

func TestUpsert_FullTransitionToReady(t *testing.T) {
	repo, ms := newTestRepo(t)

	var captured map[string]string
	ms.hsetFn = func(_ context.Context, _ string, fields map[string]string) error {
		captured = fields
		return nil
	}

	status := filing.StatusReady
	filings := 10
	chunks := 2500
	lastDate := "2024-11-01"
	errMsg := ""
	indexedAt := time.Unix(1700000000, 0)

	err := repo.Upsert(context.Background(), "AAPL", filing.StateUpdate{
		Status:         &status,
		FilingsIndexed: &filings,
		ChunksTotal:    &chunks,
		LastFilingDate: &lastDate,
		ErrorMessage:   &errMsg,
		LastIndexedAt:  &indexedAt,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{
		"status":           "ready",
		"filings_indexed":  "10",
		"chunks_total":     "2500",
		"last_filing_date": "2024-11-01",
		"error_message":    "",
		"last_indexed_at":  "1700000000",
		"updated_at":       "1700000000",
	}
	for k, v := range want {
		if captured[k] != v {
			t.Errorf("%s = %q, want %q", k, captured[k], v)
		}
	}
}

func TestDelete(t *testing.T) {
	repo, ms := newTestRepo(t)

	var deletedKey string
	ms.delFn = func(_ context.Context, key string) error {
		deletedKey = key
		return nil
	}

	if err := repo.Delete(context.Background(), "AAPL"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deletedKey != "findex:index_state:AAPL" {
		t.Errorf("deleted key = %q", deletedKey)
	}
}

func TestGet_StoreError(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.hgetAllFn = func(_ context.Context, _ string) (map[string]string, error) {
		return nil, errors.New("connection refused")
	}

	_, err := repo.Get(context.Background(), "AAPL")
	if err == nil || errors.Is(err, filing.ErrNotIndexed) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}
