package chi

import (
	"context"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domchat "github.com/kailas-cloud/findex/internal/domain/chat"
	"github.com/kailas-cloud/findex/internal/domain/filing"
	"github.com/kailas-cloud/findex/internal/domain/search"
	healthuc "github.com/kailas-cloud/findex/internal/usecase/health"
	indexeruc "github.com/kailas-cloud/findex/internal/usecase/indexer"
)

type mockIndexer struct {
	startFn  func(ctx context.Context, ticker string) error
	statusFn func(ctx context.Context, ticker string) (indexeruc.StatusReport, error)
	deleteFn func(ctx context.Context, ticker string) (int, error)
}

func (m *mockIndexer) Start(ctx context.Context, ticker string) error {
	if m.startFn != nil {
		return m.startFn(ctx, ticker)
	}
	return nil
}

func (m *mockIndexer) Status(ctx context.Context, ticker string) (indexeruc.StatusReport, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, ticker)
	}
	return indexeruc.StatusReport{
		State: filing.IndexState{Ticker: ticker, Status: filing.StatusNotIndexed},
	}, nil
}

func (m *mockIndexer) DeleteIndex(ctx context.Context, ticker string) (int, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, ticker)
	}
	return 0, nil
}

type mockSearcher struct {
	searchFn func(ctx context.Context, q search.Query) ([]search.Result, error)
	queries  []search.Query
}

func (m *mockSearcher) Search(ctx context.Context, q search.Query) ([]search.Result, error) {
	m.queries = append(m.queries, q)
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return []search.Result{{
		Text:            "Revenue grew 8%.",
		FilingType:      filing.Type10K,
		FilingDate:      "2024-11-01",
		SectionName:     "Item 7 - MD&A",
		SectionCategory: filing.CategoryFinancialDiscussion,
		Similarity:      0.91,
		TokenCount:      120,
	}}, nil
}

type mockChatter struct {
	respondFn func(ctx context.Context, ticker string,
		messages []domchat.Message, sink func(domchat.Event) error) error
	tickers  []string
	messages [][]domchat.Message
}

func (m *mockChatter) Respond(ctx context.Context, ticker string,
	messages []domchat.Message, sink func(domchat.Event) error,
) error {
	m.tickers = append(m.tickers, ticker)
	m.messages = append(m.messages, messages)
	if m.respondFn != nil {
		return m.respondFn(ctx, ticker, messages, sink)
	}
	if err := sink(domchat.Event{Type: domchat.EventToken, Content: "Hello"}); err != nil {
		return err
	}
	return sink(domchat.Event{Type: domchat.EventDone})
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report {
	if m.report.Status == "" {
		return healthuc.Report{
			Status: healthuc.Healthy,
			Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK},
		}
	}
	return m.report
}

type testServer struct {
	router  chi.Router
	indexer *mockIndexer
	search  *mockSearcher
	chat    *mockChatter
	health  *mockHealth
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		indexer: &mockIndexer{},
		search:  &mockSearcher{},
		chat:    &mockChatter{},
		health:  &mockHealth{},
	}
	srv := NewServer(ts.indexer, ts.search, ts.chat, ts.health, zap.NewNop())
	ts.router = chi.NewRouter()
	srv.Register(ts.router)
	return ts
}
