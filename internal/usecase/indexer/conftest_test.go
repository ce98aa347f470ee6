package indexer

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/findex/internal/domain/embedding"
	"github.com/kailas-cloud/findex/internal/domain/filing"
	"github.com/kailas-cloud/findex/internal/edgar"
	"github.com/kailas-cloud/findex/internal/filing/topics"
)

type mockEdgar struct {
	resolveFn func(ctx context.Context, ticker string) (*edgar.Company, error)
	listFn    func(ctx context.Context, cik string) ([]filing.Filing, error)
	fetchFn   func(ctx context.Context, url string) (string, error)
}

func (m *mockEdgar) Resolve(ctx context.Context, ticker string) (*edgar.Company, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, ticker)
	}
	return &edgar.Company{CIK: "0000320193", Ticker: ticker, Name: "Test Corp"}, nil
}

func (m *mockEdgar) ListFilings(ctx context.Context, cik string) ([]filing.Filing, error) {
	if m.listFn != nil {
		return m.listFn(ctx, cik)
	}
	return nil, nil
}

func (m *mockEdgar) FetchHTML(ctx context.Context, url string) (string, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, url)
	}
	return "<html></html>", nil
}

type mockParser struct {
	parseFn func(htmlSrc string, formType filing.Type) (*filing.ParsedDocument, error)
}

func (m *mockParser) Parse(htmlSrc string, formType filing.Type) (*filing.ParsedDocument, error) {
	if m.parseFn != nil {
		return m.parseFn(htmlSrc, formType)
	}
	return &filing.ParsedDocument{
		Type:    formType,
		Quality: filing.QualitySectioned,
		Sections: []filing.Section{{
			ID:       "item_1a",
			Name:     "Item 1A - Risk Factors",
			Category: filing.CategoryRiskFactors,
			Text:     "Competition is intense.",
		}},
	}, nil
}

type mockChunker struct {
	splitFn func(doc *filing.ParsedDocument) []filing.Passage
}

func (m *mockChunker) Split(doc *filing.ParsedDocument) []filing.Passage {
	if m.splitFn != nil {
		return m.splitFn(doc)
	}
	var passages []filing.Passage
	for i, section := range doc.Sections {
		passages = append(passages, filing.Passage{
			SectionName:     section.Name,
			SectionCategory: section.Category,
			ChunkIndex:      i,
			Text:            section.Text,
			TokenCount:      4,
		})
	}
	return passages
}

type mockTopics struct {
	extractFn func(ctx context.Context, text string, src topics.Source) []string
}

func (m *mockTopics) Extract(ctx context.Context, text string, src topics.Source) []string {
	if m.extractFn != nil {
		return m.extractFn(ctx, text, src)
	}
	return nil
}

type mockEmbedder struct {
	batchFn    func(ctx context.Context, texts []string) (embedding.BatchResult, error)
	batchCalls int
}

func (m *mockEmbedder) BatchEmbed(ctx context.Context, texts []string) (embedding.BatchResult, error) {
	m.batchCalls++
	if m.batchFn != nil {
		return m.batchFn(ctx, texts)
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{0.1, 0.2}
	}
	return embedding.BatchResult{Embeddings: vectors, TotalTokens: len(texts)}, nil
}

type mockPassageRepo struct {
	mu          sync.Mutex
	inserted    [][]filing.Passage
	insertErr   error
	deleteCalls int
	deleteErr   error
	countFn     func(ctx context.Context, ticker string) (map[filing.Type]int, error)
}

func (m *mockPassageRepo) InsertBatch(_ context.Context, passages []filing.Passage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, passages)
	return nil
}

func (m *mockPassageRepo) DeleteByTicker(_ context.Context, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	return 0, m.deleteErr
}

func (m *mockPassageRepo) CountByType(ctx context.Context, ticker string) (map[filing.Type]int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, ticker)
	}
	return nil, nil
}

func (m *mockPassageRepo) insertedBatches() [][]filing.Passage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserted
}

// mockStateRepo applies updates to an in-memory state row so tests can
// assert the terminal state of a run.
type mockStateRepo struct {
	mu        sync.Mutex
	state     filing.IndexState
	exists    bool
	upsertErr error
	deleted   bool
}

func (m *mockStateRepo) Get(_ context.Context, ticker string) (filing.IndexState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return filing.IndexState{}, filing.ErrNotIndexed
	}
	st := m.state
	st.Ticker = ticker
	return st, nil
}

func (m *mockStateRepo) Upsert(_ context.Context, ticker string, upd filing.StateUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.exists = true
	m.state.Ticker = ticker
	if upd.Status != nil {
		m.state.Status = *upd.Status
	}
	if upd.FilingsIndexed != nil {
		m.state.FilingsIndexed = *upd.FilingsIndexed
	}
	if upd.ChunksTotal != nil {
		m.state.ChunksTotal = *upd.ChunksTotal
	}
	if upd.LastFilingDate != nil {
		m.state.LastFilingDate = *upd.LastFilingDate
	}
	if upd.ErrorMessage != nil {
		m.state.ErrorMessage = *upd.ErrorMessage
	}
	if upd.LastIndexedAt != nil {
		m.state.LastIndexedAt = *upd.LastIndexedAt
	}
	return nil
}

func (m *mockStateRepo) Delete(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = true
	m.exists = false
	m.state = filing.IndexState{}
	return nil
}

func (m *mockStateRepo) current() filing.IndexState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

type testDeps struct {
	edgar    *mockEdgar
	parser   *mockParser
	chunker  *mockChunker
	topics   *mockTopics
	embedder *mockEmbedder
	passages *mockPassageRepo
	states   *mockStateRepo
}

func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()
	d := &testDeps{
		edgar:    &mockEdgar{},
		parser:   &mockParser{},
		chunker:  &mockChunker{},
		topics:   &mockTopics{},
		embedder: &mockEmbedder{},
		passages: &mockPassageRepo{},
		states:   &mockStateRepo{},
	}
	svc := New(Deps{
		Edgar:    d.edgar,
		Parser:   d.parser,
		Chunker:  d.chunker,
		Topics:   d.topics,
		Embedder: d.embedder,
		Passages: d.passages,
		States:   d.states,
	}, map[filing.Type]int{
		filing.Type10K: 3,
		filing.Type10Q: 4,
		filing.Type8K:  8,
	}, zap.NewNop())
	svc.runDone = make(chan string, 4)
	return svc, d
}

// waitRun blocks until one background run signals completion.
func waitRun(t *testing.T, svc *Service) {
	t.Helper()
	select {
	case <-svc.runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for indexing run")
	}
}
