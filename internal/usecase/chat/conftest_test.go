package chat

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/findex/internal/domain/chat"
	"github.com/kailas-cloud/findex/internal/domain/filing"
	"github.com/kailas-cloud/findex/internal/domain/search"
	"github.com/kailas-cloud/findex/internal/usecase/indexer"
)

// streamTurn scripts one StreamCompletion call.
type streamTurn func(messages []chat.Message, tools []chat.Tool, onDelta func(chat.Delta) error) error

// mockCompleter replays scripted turns and records what each call saw.
type mockCompleter struct {
	turns     []streamTurn
	calls     int
	seenMsgs  [][]chat.Message
	seenTools [][]chat.Tool
}

func (m *mockCompleter) StreamCompletion(
	_ context.Context, messages []chat.Message,
	tools []chat.Tool, onDelta func(chat.Delta) error,
) error {
	i := m.calls
	m.calls++
	m.seenMsgs = append(m.seenMsgs, messages)
	m.seenTools = append(m.seenTools, tools)

	if i < len(m.turns) {
		return m.turns[i](messages, tools, onDelta)
	}
	// Default: a short plain answer.
	if err := onDelta(chat.Delta{Content: "done."}); err != nil {
		return err
	}
	return onDelta(chat.Delta{FinishReason: chat.FinishStop})
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
		Text:        "Revenue grew 8%.",
		FilingType:  filing.Type10K,
		FilingDate:  "2024-11-01",
		SectionName: "Item 7 - MD&A",
	}}, nil
}

type mockStatus struct {
	report indexer.StatusReport
	err    error
}

func (m *mockStatus) Status(_ context.Context, ticker string) (indexer.StatusReport, error) {
	if m.err != nil {
		return indexer.StatusReport{}, m.err
	}
	report := m.report
	report.State.Ticker = ticker
	return report, nil
}

func readyStatus() indexer.StatusReport {
	return indexer.StatusReport{
		State: filing.IndexState{
			Status:         filing.StatusReady,
			FilingsIndexed: 7,
			ChunksTotal:    2100,
			LastFilingDate: "2025-01-15",
		},
		FilingTypeBreakdown: map[filing.Type]int{
			filing.Type10K: 1800,
			filing.Type8K:  300,
		},
	}
}

// eventRecorder collects sink events for assertions.
type eventRecorder struct {
	events  []chat.Event
	failOn  chat.EventType
	failErr error
}

func (r *eventRecorder) sink(e chat.Event) error {
	if r.failErr != nil && e.Type == r.failOn {
		return r.failErr
	}
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) content() string {
	var out string
	for _, e := range r.events {
		if e.Type == chat.EventToken {
			out += e.Content
		}
	}
	return out
}

func (r *eventRecorder) ofType(t chat.EventType) []chat.Event {
	var out []chat.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestService(t *testing.T, maxIterations int) (*Service, *mockCompleter, *mockSearcher, *mockStatus) {
	t.Helper()
	mc := &mockCompleter{}
	ms := &mockSearcher{}
	st := &mockStatus{report: readyStatus()}
	svc := New(mc, ms, st, maxIterations, zap.NewNop())
	return svc, mc, ms, st
}

// toolCallTurn scripts a turn that requests one search_filings call with
// arguments split across two fragments.
func toolCallTurn(id, query string) streamTurn {
	return func(_ []chat.Message, _ []chat.Tool, onDelta func(chat.Delta) error) error {
		err := onDelta(chat.Delta{ToolCalls: []chat.ToolCallDelta{{
			Index: 0, ID: id, Name: searchToolName, Arguments: `{"que`,
		}}})
		if err != nil {
			return err
		}
		err = onDelta(chat.Delta{ToolCalls: []chat.ToolCallDelta{{
			Index: 0, Arguments: `ry":"` + query + `"}`,
		}}})
		if err != nil {
			return err
		}
		return onDelta(chat.Delta{FinishReason: chat.FinishToolCalls})
	}
}

func plainTurn(text string) streamTurn {
	return func(_ []chat.Message, _ []chat.Tool, onDelta func(chat.Delta) error) error {
		if err := onDelta(chat.Delta{Content: text}); err != nil {
			return err
		}
		return onDelta(chat.Delta{FinishReason: chat.FinishStop})
	}
}

func userMessages(text string) []chat.Message {
	return []chat.Message{{Role: chat.RoleUser, Content: text}}
}
