// Package chat runs the agentic retrieval loop: the model streams a
// reply about one company's filings and may call the search_filings tool
// between iterations until it settles on an answer.
package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/findex/internal/domain/chat"
	"github.com/kailas-cloud/findex/internal/domain/filing"
	"github.com/kailas-cloud/findex/internal/domain/search"
	"github.com/kailas-cloud/findex/internal/usecase/indexer"
	usesearch "github.com/kailas-cloud/findex/internal/usecase/search"
)

// Service drives agentic chat turns.
type Service struct {
	completer Completer
	searcher  Searcher
	status    StatusProvider

	maxToolIterations int
	logger            *zap.Logger
}

// New creates the chat service. maxToolIterations bounds how many rounds
// of tool calls one turn may take before the model is forced to answer.
func New(completer Completer, searcher Searcher, status StatusProvider,
	maxToolIterations int, logger *zap.Logger,
) *Service {
	return &Service{
		completer:         completer,
		searcher:          searcher,
		status:            status,
		maxToolIterations: maxToolIterations,
		logger:            logger,
	}
}

// Respond streams one chat turn into sink. Content tokens, tool-execution
// status lines, and the terminal done/error marker all flow through sink;
// a non-nil sink error aborts the turn and is returned unchanged.
func (s *Service) Respond(
	ctx context.Context, ticker string,
	messages []chat.Message, sink func(chat.Event) error,
) error {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	report, err := s.status.Status(ctx, ticker)
	if err != nil {
		return fmt.Errorf("index status %s: %w", ticker, err)
	}

	convo := make([]chat.Message, 0, len(messages)+1)
	convo = append(convo, chat.Message{
		Role:    chat.RoleSystem,
		Content: buildSystemPrompt(ticker, report),
	})
	convo = append(convo, messages...)

	// Without a ready index the tool has nothing to search; answer in a
	// single tool-free pass.
	if report.State.Status != filing.StatusReady {
		return s.finalAnswer(ctx, convo, sink)
	}

	for iter := 0; iter < s.maxToolIterations; iter++ {
		calls, finish, err := s.streamOnce(ctx, convo, []chat.Tool{searchFilingsTool()}, sink)
		if err != nil {
			return s.streamFailed(err, sink)
		}

		if finish != chat.FinishToolCalls || len(calls) == 0 {
			return sink(chat.Event{Type: chat.EventDone})
		}

		convo = append(convo, chat.Message{Role: chat.RoleAssistant, ToolCalls: calls})

		for _, call := range calls {
			result, err := s.executeTool(ctx, ticker, call, sink)
			if err != nil {
				return err
			}
			convo = append(convo, chat.Message{
				Role:       chat.RoleTool,
				ToolCallID: call.ID,
				Content:    result,
			})
		}
	}

	// Tool budget exhausted: force a plain answer from what was gathered.
	return s.finalAnswer(ctx, convo, sink)
}

// finalAnswer streams one tool-free completion and closes the turn.
func (s *Service) finalAnswer(ctx context.Context, convo []chat.Message, sink func(chat.Event) error) error {
	if _, _, err := s.streamOnce(ctx, convo, nil, sink); err != nil {
		return s.streamFailed(err, sink)
	}
	return sink(chat.Event{Type: chat.EventDone})
}

// streamOnce runs a single completion, forwarding content tokens to sink
// and reassembling tool-call fragments. Sink errors come back unchanged.
func (s *Service) streamOnce(
	ctx context.Context, convo []chat.Message,
	tools []chat.Tool, sink func(chat.Event) error,
) ([]chat.ToolCall, chat.FinishReason, error) {
	acc := newAccumulator()
	finish := chat.FinishNone

	err := s.completer.StreamCompletion(ctx, convo, tools, func(d chat.Delta) error {
		if d.Content != "" {
			if err := sink(chat.Event{Type: chat.EventToken, Content: d.Content}); err != nil {
				return err
			}
		}
		for _, tc := range d.ToolCalls {
			acc.add(tc)
		}
		if d.FinishReason != chat.FinishNone {
			finish = d.FinishReason
		}
		return nil
	})
	if err != nil {
		return nil, chat.FinishNone, err
	}

	return acc.result(), finish, nil
}

// streamFailed pushes a terminal error event and returns the cause. Sink
// failures take precedence: the client is gone, there is nobody to notify.
func (s *Service) streamFailed(cause error, sink func(chat.Event) error) error {
	s.logger.Error("Chat stream failed", zap.Error(cause))
	if err := sink(chat.Event{Type: chat.EventError, Content: "completion stream failed"}); err != nil {
		return err
	}
	return cause
}

// executeTool runs one search_filings call, announcing it on sink before
// the search so the client sees progress while retrieval runs. Search
// failures become error-string tool results so the model can react
// instead of the turn dying; only sink errors come back as errors.
func (s *Service) executeTool(
	ctx context.Context, ticker string,
	call chat.ToolCall, sink func(chat.Event) error,
) (string, error) {
	if call.Name != searchToolName {
		return fmt.Sprintf("Error: unknown tool %q", call.Name), nil
	}

	args, err := parseToolArgs(call.Arguments)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}

	if err := sink(chat.Event{
		Type:    chat.EventStatus,
		Content: fmt.Sprintf("Searching filings for: %s", args.Query),
	}); err != nil {
		return "", err
	}

	q := search.Query{
		Ticker:  ticker,
		Text:    args.Query,
		MinDate: args.MinDate,
	}
	for _, ft := range args.FilingTypes {
		if t, ok := filing.ParseType(ft); ok {
			q.Types = append(q.Types, t)
		}
	}
	for _, c := range args.Categories {
		q.Categories = append(q.Categories, filing.Category(c))
	}

	results, err := s.searcher.Search(ctx, q)
	if err != nil {
		s.logger.Warn("Tool execution failed",
			zap.String("ticker", ticker),
			zap.String("query", args.Query),
			zap.Error(err),
		)
		return fmt.Sprintf("Error: search failed: %v", err), nil
	}

	return usesearch.FormatForModel(results), nil
}

// buildSystemPrompt describes the assistant role and what is indexed for
// the company, so the model knows whether and how to search.
func buildSystemPrompt(ticker string, report indexer.StatusReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a financial research assistant answering questions about %s "+
		"using the company's SEC filings. Ground every claim in retrieved filing "+
		"passages and cite the filing type and date you relied on. If the filings "+
		"do not cover a question, say so instead of guessing.", ticker)

	st := report.State
	switch st.Status {
	case filing.StatusReady:
		fmt.Fprintf(&b, "\n\nThe filing index for %s is ready: %d filings, %d passages",
			ticker, st.FilingsIndexed, st.ChunksTotal)
		if len(report.FilingTypeBreakdown) > 0 {
			b.WriteString(" (")
			b.WriteString(formatBreakdown(report.FilingTypeBreakdown))
			b.WriteString(")")
		}
		if st.LastFilingDate != "" {
			fmt.Fprintf(&b, "; newest filing dated %s", st.LastFilingDate)
		}
		b.WriteString(". Use the search_filings tool to retrieve passages before answering.")
	case filing.StatusIndexing:
		fmt.Fprintf(&b, "\n\nThe filing index for %s is still being built. "+
			"Tell the user to retry shortly; do not invent filing contents.", ticker)
	default:
		fmt.Fprintf(&b, "\n\nNo filing index exists for %s yet. Tell the user to "+
			"trigger indexing first; do not invent filing contents.", ticker)
	}

	return b.String()
}

func formatBreakdown(breakdown map[filing.Type]int) string {
	keys := make([]string, 0, len(breakdown))
	for t := range breakdown {
		keys = append(keys, string(t))
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%d %s passages", breakdown[filing.Type(k)], k)
	}
	return strings.Join(parts, ", ")
}
