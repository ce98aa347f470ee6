package chat

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kailas-cloud/findex/internal/domain/chat"
	"github.com/kailas-cloud/findex/internal/domain/filing"
)

const searchToolName = "search_filings"

// searchFilingsTool is the single tool exposed to the model: semantic
// search over the company's indexed filings with optional metadata filters.
func searchFilingsTool() chat.Tool {
	types := make([]string, len(filing.Types))
	for i, t := range filing.Types {
		types[i] = string(t)
	}
	categories := make([]string, len(filing.Categories))
	for i, c := range filing.Categories {
		categories[i] = string(c)
	}

	return chat.Tool{
		Name: searchToolName,
		Description: "Search the company's indexed SEC filings for passages " +
			"relevant to a question. Returns numbered excerpts with filing " +
			"type, date, and section metadata.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to look for, phrased as a focused search query",
				},
				"filing_types": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string", "enum": types},
					"description": "Restrict results to these form types",
				},
				"categories": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string", "enum": categories},
					"description": "Restrict results to these section categories",
				},
				"min_date": map[string]any{
					"type":        "string",
					"description": "Only passages from filings on or after this date (YYYY-MM-DD)",
				},
			},
			"required": []string{"query"},
		},
	}
}

// toolArgs is the parsed argument payload of a search_filings call.
type toolArgs struct {
	Query       string   `json:"query"`
	FilingTypes []string `json:"filing_types"`
	Categories  []string `json:"categories"`
	MinDate     string   `json:"min_date"`
}

func parseToolArgs(raw string) (toolArgs, error) {
	var args toolArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return toolArgs{}, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if args.Query == "" {
		return toolArgs{}, fmt.Errorf("tool arguments missing required query")
	}
	return args, nil
}

// accumulator reassembles streamed tool-call fragments. The provider keys
// fragments by call index; id and name arrive on the first fragment,
// argument JSON is concatenated across the rest.
type accumulator struct {
	calls map[int]*chat.ToolCall
}

func newAccumulator() *accumulator {
	return &accumulator{calls: make(map[int]*chat.ToolCall)}
}

func (a *accumulator) add(d chat.ToolCallDelta) {
	call, ok := a.calls[d.Index]
	if !ok {
		call = &chat.ToolCall{}
		a.calls[d.Index] = call
	}
	if d.ID != "" {
		call.ID = d.ID
	}
	if d.Name != "" {
		call.Name = d.Name
	}
	call.Arguments += d.Arguments
}

// result returns the reassembled calls in index order.
func (a *accumulator) result() []chat.ToolCall {
	indices := make([]int, 0, len(a.calls))
	for i := range a.calls {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	calls := make([]chat.ToolCall, 0, len(indices))
	for _, i := range indices {
		calls = append(calls, *a.calls[i])
	}
	return calls
}
