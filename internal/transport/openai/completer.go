package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/findex/internal/domain/chat"
)

// Completer streams chat completions with tool calling.
type Completer struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// CompleterConfig holds the chat completion settings.
type CompleterConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewCompleter creates an OpenAI chat completion provider.
func NewCompleter(cfg *CompleterConfig) *Completer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Completer{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// StreamCompletion runs one streamed completion, invoking onDelta for every
// chunk. A non-nil error from onDelta aborts the stream and is returned
// unchanged so callers can distinguish their own cancellation from provider
// failures.
func (c *Completer) StreamCompletion(
	ctx context.Context,
	messages []chat.Message,
	tools []chat.Tool,
	onDelta func(chat.Delta) error,
) error {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toAPIMessages(messages),
		Tools:    toAPITools(tools),
		Stream:   true,
	}
	if c.maxTokens > 0 {
		req.MaxTokens = c.maxTokens
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("open completion stream: %w: %w", err, chat.ErrProviderError)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read completion stream: %w: %w", err, chat.ErrProviderError)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		delta := chat.Delta{
			Content:      choice.Delta.Content,
			FinishReason: toFinishReason(choice.FinishReason),
		}
		for _, tc := range choice.Delta.ToolCalls {
			d := chat.ToolCallDelta{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}
			if tc.Index != nil {
				d.Index = *tc.Index
			}
			delta.ToolCalls = append(delta.ToolCalls, d)
		}

		if err := onDelta(delta); err != nil {
			return err
		}
	}
}

func toAPIMessages(messages []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toAPITools(tools []chat.Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		params, err := json.Marshal(t.Parameters)
		if err != nil {
			continue
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(params),
			},
		})
	}
	return out
}

func toFinishReason(r openai.FinishReason) chat.FinishReason {
	switch r {
	case openai.FinishReasonStop:
		return chat.FinishStop
	case openai.FinishReasonToolCalls:
		return chat.FinishToolCalls
	}
	return chat.FinishNone
}
