// Package topics tags passages with short topic labels using a small chat
// model. Tagging is best-effort enrichment: every failure degrades to an
// empty topic list and never fails the indexing run.
package topics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/findex/internal/filing/token"
	"github.com/kailas-cloud/findex/internal/logger"
)

const (
	// maxInputTokens bounds the text sent to the topic model; passages are
	// chunk-sized but tables can run long.
	maxInputTokens = 3000

	// maxTopics caps the labels kept per passage.
	maxTopics = 8
)

const systemPrompt = `You label excerpts from SEC filings. ` +
	`Return a JSON array of at most 8 short topic tags in lowercase snake_case ` +
	`describing the financial subject matter of the text ` +
	`(e.g. ["revenue_growth", "supply_chain", "litigation"]). ` +
	`Return only the JSON array.`

// ChatClient is the slice of the OpenAI client the extractor needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Source identifies where an excerpt comes from. It is included in the
// tagging prompt: "risk factors" text reads very differently when the
// model knows the company and form type.
type Source struct {
	Company    string
	FilingType string
	Section    string
}

// Extractor extracts topic tags from passage text.
type Extractor struct {
	client ChatClient
	model  string
	codec  token.Codec
}

// New creates a topic extractor using the given chat model.
func New(client ChatClient, model string, codec token.Codec) *Extractor {
	return &Extractor{client: client, model: model, codec: codec}
}

// Extract returns up to 8 topic tags for the text. A nil slice means tagging
// was skipped or failed; callers store passages either way.
func (e *Extractor) Extract(ctx context.Context, text string, src Source) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	tokens := e.codec.Encode(text)
	if len(tokens) > maxInputTokens {
		text = e.codec.Decode(tokens[:maxInputTokens])
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(text, src)},
		},
		Temperature: 0,
	})
	if err != nil {
		logger.FromContext(ctx).Debug("topic extraction failed", zap.Error(err))
		return nil
	}
	if len(resp.Choices) == 0 {
		return nil
	}

	return parseTopics(resp.Choices[0].Message.Content)
}

// userPrompt prefixes the excerpt with its provenance so the tags reflect
// the document, not just the words.
func userPrompt(text string, src Source) string {
	var b strings.Builder
	if src.Company != "" {
		fmt.Fprintf(&b, "Company: %s\n", src.Company)
	}
	if src.FilingType != "" {
		fmt.Fprintf(&b, "Filing type: %s\n", src.FilingType)
	}
	if src.Section != "" {
		fmt.Fprintf(&b, "Section: %s\n", src.Section)
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(text)
	return b.String()
}

// parseTopics reads a JSON string array out of a model reply, tolerating
// markdown code fences and surrounding prose.
func parseTopics(reply string) []string {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")
	reply = strings.TrimSpace(reply)

	// Model sometimes wraps the array in prose; cut to the bracketed span.
	if start := strings.Index(reply, "["); start >= 0 {
		if end := strings.LastIndex(reply, "]"); end > start {
			reply = reply[start : end+1]
		}
	}

	var raw []string
	if err := json.Unmarshal([]byte(reply), &raw); err != nil {
		return nil
	}

	topics := make([]string, 0, maxTopics)
	seen := make(map[string]bool)
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		topics = append(topics, t)
		if len(topics) == maxTopics {
			break
		}
	}
	if len(topics) == 0 {
		return nil
	}
	return topics
}
