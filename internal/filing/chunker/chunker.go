// Package chunker turns parsed filing sections into embedding-sized
// passages. Prose is split on token windows with overlap; tables are always
// emitted whole as single passages.
package chunker

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/findex/internal/domain/filing"
	"github.com/kailas-cloud/findex/internal/filing/token"
)

// Chunker splits sections into token-bounded passages.
type Chunker struct {
	codec     token.Codec
	maxTokens int
	overlap   int
}

// New creates a Chunker. overlap must be strictly below maxTokens: the
// window stride is maxTokens-overlap and must advance.
func New(codec token.Codec, maxTokens, overlap int) (*Chunker, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("max tokens must be positive, got %d", maxTokens)
	}
	if overlap < 0 || overlap >= maxTokens {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", maxTokens, overlap)
	}
	return &Chunker{codec: codec, maxTokens: maxTokens, overlap: overlap}, nil
}

// Split produces passages for every section of the document, in section
// order, with a document-wide sequential chunk index. Only the text fields
// are populated; identity, topics, and vectors are filled by the caller.
func (c *Chunker) Split(doc *filing.ParsedDocument) []filing.Passage {
	var passages []filing.Passage
	index := 0

	for _, section := range doc.Sections {
		for _, text := range c.window(section.Text) {
			passages = append(passages, filing.Passage{
				SectionName:     section.Name,
				SectionCategory: section.Category,
				ChunkIndex:      index,
				Text:            text,
				TokenCount:      c.codec.Count(text),
			})
			index++
		}

		for _, table := range section.Tables {
			if strings.TrimSpace(table) == "" {
				continue
			}
			passages = append(passages, filing.Passage{
				SectionName:     section.Name,
				SectionCategory: section.Category,
				ChunkIndex:      index,
				Text:            table,
				TokenCount:      c.codec.Count(table),
				IsTable:         true,
			})
			index++
		}
	}

	return passages
}

// window slices text into decoded token windows of maxTokens with overlap.
func (c *Chunker) window(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	tokens := c.codec.Encode(text)
	if len(tokens) <= c.maxTokens {
		return []string{text}
	}

	stride := c.maxTokens - c.overlap
	var chunks []string
	for start := 0; start < len(tokens); start += stride {
		end := start + c.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		chunk := strings.TrimSpace(c.codec.Decode(tokens[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(tokens) {
			break
		}
	}
	return chunks
}
