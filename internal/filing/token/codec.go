// Package token wraps the tiktoken BPE codec used for chunk sizing and
// budget accounting. Chunk boundaries are token-exact: the chunker encodes,
// slices, and decodes through the same codec the embedding model uses.
package token

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Codec encodes and decodes text as BPE token sequences.
type Codec interface {
	Encode(text string) []int
	Decode(tokens []int) string
	Count(text string) int
}

type tiktokenCodec struct {
	enc *tiktoken.Tiktoken
}

var (
	cl100kOnce sync.Once
	cl100k     *tiktokenCodec
	cl100kErr  error
)

// NewCL100K returns the shared cl100k_base codec (the encoding used by the
// text-embedding-3 family). Initialization loads the BPE ranks once.
func NewCL100K() (Codec, error) {
	cl100kOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			cl100kErr = fmt.Errorf("load cl100k_base encoding: %w", err)
			return
		}
		cl100k = &tiktokenCodec{enc: enc}
	})
	if cl100kErr != nil {
		return nil, cl100kErr
	}
	return cl100k, nil
}

func (c *tiktokenCodec) Encode(text string) []int {
	return c.enc.Encode(text, nil, nil)
}

func (c *tiktokenCodec) Decode(tokens []int) string {
	return c.enc.Decode(tokens)
}

func (c *tiktokenCodec) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}
