package passage

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/kailas-cloud/findex/internal/db"
	"github.com/kailas-cloud/findex/internal/domain/filing"
	"github.com/kailas-cloud/findex/internal/domain/search"
)

// buildHashFields converts a domain Passage into a flat map[string]string
// for HSET. Dates are stored as YYYYMMDD integers so FT numeric range
// filters work on them.
func buildHashFields(p *filing.Passage) map[string]string {
	m := map[string]string{
		"ticker":      p.Ticker,
		"filing_type": string(p.FilingType),
		"filing_date": strconv.Itoa(dateToNumeric(p.FilingDate)),
		"accession":   p.AccessionNumber,
		"section":     p.SectionName,
		"category":    string(p.SectionCategory),
		"chunk_index": strconv.Itoa(p.ChunkIndex),
		"token_count": strconv.Itoa(p.TokenCount),
		"is_table":    boolTag(p.IsTable),
		"__content":   p.Text,
		"__vector":    vectorToBytes(p.Vector),
	}
	if len(p.Topics) > 0 {
		m["topics"] = strings.Join(p.Topics, topicsSeparator)
	}
	return m
}

// parseResultEntry converts one FT.SEARCH hit back into a search result.
func parseResultEntry(entry db.SearchEntry) search.Result {
	f := entry.Fields

	res := search.Result{
		Text:            f["__content"],
		FilingType:      filing.Type(f["filing_type"]),
		FilingDate:      numericToDate(f["filing_date"]),
		SectionName:     f["section"],
		SectionCategory: filing.Category(f["category"]),
		IsTable:         f["is_table"] == "1",
		Similarity:      entry.Score,
	}
	if topics := f["topics"]; topics != "" {
		res.Topics = strings.Split(topics, topicsSeparator)
	}
	if n, err := strconv.Atoi(f["token_count"]); err == nil {
		res.TokenCount = n
	}
	return res
}

func boolTag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// dateToNumeric converts "2024-03-15" to 20240315. Malformed dates map
// to 0, which sorts before every real filing date.
func dateToNumeric(date string) int {
	n, err := strconv.Atoi(strings.ReplaceAll(date, "-", ""))
	if err != nil {
		return 0
	}
	return n
}

// numericToDate converts "20240315" back to "2024-03-15".
func numericToDate(s string) string {
	// numeric fields come back in float notation from some server versions
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	if len(s) != 8 {
		return ""
	}
	return s[:4] + "-" + s[4:6] + "-" + s[6:]
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
