// Package parser splits SEC filing HTML into the item sections defined by
// the per-form taxonomy. Tables are lifted out of the text flow during HTML
// extraction and re-attached to the section they appeared in, so prose
// chunking never cuts through tabular data.
package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/kailas-cloud/findex/internal/domain/filing"
)

const (
	// Tables whose rendered text is shorter than this are layout artifacts,
	// not data tables.
	minTableChars = 30

	// Sections shorter than this after table detachment carry no signal
	// (usually a TOC fragment that survived keep-last matching).
	minSectionChars = 50

	tablePlaceholderFormat = "[[TABLE_PLACEHOLDER_%d]]"
)

// Item headers: "Item 1", "ITEM 1A.", "Item 2.02:" etc. The code group covers
// 10-K/10-Q item letters and 8-K dotted numbering.
var itemHeaderRe = regexp.MustCompile(`(?:^|\n)\s*(?:ITEM|Item)\s+(\d+(?:[A-Ca-c])?(?:\.\d{2})?)\s*[.:\-—\s]`)

var tablePlaceholderRe = regexp.MustCompile(`\[\[TABLE_PLACEHOLDER_(\d+)\]\]`)

// "Table of Contents" navigation lines recur on almost every page of an
// EDGAR document and would pollute section text.
var tocLineRe = regexp.MustCompile(`(?i)table of contents?\s*\n`)

// Parser converts filing HTML into a ParsedDocument.
type Parser struct{}

// New creates a Parser.
func New() *Parser {
	return &Parser{}
}

// Parse extracts text and tables from the HTML and splits the text along the
// item taxonomy for the given form type. When fewer than two item headers are
// found the whole document is returned as a single fallback section.
func (p *Parser) Parse(htmlSrc string, formType filing.Type) (*filing.ParsedDocument, error) {
	text, tables, err := extract(htmlSrc)
	if err != nil {
		return nil, fmt.Errorf("extract html: %w", err)
	}

	sections := splitSections(text, tables, filing.SectionMap(formType))
	if len(sections) >= 2 {
		return &filing.ParsedDocument{
			Type:     formType,
			Sections: sections,
			Quality:  filing.QualitySectioned,
		}, nil
	}

	// Fallback: carry the whole document as one section.
	fullText, fullTables := detachTables(text, tables)
	return &filing.ParsedDocument{
		Type: formType,
		Sections: []filing.Section{{
			ID:       "full_document",
			Name:     "Full Document",
			Category: filing.CategoryGeneral,
			Text:     fullText,
			Tables:   fullTables,
		}},
		Quality: filing.QualityFallback,
	}, nil
}

// splitSections locates item headers and slices the text between them.
// Filings repeat item headers in the table of contents, so for each item
// code only the LAST occurrence is kept: the body heading always comes
// after the TOC entry. Every header bounds the section before it, even
// codes outside the taxonomy; only taxonomy codes become sections.
func splitSections(text string, tables []string, taxonomy map[string]filing.SectionSpec) []filing.Section {
	if len(taxonomy) == 0 {
		return nil
	}

	matches := itemHeaderRe.FindAllStringSubmatchIndex(text, -1)

	type hit struct {
		code       string
		start, end int
	}
	lastByCode := make(map[string]hit)
	for _, m := range matches {
		code := strings.ToUpper(text[m[2]:m[3]])
		lastByCode[code] = hit{code: code, start: m[0], end: m[1]}
	}

	hits := make([]hit, 0, len(lastByCode))
	for _, h := range lastByCode {
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	sections := make([]filing.Section, 0, len(hits))
	for i, h := range hits {
		spec, known := taxonomy[h.code]
		if !known {
			continue
		}

		bodyEnd := len(text)
		if i+1 < len(hits) {
			bodyEnd = hits[i+1].start
		}

		// Body starts after the header match so the item marker itself
		// never leads the section text.
		body, sectionTables := detachTables(text[h.end:bodyEnd], tables)
		if len(strings.TrimSpace(body)) < minSectionChars && len(sectionTables) == 0 {
			continue
		}

		sections = append(sections, filing.Section{
			ID:       sectionID(h.code),
			Name:     spec.Name,
			Category: spec.Category,
			Text:     strings.TrimSpace(body),
			Tables:   sectionTables,
		})
	}

	return sections
}

func sectionID(code string) string {
	code = strings.ToLower(code)
	code = strings.ReplaceAll(code, ".", "_")
	return "item_" + code
}

// detachTables removes table placeholders from text and returns the
// referenced table renderings in order of appearance.
func detachTables(text string, tables []string) (string, []string) {
	var picked []string
	for _, m := range tablePlaceholderRe.FindAllStringSubmatch(text, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 0 || idx >= len(tables) {
			continue
		}
		picked = append(picked, tables[idx])
	}
	cleaned := tablePlaceholderRe.ReplaceAllString(text, "")
	return collapseWhitespace(cleaned), picked
}

// --- HTML extraction ---

// extract walks the HTML tree collecting visible text. Each data table is
// rendered to pipe-delimited text, stored aside, and replaced in the flow by
// an indexed placeholder.
func extract(src string) (string, []string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", nil, fmt.Errorf("parse html: %w", err)
	}

	var (
		sb     strings.Builder
		tables []string
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "head", "title":
				return
			case "table":
				rendered := renderTable(n)
				if len(rendered) >= minTableChars {
					sb.WriteString("\n")
					fmt.Fprintf(&sb, tablePlaceholderFormat, len(tables))
					sb.WriteString("\n")
					tables = append(tables, rendered)
				}
				return
			case "br":
				sb.WriteString("\n")
			case "p", "div", "tr", "li", "h1", "h2", "h3", "h4", "h5", "h6":
				sb.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	text := collapseWhitespace(sb.String())
	text = tocLineRe.ReplaceAllString(text, "")
	return text, tables, nil
}

// renderTable flattens a table to one line per row with cells joined by " | ".
func renderTable(table *html.Node) string {
	var rows []string
	var findRows func(n *html.Node)
	findRows = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			var findCells func(c *html.Node)
			findCells = func(c *html.Node) {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cell := strings.TrimSpace(nodeText(c))
					if cell != "" {
						cells = append(cells, cell)
					}
					return
				}
				for cc := c.FirstChild; cc != nil; cc = cc.NextSibling {
					findCells(cc)
				}
			}
			findCells(n)
			if len(cells) > 0 {
				rows = append(rows, strings.Join(cells, " | "))
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findRows(c)
		}
	}
	findRows(table)
	return strings.Join(rows, "\n")
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapseSpaces(sb.String())
}

var (
	spaceRunRe   = regexp.MustCompile(`[ \t\x{00a0}]+`)
	newlineRunRe = regexp.MustCompile(`\n{3,}`)
	lineSpaceRe  = regexp.MustCompile(`[ \t]*\n[ \t]*`)
)

func collapseWhitespace(s string) string {
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = lineSpaceRe.ReplaceAllString(s, "\n")
	s = newlineRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(spaceRunRe.ReplaceAllString(strings.ReplaceAll(s, "\n", " "), " "))
}
