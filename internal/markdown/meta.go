// Package markdown extracts document metadata (title, summary) from markdown
// sources during ingestion.
package markdown

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// summaryLimit caps the extracted summary length in bytes.
const summaryLimit = 500

// Extractor derives a title and summary from markdown content.
type Extractor struct {
	parser goldmark.Markdown
}

// NewExtractor creates an Extractor with a configured goldmark parser.
func NewExtractor() *Extractor {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Extractor{
		parser: md,
	}
}

// Extract returns the document title (first top-level heading) and summary
// (first paragraph). Either may be empty when the document has no heading or
// no prose; callers supply fallbacks.
func (e *Extractor) Extract(source []byte) (title, summary string) {
	reader := text.NewReader(source)
	doc := e.parser.Parser().Parse(reader)

	title = firstHeading(doc, source)
	summary = firstParagraph(doc, source)
	return title, summary
}

// firstHeading returns the first H1 title via the TOC, falling back to the
// first heading of any level.
func firstHeading(doc ast.Node, source []byte) string {
	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(1),
		toc.Compact(true),
	)
	if err == nil && len(tree.Items) > 0 {
		return string(tree.Items[0].Title)
	}

	var title string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			title = string(n.Text(source))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(title)
}

// firstParagraph returns the text of the first paragraph node, truncated to
// summaryLimit bytes on a word boundary.
func firstParagraph(doc ast.Node, source []byte) string {
	var summary string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindParagraph {
			summary = string(n.Text(source))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})

	summary = strings.TrimSpace(summary)
	if len(summary) > summaryLimit {
		cut := strings.LastIndex(summary[:summaryLimit], " ")
		if cut <= 0 {
			cut = summaryLimit
		}
		summary = summary[:cut]
	}
	return summary
}
