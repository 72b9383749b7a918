package ingest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Elements whose text is never page content
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
}

// PlainText strips markup from HTML input. Text without tags is only whitespace-collapsed.
func PlainText(s string) string {
	if !strings.Contains(s, "<") {
		return collapse(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapse(s)
	}
	return SelectionText(doc.Selection)
}

// SelectionText returns the visible text of sel with one space between text nodes
func SelectionText(sel *goquery.Selection) string {
	var b strings.Builder
	collectText(sel, &b)
	return collapse(b.String())
}

func collectText(sel *goquery.Selection, b *strings.Builder) {
	sel.Contents().Each(func(_ int, node *goquery.Selection) {
		name := goquery.NodeName(node)
		switch {
		case name == "#text":
			b.WriteString(node.Text())
			b.WriteByte(' ')
		case skippedElements[name]:
		default:
			collectText(node, b)
		}
	})
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
