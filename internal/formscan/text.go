package formscan

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Elements whose text is never rendered
var hiddenTextTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// Elements that break rendered text onto a new line
var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"fieldset": true, "figcaption": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "label": true, "legend": true, "li": true,
	"main": true, "nav": true, "ol": true, "option": true, "p": true,
	"section": true, "table": true, "td": true, "th": true, "tr": true, "ul": true,
}

// visibleText approximates innerText: hidden elements are skipped, block
// boundaries become spaces and whitespace is collapsed.
func visibleText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		writeText(&b, n)
	}
	return collapse(b.String())
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if hiddenTextTags[n.Data] {
			return
		}
	}

	block := n.Type == html.ElementNode && blockTags[n.Data]
	if block {
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteByte(' ')
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func attr(sel *goquery.Selection, name string) string {
	v, _ := sel.Attr(name)
	return strings.TrimSpace(v)
}

func tagName(sel *goquery.Selection) string {
	return strings.ToLower(goquery.NodeName(sel))
}

// fieldType returns the effective type of a control: the lowercased type
// attribute for inputs and the tag name for everything else.
func fieldType(sel *goquery.Selection) string {
	tag := tagName(sel)
	if tag != "input" {
		return tag
	}
	t := strings.ToLower(attr(sel, "type"))
	if t == "" {
		return "text"
	}
	return t
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func containsFold(s string, terms ...string) bool {
	s = strings.ToLower(s)
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
