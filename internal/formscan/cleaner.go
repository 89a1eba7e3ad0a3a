package formscan

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Clean strips legends and empty fieldsets from a serialized shadow form and
// returns the cleaned markup with its field count, the number of direct
// children of the form root. A form without children is dropped entirely
// and reports zero. Clean is idempotent.
func Clean(shadowHTML string) (string, int) {
	root := &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div"}
	nodes, err := html.ParseFragment(strings.NewReader(shadowHTML), root)
	if err != nil {
		return "", 0
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}

	doc := goquery.NewDocumentFromNode(root)
	count := cleanTree(doc.Selection)

	out, err := doc.Html()
	if err != nil {
		return "", 0
	}
	return out, count
}

func cleanTree(root *goquery.Selection) int {
	root.Find("legend").Remove()

	// innermost first so a parent emptied by its child is seen empty
	fieldsets := root.Find("fieldset")
	for i := fieldsets.Length() - 1; i >= 0; i-- {
		if fs := fieldsets.Eq(i); emptyFieldset(fs) {
			fs.Remove()
		}
	}

	form := root.Find("form").First()
	if form.Length() == 0 {
		return 0
	}

	count := form.Contents().Length()
	if count == 0 {
		form.Remove()
	}
	return count
}

// emptyFieldset reports a fieldset with no children at all, or exactly one
// child element holding no text.
func emptyFieldset(fs *goquery.Selection) bool {
	if fs.Contents().Length() == 0 {
		return true
	}
	children := fs.Children()
	return children.Length() == 1 && strings.TrimSpace(children.First().Text()) == ""
}
