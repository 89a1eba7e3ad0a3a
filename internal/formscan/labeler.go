package formscan

import (
	"github.com/PuerkitoBio/goquery"
)

// MinLabelLength is the label length a control must exceed to be kept
const MinLabelLength = 3

// Attributes consulted in order when a control has no associated label
var labelAttrs = []string{
	"aria-label",
	"placeholder",
	"autocomplete",
	"data-test",
	"name",
}

// Control types whose surrounding text usually carries the question
var parentTextTypes = map[string]bool{
	"file":     true,
	"radio":    true,
	"checkbox": true,
	"textarea": true,
}

// LabelFor derives the human-readable label of a control. fieldType is the
// effective type of the control as returned by fieldType. The result is
// empty when no source yields text.
func LabelFor(field *goquery.Selection, fieldType string) string {
	label := associatedLabel(field)

	for _, name := range labelAttrs {
		if label != "" {
			break
		}
		label = attr(field, name)
	}

	if parentTextTypes[fieldType] {
		if parentText := visibleText(field.Parent()); runeLen(parentText) > MinLabelLength {
			if label == "" {
				label = parentText
			} else {
				label = label + " " + parentText
			}
		}
	}

	return collapse(label)
}

// associatedLabel returns the text of the first label bound to field, either
// through a matching for attribute or by wrapping the control.
func associatedLabel(field *goquery.Selection) string {
	if id := attr(field, "id"); id != "" {
		root := field.Parents().Last()
		if root.Length() == 0 {
			root = field
		}

		var text string
		root.Find("label[for]").EachWithBreak(func(_ int, l *goquery.Selection) bool {
			if forID, _ := l.Attr("for"); forID == id {
				text = visibleText(l)
				return false
			}
			return true
		})
		if text != "" {
			return text
		}
	}

	if wrapping := field.Closest("label"); wrapping.Length() > 0 {
		return visibleText(wrapping)
	}

	return ""
}
