// Package prefill answers shadow form fields straight from the resume
// details, so the classifier only sees the fields that need judgment.
package prefill

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cvtailor/cvtailor/internal/domain"
)

// ActionSetValue fills a text control
const ActionSetValue = "setValue"

var (
	whitespace  = regexp.MustCompile(`\s`)
	countryCode = regexp.MustCompile(`\+(\d{1,3})`)
)

// Input types whose value cannot be typed in
var unfillableTypes = map[string]bool{
	"file":     true,
	"radio":    true,
	"checkbox": true,
}

// Result is the outcome of matching forms against resume details
type Result struct {
	Forms   []domain.ShadowFormResult `json:"forms"`
	Actions []domain.FillAction       `json:"actions"`
}

// Match fills what it can in every form. Forms left with no fields are
// dropped from the result.
func Match(forms []domain.ShadowFormResult, details map[string]string) Result {
	res := Result{
		Forms:   []domain.ShadowFormResult{},
		Actions: []domain.FillAction{},
	}
	for _, f := range forms {
		remaining, actions := MatchForm(f, details)
		res.Actions = append(res.Actions, actions...)
		if remaining.FieldCount > 0 {
			res.Forms = append(res.Forms, remaining)
		}
	}
	return res
}

// MatchForm removes the inputs whose aria-label names a resume detail and
// returns a setValue action for each.
func MatchForm(form domain.ShadowFormResult, details map[string]string) (domain.ShadowFormResult, []domain.FillAction) {
	if len(details) == 0 {
		return form, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(form.Form))
	if err != nil {
		return form, nil
	}

	keys := sortedKeys(details)
	var actions []domain.FillAction
	filled := make(map[string]bool)

	doc.Find("input[aria-label][id]").Each(func(_ int, in *goquery.Selection) {
		typ, _ := in.Attr("type")
		if unfillableTypes[strings.ToLower(typ)] {
			return
		}

		label, _ := in.Attr("aria-label")
		value, ok := Lookup(label, details, keys)
		if !ok {
			return
		}

		id, _ := in.Attr("id")
		actions = append(actions, domain.FillAction{
			Selector: "#" + id,
			Action:   ActionSetValue,
			Value:    value,
		})
		filled[id] = true
		parent := in.Parent()
		in.Remove()
		dropEmptyFieldsets(parent)
	})

	if len(actions) == 0 {
		return form, nil
	}

	count := 0
	if root := doc.Find("form").First(); root.Length() > 0 {
		count = root.Contents().Length()
		if count == 0 {
			root.Remove()
		}
	}

	markup, err := doc.Find("body").Html()
	if err != nil {
		return form, nil
	}

	remaining := form
	remaining.Form, remaining.FieldCount = markup, count
	remaining.Fields = nil
	for _, d := range form.Fields {
		if !filled[d.ID] {
			remaining.Fields = append(remaining.Fields, d)
		}
	}
	return remaining, actions
}

// dropEmptyFieldsets removes fieldsets left without any children, walking
// up from sel. Fieldsets that still hold a field stay, however few.
func dropEmptyFieldsets(sel *goquery.Selection) {
	for sel.Is("fieldset") && sel.Contents().Length() == 0 {
		parent := sel.Parent()
		sel.Remove()
		sel = parent
	}
}

// Lookup returns the detail whose key appears in label, ignoring case and
// whitespace. Keys are tried in the order given. Phone numbers are adjusted
// to the country code the label expects.
func Lookup(label string, details map[string]string, keys []string) (string, bool) {
	normalizedLabel := normalize(label)
	for _, key := range keys {
		normalizedKey := normalize(key)
		if normalizedKey == "" || !strings.Contains(normalizedLabel, normalizedKey) {
			continue
		}
		value := details[key]
		if strings.Contains(normalizedKey, "phone") {
			return NormalizePhone(value, normalizedLabel), true
		}
		return value, true
	}
	return "", false
}

// NormalizePhone drops the country code from phone when the label already
// carries the same one.
func NormalizePhone(phone, label string) string {
	want := countryCode.FindStringSubmatch(label)
	have := countryCode.FindStringSubmatch(phone)
	if want == nil || have == nil || want[1] != have[1] {
		return phone
	}
	return strings.TrimSpace(strings.Replace(phone, "+"+have[1], "", 1))
}

func normalize(s string) string {
	return strings.ToLower(whitespace.ReplaceAllString(s, ""))
}

// sortedKeys orders keys longest first so "phone number" wins over "phone"
func sortedKeys(details map[string]string) []string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := len(normalize(keys[i])), len(normalize(keys[j]))
		if li != lj {
			return li > lj
		}
		return keys[i] < keys[j]
	})
	return keys
}
