package formscan

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cvtailor/cvtailor/internal/domain"
)

// Fragment of upload ids that lets a hosted form fetch the resume from a URL
// instead of accepting an upload.
var remoteUploadPattern = regexp.MustCompile(`remote|url`)

// Input types that never carry applicant data
var skippedInputTypes = map[string]bool{
	"submit":   true,
	"button":   true,
	"reset":    true,
	"image":    true,
	"hidden":   true,
	"password": true,
}

const (
	coverLetterAutocomplete = "hiring-manager-message-text"
	uploadLabel             = "resume file pdf"
	uploadFallbackID        = "resume-file"
)

// Synthesizer turns live controls into field descriptors, normalizing their
// ids on the page where required.
type Synthesizer struct {
	annotator Annotator
	session   *Session
}

// NewSynthesizer creates a synthesizer writing through annotator
func NewSynthesizer(annotator Annotator, session *Session) *Synthesizer {
	return &Synthesizer{annotator: annotator, session: session}
}

// ResolveID returns the id a control is addressed by, writing fallback onto
// the control when it has none. Remote-upload file ids are rewritten so the
// classifier treats them as plain file uploads. ok is false when the id
// contains "undefined" and the control must be skipped.
func (s *Synthesizer) ResolveID(field *goquery.Selection, typ, fallback string) (id string, ok bool) {
	id = attr(field, "id")
	if id != "" && typ == "file" && remoteUploadPattern.MatchString(id) {
		normalized := normalizeUploadID(id)
		if normalized == "" {
			normalized = fallback
		}
		s.annotator.SetAttr(field, "id", normalized)
		id = normalized
	}

	if id == "" {
		id = EnsureStableID(s.annotator, field, fallback)
	}

	if strings.Contains(id, "undefined") {
		return id, false
	}
	return id, true
}

func normalizeUploadID(id string) string {
	return strings.TrimLeft(remoteUploadPattern.ReplaceAllString(id, ""), "-_")
}

// Describe builds the descriptor of a control already given its id and label
func (s *Synthesizer) Describe(field *goquery.Selection, id, label, typ string) domain.FieldDescriptor {
	desc := domain.FieldDescriptor{
		ID:          id,
		Label:       label,
		Name:        attr(field, "name"),
		Placeholder: attr(field, "placeholder"),
	}

	switch typ {
	case "textarea":
		desc.Kind = domain.FieldKindTextarea
		if s.isCoverLetter(field) {
			s.session.CoverLetterSelector = "#" + id
		}
	case "select":
		desc.Kind = domain.FieldKindSelect
		field.Find("option").Each(func(_ int, opt *goquery.Selection) {
			text := visibleText(opt)
			value, ok := opt.Attr("value")
			if !ok {
				value = text
			}
			desc.Options = append(desc.Options, domain.FieldOption{Value: value, Text: text})
		})
	case "radio":
		desc.Kind = domain.FieldKindRadio
		desc.InputType = typ
		desc.Value = attr(field, "value")
	case "checkbox":
		desc.Kind = domain.FieldKindCheckbox
		desc.InputType = typ
		desc.Value = attr(field, "value")
	default:
		desc.Kind = domain.FieldKindInput
		desc.InputType = typ
	}

	return desc
}

func (s *Synthesizer) isCoverLetter(field *goquery.Selection) bool {
	if containsFold(attr(field, "aria-label"), "cover letter") ||
		containsFold(attr(field, "placeholder"), "cover letter") {
		return true
	}
	return attr(field, "autocomplete") == coverLetterAutocomplete
}

// HandlerEntry returns the fill metadata recorded for a descriptor
func HandlerEntry(desc domain.FieldDescriptor) domain.HandlerEntry {
	switch desc.Kind {
	case domain.FieldKindSelect:
		return domain.HandlerEntry{Label: desc.Label, Type: "select", FormType: "select"}
	case domain.FieldKindRadio:
		return domain.HandlerEntry{Label: desc.Label, Type: "radio", FormType: "radio"}
	case domain.FieldKindTextarea:
		return domain.HandlerEntry{Label: desc.Label, Type: "textarea", FormType: "input"}
	default:
		typ := desc.InputType
		if typ == "" {
			typ = "text"
		}
		return domain.HandlerEntry{Label: desc.Label, Type: typ, FormType: "input"}
	}
}

// shadowNode renders a descriptor as a detached element carrying only the
// attributes the classifier reads.
func shadowNode(desc domain.FieldDescriptor) *html.Node {
	switch desc.Kind {
	case domain.FieldKindSelect:
		n := newElement(atom.Select,
			"id", desc.ID,
			"name", desc.Name,
			"aria-label", desc.Label)
		for _, opt := range desc.Options {
			o := newElement(atom.Option, "value", opt.Value)
			o.AppendChild(&html.Node{Type: html.TextNode, Data: opt.Text})
			n.AppendChild(o)
		}
		return n
	case domain.FieldKindTextarea:
		return newElement(atom.Textarea,
			"id", desc.ID,
			"name", desc.Name,
			"placeholder", desc.Placeholder,
			"aria-label", desc.Label)
	case domain.FieldKindRadio, domain.FieldKindCheckbox:
		return newElement(atom.Input,
			"id", desc.ID,
			"type", desc.InputType,
			"name", desc.Name,
			"value", desc.Value,
			"aria-label", desc.Label)
	default:
		return newElement(atom.Input,
			"id", desc.ID,
			"name", desc.Name,
			"placeholder", desc.Placeholder,
			"type", desc.InputType,
			"aria-label", desc.Label)
	}
}

// newElement creates an element from name/value pairs, dropping empty
// values other than the id.
func newElement(a atom.Atom, kv ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" && kv[i] != "id" {
			continue
		}
		n.Attr = append(n.Attr, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return n
}
