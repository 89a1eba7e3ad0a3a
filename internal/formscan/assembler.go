package formscan

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cvtailor/cvtailor/internal/domain"
)

// ShadowForm is the detached copy of one container holding normalized
// controls only. It is discarded once serialized.
type ShadowForm struct {
	ID string

	root     *html.Node
	fields   []domain.FieldDescriptor
	handlers map[string]domain.HandlerEntry
	seen     map[string]bool
}

func newShadowForm(id string) *ShadowForm {
	return &ShadowForm{
		ID:       id,
		root:     newElement(atom.Form, "id", id),
		handlers: make(map[string]domain.HandlerEntry),
		seen:     make(map[string]bool),
	}
}

// add appends a field under parent. Ids already present are ignored.
func (f *ShadowForm) add(parent *html.Node, desc domain.FieldDescriptor) bool {
	if f.seen[desc.ID] {
		return false
	}
	f.seen[desc.ID] = true
	parent.AppendChild(shadowNode(desc))
	f.fields = append(f.fields, desc)
	f.handlers[desc.ID] = HandlerEntry(desc)
	return true
}

// HTML serializes the shadow form before cleaning
func (f *ShadowForm) HTML() string {
	var b bytes.Buffer
	if err := html.Render(&b, f.root); err != nil {
		return ""
	}
	return b.String()
}

// Result cleans the shadow form and keeps only the descriptors and handler
// entries of fields that survived cleaning.
func (f *ShadowForm) Result() (domain.ShadowFormResult, map[string]domain.HandlerEntry) {
	cleaned, count := Clean(f.HTML())
	res := domain.ShadowFormResult{FormID: f.ID, Form: cleaned, FieldCount: count}
	handlers := make(map[string]domain.HandlerEntry)
	if count == 0 {
		return res, handlers
	}

	present := presentIDs(cleaned)
	for _, d := range f.fields {
		if present[d.ID] {
			res.Fields = append(res.Fields, d)
		}
	}
	for id, h := range f.handlers {
		if present[id] {
			handlers[id] = h
		}
	}
	return res, handlers
}

func presentIDs(markup string) map[string]bool {
	ids := make(map[string]bool)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ids
	}
	doc.Find("[id]").Each(func(_ int, s *goquery.Selection) {
		ids[attr(s, "id")] = true
	})
	return ids
}

// Assembler walks a container once and builds its shadow form
type Assembler struct {
	synth         *Synthesizer
	session       *Session
	fieldsetDepth int
	logger        *zap.Logger
}

// NewAssembler creates an assembler. Fieldsets nested deeper than
// fieldsetDepth are flattened into their parent.
func NewAssembler(synth *Synthesizer, session *Session, fieldsetDepth int, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		synth:         synth,
		session:       session,
		fieldsetDepth: fieldsetDepth,
		logger:        logger,
	}
}

type walkState struct {
	form    *ShadowForm
	index   int
	current int
}

// Assemble builds the shadow form of container under formID. A failure
// anywhere in the walk fails this container only.
func (a *Assembler) Assemble(container *goquery.Selection, formID string) (sf *ShadowForm, err error) {
	w := &walkState{form: newShadowForm(formID)}

	defer func() {
		if rec := recover(); rec != nil {
			sf = nil
			err = domain.ErrContainerAssembly(formID, w.current, fmt.Errorf("%v", rec))
		}
	}()

	for _, upload := range a.session.uploads {
		w.form.add(w.form.root, upload)
	}
	a.walk(w, container, w.form.root, 0)

	return w.form, nil
}

func (a *Assembler) walk(w *walkState, parent *goquery.Selection, into *html.Node, depth int) {
	parent.Children().Each(func(_ int, child *goquery.Selection) {
		if a.session.mirrored[child.Nodes[0]] {
			return
		}

		switch tagName(child) {
		case "input", "select", "textarea":
			n := w.index
			w.index++
			w.current = n
			a.addField(w, child, n, into)
		case "fieldset":
			n := w.index
			w.index++
			w.current = n
			if depth < a.fieldsetDepth {
				a.addFieldset(w, child, n, into, depth)
			} else {
				a.walk(w, child, into, depth)
			}
		case "script", "style", "template", "noscript":
		default:
			a.walk(w, child, into, depth)
		}
	})
}

func (a *Assembler) addField(w *walkState, field *goquery.Selection, n int, into *html.Node) {
	typ := fieldType(field)
	if skippedInputTypes[typ] {
		return
	}

	label := LabelFor(field, typ)
	if runeLen(label) <= MinLabelLength {
		a.logger.Debug("field skipped, label too short",
			zap.String("form_id", w.form.ID),
			zap.Int("field_index", n),
			zap.String("label", label),
		)
		return
	}

	id, ok := a.synth.ResolveID(field, typ, fallbackID(w.form, field, n))
	if !ok {
		a.logger.Debug("field skipped",
			zap.String("form_id", w.form.ID),
			zap.Int("field_index", n),
			zap.Error(domain.ErrMalformedFieldID(id)),
		)
		return
	}

	if !w.form.add(into, a.synth.Describe(field, id, label, typ)) {
		a.logger.Warn("duplicate field id skipped",
			zap.String("form_id", w.form.ID),
			zap.String("field_id", id),
		)
	}
}

func (a *Assembler) addFieldset(w *walkState, fs *goquery.Selection, n int, into *html.Node, depth int) {
	id, ok := a.synth.ResolveID(fs, "fieldset", fmt.Sprintf("%s-fieldset-%d", w.form.ID, n))
	if !ok || w.form.seen[id] {
		a.walk(w, fs, into, depth)
		return
	}
	w.form.seen[id] = true

	node := newElement(atom.Fieldset, "id", id)
	var legendText string
	if legend := fs.ChildrenFiltered("legend").First(); legend.Length() > 0 {
		legendText = visibleText(legend)
		l := newElement(atom.Legend)
		if legendText != "" {
			l.AppendChild(&html.Node{Type: html.TextNode, Data: legendText})
		}
		node.AppendChild(l)
	}

	pos := len(w.form.fields)
	a.walk(w, fs, node, depth+1)
	into.AppendChild(node)

	if runeLen(legendText) > MinLabelLength {
		w.form.fields = slices.Insert(w.form.fields, pos, domain.FieldDescriptor{
			ID:    id,
			Kind:  domain.FieldKindFieldset,
			Label: legendText,
		})
	}
}

// fallbackID returns <form>-input-<n>, suffixed until it clashes with
// neither a field already in the shadow form nor an id on the page.
func fallbackID(form *ShadowForm, field *goquery.Selection, n int) string {
	base := fmt.Sprintf("%s-input-%d", form.ID, n)
	page := field.Parents().Last()
	taken := func(id string) bool {
		if form.seen[id] {
			return true
		}
		return page.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return attr(s, "id") == id
		}).Length() > 0
	}

	id := base
	for k := 1; taken(id); k++ {
		id = fmt.Sprintf("%s-%d", base, k)
	}
	return id
}
