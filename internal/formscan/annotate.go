package formscan

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cvtailor/cvtailor/internal/domain"
)

// RefAttr is stamped on page controls when a live page is snapshotted so
// that writes made on the snapshot can be replayed on the real element.
const RefAttr = "data-scan-ref"

// Annotator writes attributes onto page elements. Writes are limited to
// ids and labels; user-entered values are never touched.
type Annotator interface {
	SetAttr(el *goquery.Selection, name, value string)
}

// DocumentAnnotator writes into the scanned document only
type DocumentAnnotator struct{}

func (DocumentAnnotator) SetAttr(el *goquery.Selection, name, value string) {
	el.SetAttr(name, value)
}

// RecordingAnnotator writes into the scanned document and records every
// write made on an element carrying RefAttr.
type RecordingAnnotator struct {
	mutations []domain.Mutation
}

// NewRecordingAnnotator creates an empty recording annotator
func NewRecordingAnnotator() *RecordingAnnotator {
	return &RecordingAnnotator{}
}

func (a *RecordingAnnotator) SetAttr(el *goquery.Selection, name, value string) {
	el.SetAttr(name, value)
	if ref, ok := el.Attr(RefAttr); ok && ref != "" {
		a.mutations = append(a.mutations, domain.Mutation{Ref: ref, Name: name, Value: value})
	}
}

// Mutations returns the recorded writes in order
func (a *RecordingAnnotator) Mutations() []domain.Mutation {
	return append([]domain.Mutation(nil), a.mutations...)
}

// EnsureStableID returns the element's id, writing fallback onto the
// element first when it has none.
func EnsureStableID(a Annotator, el *goquery.Selection, fallback string) string {
	if id, ok := el.Attr("id"); ok && strings.TrimSpace(id) != "" {
		return id
	}
	a.SetAttr(el, "id", fallback)
	return fallback
}
