package domain

import (
	"time"

	"github.com/google/uuid"
)

// FieldKind is the normalized kind of a discovered form control
type FieldKind string

const (
	FieldKindInput    FieldKind = "input"
	FieldKindTextarea FieldKind = "textarea"
	FieldKindSelect   FieldKind = "select"
	FieldKindRadio    FieldKind = "radio"
	FieldKindCheckbox FieldKind = "checkbox"
	FieldKindFieldset FieldKind = "fieldset"
)

// FieldOption is one enumerated value of a select field
type FieldOption struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// FieldDescriptor is the normalized metadata of one form control.
// Label is always longer than 3 characters and ID never contains "undefined".
type FieldDescriptor struct {
	ID          string        `json:"id"`
	Kind        FieldKind     `json:"type"`
	InputType   string        `json:"input_type,omitempty"`
	Label       string        `json:"label"`
	Name        string        `json:"name,omitempty"`
	Placeholder string        `json:"placeholder,omitempty"`
	Value       string        `json:"value,omitempty"`
	Options     []FieldOption `json:"options,omitempty"`
}

// HandlerEntry is the fill metadata recorded for one field
type HandlerEntry struct {
	Label    string `json:"label"`
	Type     string `json:"type"`
	FormType string `json:"formType"`
}

// FormHandlerMap maps form id to field id to fill metadata
type FormHandlerMap map[string]map[string]HandlerEntry

// Add records a field under a form, creating the form entry on demand
func (m FormHandlerMap) Add(formID, fieldID string, entry HandlerEntry) {
	fields, ok := m[formID]
	if !ok {
		fields = make(map[string]HandlerEntry)
		m[formID] = fields
	}
	fields[fieldID] = entry
}

// Ensure creates an empty entry for a form
func (m FormHandlerMap) Ensure(formID string) {
	if _, ok := m[formID]; !ok {
		m[formID] = make(map[string]HandlerEntry)
	}
}

// ShadowFormResult is one serialized shadow form handed to the auto-fill classifier
type ShadowFormResult struct {
	FormID     string            `json:"form_id"`
	Form       string            `json:"form"`
	FieldCount int               `json:"fieldCount"`
	Fields     []FieldDescriptor `json:"fields,omitempty"`
}

// Mutation is an attribute write applied to the scanned page
type Mutation struct {
	Ref   string `json:"ref,omitempty"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ContainerFailure describes a container excluded because its assembly failed
type ContainerFailure struct {
	FormID     string `json:"form_id"`
	FieldIndex int    `json:"field_index"`
	Error      string `json:"error"`
}

// ScanResult is the outcome of one discovery pass over a page
type ScanResult struct {
	ScanID              uuid.UUID          `json:"scan_id"`
	URL                 string             `json:"url"`
	Adapter             string             `json:"adapter,omitempty"`
	Forms               []ShadowFormResult `json:"forms"`
	Handlers            FormHandlerMap     `json:"handlers"`
	CoverLetterSelector string             `json:"cover_letter_selector,omitempty"`
	RedirectURL         string             `json:"redirect_url,omitempty"`
	Mutations           []Mutation         `json:"mutations,omitempty"`
	Failures            []ContainerFailure `json:"failures,omitempty"`
	Duration            time.Duration      `json:"duration"`
	ScannedAt           time.Time          `json:"scanned_at"`
}

// Empty reports whether no form reached the emission threshold
func (r *ScanResult) Empty() bool {
	return len(r.Forms) == 0
}

// FieldCount returns the total field count over all emitted forms
func (r *ScanResult) FieldCount() int {
	total := 0
	for _, f := range r.Forms {
		total += f.FieldCount
	}
	return total
}

// FillAction is one fill instruction for the fill executor
type FillAction struct {
	Selector string `json:"selector"`
	Action   string `json:"action"`
	Value    string `json:"value"`
}
