package formscan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cvtailor/cvtailor/internal/domain"
)

// Scan outcomes reported to the Recorder
const (
	OutcomeForms    = domain.OutcomeForms
	OutcomeEmpty    = domain.OutcomeEmpty
	OutcomeRedirect = domain.OutcomeRedirect
	OutcomeError    = domain.OutcomeError
)

// DefaultContainerSelectors are the generic candidate container selectors
var DefaultContainerSelectors = []string{
	"form:not(#formabe):not(#rd-cnt-job-form)",
	"div[data-automation-id='contactInformationPage']",
	"div[data-automation-id='myExperiencePage']",
	"div.bubble-element",
	"div.p-gridlayout",
}

// Options tunes discovery
type Options struct {
	// MinFieldCount is the field count a shadow form needs to be emitted
	MinFieldCount int

	// FieldsetDepth is how many fieldset levels keep their grouping
	FieldsetDepth int

	// ClickSettle is waited after each adapter click
	ClickSettle time.Duration

	// ContainerSelectors are queried when no adapter picks a container
	ContainerSelectors []string
}

// DefaultOptions returns the production discovery settings
func DefaultOptions() Options {
	return Options{
		MinFieldCount:      4,
		FieldsetDepth:      1,
		ClickSettle:        300 * time.Millisecond,
		ContainerSelectors: DefaultContainerSelectors,
	}
}

// Recorder receives scan metrics
type Recorder interface {
	ScanCompleted(outcome string, forms int, d time.Duration)
	FormEmitted(fieldCount int)
	AdapterMatched(adapter string)
	ContainerFailed()
}

type nopRecorder struct{}

func (nopRecorder) ScanCompleted(string, int, time.Duration) {}
func (nopRecorder) FormEmitted(int)                         {}
func (nopRecorder) AdapterMatched(string)                   {}
func (nopRecorder) ContainerFailed()                        {}

// Session is the state shared by every step of one scan: the handler map,
// the cover-letter slot and the page writes made so far.
type Session struct {
	Handlers            domain.FormHandlerMap
	CoverLetterSelector string

	annotator *RecordingAnnotator
	uploads   []domain.FieldDescriptor
	mirrored  map[*html.Node]bool
}

// NewSession creates an empty scan session
func NewSession() *Session {
	return &Session{
		Handlers:  make(domain.FormHandlerMap),
		annotator: NewRecordingAnnotator(),
		mirrored:  make(map[*html.Node]bool),
	}
}

// Scanner discovers the application forms of a page
type Scanner struct {
	opts     Options
	registry *Registry
	recorder Recorder
	logger   *zap.Logger
}

// ScannerOption configures a Scanner
type ScannerOption func(*Scanner)

// WithRecorder reports scan metrics to r
func WithRecorder(r Recorder) ScannerOption {
	return func(s *Scanner) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithRegistry replaces the built-in adapter registry
func WithRegistry(r *Registry) ScannerOption {
	return func(s *Scanner) {
		if r != nil {
			s.registry = r
		}
	}
}

// NewScanner creates a scanner
func NewScanner(opts Options, logger *zap.Logger, options ...ScannerOption) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MinFieldCount <= 0 {
		opts.MinFieldCount = DefaultOptions().MinFieldCount
	}
	if opts.FieldsetDepth < 0 {
		opts.FieldsetDepth = 0
	}
	if len(opts.ContainerSelectors) == 0 {
		opts.ContainerSelectors = DefaultContainerSelectors
	}

	s := &Scanner{
		opts:     opts,
		registry: DefaultRegistry(logger),
		recorder: nopRecorder{},
		logger:   logger,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Scan runs one discovery pass over page. Scans of the same page must not
// overlap; callers serialize them. resume may be nil.
func (s *Scanner) Scan(ctx context.Context, page Page, resume ResumeCounter) (*domain.ScanResult, error) {
	start := time.Now()

	result, err := s.scan(ctx, page, resume)
	if err != nil {
		s.recorder.ScanCompleted(OutcomeError, 0, time.Since(start))
		return nil, err
	}

	result.Duration = time.Since(start)
	outcome := result.Outcome()
	s.recorder.ScanCompleted(outcome, len(result.Forms), result.Duration)

	s.logger.Info("scan completed",
		zap.String("url", result.URL),
		zap.String("adapter", result.Adapter),
		zap.String("outcome", outcome),
		zap.Int("forms", len(result.Forms)),
		zap.Int("fields", result.FieldCount()),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (s *Scanner) scan(ctx context.Context, page Page, resume ResumeCounter) (*domain.ScanResult, error) {
	doc, err := page.Document(ctx)
	if err != nil {
		return nil, domain.ErrScanFailed("reading document", err)
	}

	session := NewSession()
	result := &domain.ScanResult{
		ScanID:    uuid.New(),
		URL:       page.URL().String(),
		Forms:     []domain.ShadowFormResult{},
		Handlers:  session.Handlers,
		ScannedAt: time.Now().UTC(),
	}

	env := &AdapterEnv{
		Page:        page,
		Doc:         doc,
		Annotator:   session.annotator,
		Resume:      resume,
		ClickSettle: s.opts.ClickSettle,
		Logger:      s.logger,
	}
	name, adapted := s.registry.Adapt(ctx, env)
	if err := ctx.Err(); err != nil {
		return nil, domain.ErrScanFailed("scan cancelled", err)
	}
	if name != "" {
		result.Adapter = name
		s.recorder.AdapterMatched(name)
	}
	doc = env.Doc

	switch {
	case adapted.RedirectURL != "":
		result.RedirectURL = adapted.RedirectURL
	case adapted.Sentinel != "":
		if err := s.bespoke(adapted.Sentinel, doc, session, result); err != nil {
			return nil, err
		}
	default:
		var containers []*goquery.Selection
		if adapted.Container != nil {
			containers = []*goquery.Selection{adapted.Container}
		} else {
			containers = FilterCandidates(doc.Find(strings.Join(s.opts.ContainerSelectors, ", ")))
		}
		if err := s.assembleAll(ctx, doc, containers, session, result); err != nil {
			return nil, err
		}
	}

	result.CoverLetterSelector = session.CoverLetterSelector
	result.Mutations = session.annotator.Mutations()
	return result, nil
}

func (s *Scanner) assembleAll(ctx context.Context, doc *goquery.Document, containers []*goquery.Selection, session *Session, result *domain.ScanResult) error {
	s.prepareUploads(doc, session)

	synth := NewSynthesizer(session.annotator, session)
	assembler := NewAssembler(synth, session, s.opts.FieldsetDepth, s.logger)

	for i, c := range containers {
		if err := ctx.Err(); err != nil {
			return domain.ErrScanFailed("scan cancelled", err)
		}

		formID := EnsureStableID(session.annotator, c, fmt.Sprintf("form-%d", i))
		sf, err := assembler.Assemble(c, formID)
		if err != nil {
			s.recordFailure(result, formID, err)
			continue
		}

		form, handlers := sf.Result()
		if form.FieldCount < s.opts.MinFieldCount {
			s.logger.Debug("form below threshold",
				zap.String("form_id", formID),
				zap.Int("field_count", form.FieldCount),
			)
			continue
		}

		result.Forms = append(result.Forms, form)
		session.Handlers.Ensure(formID)
		for id, h := range handlers {
			session.Handlers.Add(formID, id, h)
		}
		s.recorder.FormEmitted(form.FieldCount)
	}
	return nil
}

func (s *Scanner) recordFailure(result *domain.ScanResult, formID string, err error) {
	index := 0
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		if v, ok := appErr.Metadata["field_index"].(int); ok {
			index = v
		}
	}

	s.logger.Warn("container assembly failed",
		zap.String("form_id", formID),
		zap.Int("field_index", index),
		zap.Error(err),
	)
	s.recorder.ContainerFailed()
	result.Failures = append(result.Failures, domain.ContainerFailure{
		FormID:     formID,
		FieldIndex: index,
		Error:      err.Error(),
	})
}

// prepareUploads labels the page's drag-and-drop upload controls and
// queues a shadow upload field prepended to every shadow form.
func (s *Scanner) prepareUploads(doc *goquery.Document, session *Session) {
	if upload := doc.Find("input.file-upload-input").First(); upload.Length() > 0 {
		session.annotator.SetAttr(upload, "aria-label", uploadLabel)
	}

	dz := doc.Find("input[type='file'].dz-hidden-input").First()
	if dz.Length() == 0 {
		return
	}

	id := normalizeUploadID(attr(dz, "id"))
	if id == "" {
		id = uploadFallbackID
	}
	if id != attr(dz, "id") {
		session.annotator.SetAttr(dz, "id", id)
	}

	session.mirrored[dz.Nodes[0]] = true
	session.uploads = append(session.uploads, domain.FieldDescriptor{
		ID:        id,
		Kind:      domain.FieldKindInput,
		InputType: "file",
		Label:     uploadLabel,
	})
}

// bespoke emits the fixed form of a sentinel flow, bypassing the threshold
func (s *Scanner) bespoke(sentinel string, doc *goquery.Document, session *Session, result *domain.ScanResult) error {
	switch sentinel {
	case SentinelAbbott:
		if upload := doc.Find("div.resume-upload-wrapper input").First(); upload.Length() > 0 {
			session.annotator.SetAttr(upload, "id", uploadFallbackID)
		}

		const formID = "resume-gpt-form"
		desc := domain.FieldDescriptor{
			ID:        uploadFallbackID,
			Kind:      domain.FieldKindInput,
			InputType: "file",
			Label:     "resume pdf",
		}
		form := newElement(atom.Form, "id", formID)
		form.AppendChild(newElement(atom.Input,
			"type", "file",
			"id", desc.ID,
			"aria-label", desc.Label))

		sf := &ShadowForm{ID: formID, root: form}
		result.Forms = append(result.Forms, domain.ShadowFormResult{
			FormID:     formID,
			Form:       sf.HTML(),
			FieldCount: 1,
			Fields:     []domain.FieldDescriptor{desc},
		})
		session.Handlers.Add(formID, desc.ID, HandlerEntry(desc))
		s.recorder.FormEmitted(1)
		return nil
	default:
		return domain.ErrScanFailed(fmt.Sprintf("unknown sentinel %q", sentinel), nil)
	}
}
