package formscan

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/cvtailor/cvtailor/internal/domain"
)

// SentinelAbbott selects the bespoke single-upload flow
const SentinelAbbott = "jobs.abbott"

// AdapterResult is what a site adapter decided. The zero value means generic
// discovery runs.
type AdapterResult struct {
	// Container is the single root to assemble
	Container *goquery.Selection

	// Sentinel selects a bespoke single-form flow
	Sentinel string

	// RedirectURL is set when the form lives on another document
	RedirectURL string
}

// IsZero reports whether the adapter left discovery to the generic path
func (r AdapterResult) IsZero() bool {
	return r.Container == nil && r.Sentinel == "" && r.RedirectURL == ""
}

// ResumeCounter reports how many education and experience entries a resume holds
type ResumeCounter interface {
	BlockCounts() (education, experience int)
}

// AdapterEnv is the page state handed to an adapter
type AdapterEnv struct {
	Page        Page
	Doc         *goquery.Document
	Annotator   Annotator
	Resume      ResumeCounter
	ClickSettle time.Duration
	Logger      *zap.Logger
}

func (e *AdapterEnv) counts() (education, experience int) {
	if e.Resume == nil {
		return domain.DefaultBlockCount, domain.DefaultBlockCount
	}
	return e.Resume.BlockCounts()
}

// ClickTimes clicks selector up to times times, settling after each click.
// It stops early when the control disappears.
func (e *AdapterEnv) ClickTimes(ctx context.Context, selector string, times int) error {
	for i := 0; i < times; i++ {
		clicked, err := e.Page.Click(ctx, selector)
		if err != nil {
			return fmt.Errorf("clicking %s: %w", selector, err)
		}
		if !clicked {
			return nil
		}
		if err := e.settle(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ClickEach clicks every match of selector once and settles
func (e *AdapterEnv) ClickEach(ctx context.Context, selector string) error {
	n, err := e.Page.ClickEach(ctx, selector)
	if err != nil {
		return fmt.Errorf("clicking %s: %w", selector, err)
	}
	if n == 0 {
		return nil
	}
	return e.settle(ctx)
}

// Refresh re-reads the document after interactions
func (e *AdapterEnv) Refresh(ctx context.Context) error {
	doc, err := e.Page.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refreshing document: %w", err)
	}
	e.Doc = doc
	return nil
}

func (e *AdapterEnv) settle(ctx context.Context) error {
	if e.ClickSettle <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(e.ClickSettle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// First returns the first selector with a match as the container
func (e *AdapterEnv) First(selectors ...string) (AdapterResult, error) {
	for _, sel := range selectors {
		if c := e.Doc.Find(sel).First(); c.Length() > 0 {
			return AdapterResult{Container: c}, nil
		}
	}
	return AdapterResult{}, fmt.Errorf("no container matched %s", strings.Join(selectors, ", "))
}

// Adapter customizes discovery for one family of hosts
type Adapter struct {
	Name  string
	Match func(u *url.URL) bool
	Adapt func(ctx context.Context, env *AdapterEnv) (AdapterResult, error)
}

// Registry holds adapters in priority order; the first match wins
type Registry struct {
	adapters []Adapter
	logger   *zap.Logger
}

// NewRegistry creates a registry over adapters in the given order
func NewRegistry(logger *zap.Logger, adapters ...Adapter) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{adapters: adapters, logger: logger}
}

// DefaultRegistry returns the registry of every built-in adapter
func DefaultRegistry(logger *zap.Logger) *Registry {
	return NewRegistry(logger, DefaultAdapters()...)
}

// Lookup returns the first adapter matching u
func (r *Registry) Lookup(u *url.URL) (Adapter, bool) {
	if u == nil {
		return Adapter{}, false
	}
	for _, a := range r.adapters {
		if a.Match(u) {
			return a, true
		}
	}
	return Adapter{}, false
}

// Names lists adapters in priority order
func (r *Registry) Names() []string {
	names := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		names[i] = a.Name
	}
	return names
}

// Adapt runs the matching adapter, if any. A failing adapter is logged and
// treated as if it had matched nothing, so generic discovery still runs.
func (r *Registry) Adapt(ctx context.Context, env *AdapterEnv) (name string, result AdapterResult) {
	a, ok := r.Lookup(env.Page.URL())
	if !ok {
		return "", AdapterResult{}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("adapter panicked",
				zap.String("adapter", a.Name),
				zap.Any("panic", rec),
			)
			name, result = a.Name, AdapterResult{}
		}
	}()

	result, err := a.Adapt(ctx, env)
	if err != nil {
		r.logger.Warn("adapter failed, using generic discovery",
			zap.String("adapter", a.Name),
			zap.Error(domain.ErrAdapterFailure(a.Name, err.Error())),
		)
		return a.Name, AdapterResult{}
	}
	return a.Name, result
}

// HostContains matches hosts containing any of subs
func HostContains(subs ...string) func(u *url.URL) bool {
	return func(u *url.URL) bool {
		host := strings.ToLower(u.Host)
		for _, s := range subs {
			if strings.Contains(host, s) {
				return true
			}
		}
		return false
	}
}

// HrefContains matches when host and path together contain sub
func HrefContains(sub string) func(u *url.URL) bool {
	return func(u *url.URL) bool {
		return strings.Contains(strings.ToLower(u.Host+u.Path), sub)
	}
}

// Container returns an adapt func selecting the first matching selector
func Container(selectors ...string) func(ctx context.Context, env *AdapterEnv) (AdapterResult, error) {
	return func(ctx context.Context, env *AdapterEnv) (AdapterResult, error) {
		return env.First(selectors...)
	}
}

// DefaultAdapters returns the built-in adapters in priority order
func DefaultAdapters() []Adapter {
	return []Adapter{
		{Name: "jobaffinity", Match: HostContains("jobaffinity.fr"), Adapt: adaptJobAffinity},
		{Name: "workable", Match: HostContains("workable.com"), Adapt: adaptWorkable},
		{Name: "metacareers", Match: HostContains("metacareers.com"), Adapt: Container("#careersContentContainer")},
		{Name: "abbott", Match: HostContains("jobs.abbott"), Adapt: adaptAbbott},
		{Name: "paycom", Match: HostContains("paycomonline.net"), Adapt: Container("#quickApplyDesktop")},
		{Name: "csod", Match: HostContains("csod.com"), Adapt: Container(".p-view-applicationworkflowtemplate")},
		{Name: "monday", Match: HostContains("monday.com"), Adapt: Container("#surveyModeScrollElement")},
		{Name: "adp", Match: HostContains("adp.com"), Adapt: Container(".recruitment-style-container")},
		{Name: "paylocity", Match: HostContains("paylocity.com"), Adapt: adaptPaylocity},
		{Name: "eightfold", Match: HostContains("eightfold.ai"), Adapt: Container("#apply-form-main-content", "div#EFSmartApplyContainer div div.apply-form")},
		{Name: "careers-page", Match: HostContains("careers-page.com"), Adapt: Container("form")},
		{Name: "winklab", Match: HostContains("wink-lab.com"), Adapt: Container("#sticky-top")},
		{Name: "clickup", Match: HostContains("clickup.com"), Adapt: Container("div.cu-form__body")},
		{Name: "comeet", Match: HostContains("comeet.co"), Adapt: Container("form#applyForm")},
		{Name: "ashby-wander", Match: HrefContains("ashbyhq.com/wander"), Adapt: Container("div.ashby-application-form-container")},
		{Name: "airrecruit", Match: HrefContains("apply.airrecruit.ai/"), Adapt: Container("div._form_1mtk8_11")},
		{
			Name:  "greenhouse-embed",
			Match: HostContains("enterprisedb.com", "vestmark.com", "consensys.io", "grin.co", "grayling.com"),
			Adapt: adaptGreenhouseEmbed,
		},
	}
}

func adaptJobAffinity(ctx context.Context, env *AdapterEnv) (AdapterResult, error) {
	if cv := env.Doc.Find("#form_cv").First(); cv.Length() > 0 {
		env.Annotator.SetAttr(cv, "aria-label", "resume.pdf")
	}
	return AdapterResult{}, nil
}

func adaptWorkable(ctx context.Context, env *AdapterEnv) (AdapterResult, error) {
	education, experience := env.counts()

	if err := env.ClickEach(ctx, "button[data-ui='cancel-section']"); err != nil {
		return AdapterResult{}, err
	}
	if err := env.ClickTimes(ctx, "button[aria-label='Add Experience']", experience); err != nil {
		return AdapterResult{}, err
	}
	if err := env.ClickTimes(ctx, "button[aria-label='Add Education']", education); err != nil {
		return AdapterResult{}, err
	}
	return AdapterResult{}, env.Refresh(ctx)
}

func adaptPaylocity(ctx context.Context, env *AdapterEnv) (AdapterResult, error) {
	education, experience := env.counts()

	if err := env.ClickTimes(ctx, "button[data-automation-id='btnAddWorkHistory']", experience); err != nil {
		return AdapterResult{}, err
	}
	if err := env.ClickTimes(ctx, "button[data-automation-id='btnAddEducationHistory']", education); err != nil {
		return AdapterResult{}, err
	}
	if err := env.Refresh(ctx); err != nil {
		return AdapterResult{}, err
	}
	return env.First("#appDetailDiv")
}

func adaptAbbott(ctx context.Context, env *AdapterEnv) (AdapterResult, error) {
	return AdapterResult{Sentinel: SentinelAbbott}, nil
}

func adaptGreenhouseEmbed(ctx context.Context, env *AdapterEnv) (AdapterResult, error) {
	frame := env.Doc.Find("#grnhse_iframe").First()
	src := attr(frame, "src")
	if src == "" {
		return AdapterResult{}, nil
	}

	target, err := env.Page.URL().Parse(src)
	if err != nil {
		return AdapterResult{}, fmt.Errorf("parsing iframe src: %w", err)
	}
	if err := env.Page.Navigate(ctx, target.String()); err != nil {
		return AdapterResult{}, err
	}
	return AdapterResult{RedirectURL: target.String()}, nil
}
