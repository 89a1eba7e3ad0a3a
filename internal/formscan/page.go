package formscan

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Page is the rendered document a scan runs against. Implementations wrap
// either a live browser tab or a static snapshot.
type Page interface {
	// URL returns the current location of the page
	URL() *url.URL

	// Document returns the current document snapshot
	Document(ctx context.Context) (*goquery.Document, error)

	// Refresh re-reads the document after an interaction changed it
	Refresh(ctx context.Context) (*goquery.Document, error)

	// Click clicks the first element matching selector. It reports false
	// when nothing matched.
	Click(ctx context.Context, selector string) (bool, error)

	// ClickEach clicks every element matching selector once and returns
	// how many were clicked.
	ClickEach(ctx context.Context, selector string) (int, error)

	// Navigate sends the top-level page to rawURL
	Navigate(ctx context.Context, rawURL string) error
}

// StaticPage is a Page over a fixed document. Clicks are recorded but never
// reveal new content.
type StaticPage struct {
	url *url.URL
	doc *goquery.Document

	mu          sync.Mutex
	clicks      map[string]int
	navigations []string
}

// NewStaticPage parses r as the document found at rawURL
func NewStaticPage(rawURL string, r io.Reader) (*StaticPage, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page url: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing page html: %w", err)
	}

	return NewStaticPageFromDocument(u, doc), nil
}

// NewStaticPageFromDocument wraps an already parsed document
func NewStaticPageFromDocument(u *url.URL, doc *goquery.Document) *StaticPage {
	return &StaticPage{
		url:    u,
		doc:    doc,
		clicks: make(map[string]int),
	}
}

func (p *StaticPage) URL() *url.URL {
	return p.url
}

func (p *StaticPage) Document(ctx context.Context) (*goquery.Document, error) {
	return p.doc, nil
}

func (p *StaticPage) Refresh(ctx context.Context) (*goquery.Document, error) {
	return p.doc, nil
}

func (p *StaticPage) Click(ctx context.Context, selector string) (bool, error) {
	if p.doc.Find(selector).Length() == 0 {
		return false, nil
	}

	p.mu.Lock()
	p.clicks[selector]++
	p.mu.Unlock()
	return true, nil
}

func (p *StaticPage) ClickEach(ctx context.Context, selector string) (int, error) {
	n := p.doc.Find(selector).Length()

	p.mu.Lock()
	p.clicks[selector] += n
	p.mu.Unlock()
	return n, nil
}

func (p *StaticPage) Navigate(ctx context.Context, rawURL string) error {
	p.mu.Lock()
	p.navigations = append(p.navigations, rawURL)
	p.mu.Unlock()
	return nil
}

// Clicks returns how many clicks were recorded for selector
func (p *StaticPage) Clicks(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clicks[selector]
}

// Navigations returns every navigation target requested so far
func (p *StaticPage) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}
