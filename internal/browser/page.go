package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/cvtailor/cvtailor/internal/domain"
	"github.com/cvtailor/cvtailor/internal/formscan"
)

// stampScript numbers every element of the body with the scan ref
// attribute. Elements stamped by an earlier snapshot keep their ref.
const stampScript = `(attr) => {
	let next = window.__cvtailorScanRef || 0;
	for (const el of document.body.querySelectorAll('*')) {
		if (!el.hasAttribute(attr)) {
			el.setAttribute(attr, String(++next));
		}
	}
	window.__cvtailorScanRef = next;
	return next;
}`

// applyScript replays attribute writes onto the elements they were
// recorded against and returns how many elements were found.
const applyScript = `({attr, mutations}) => {
	let applied = 0;
	for (const m of mutations) {
		const el = document.querySelector('[' + attr + '="' + m.ref + '"]');
		if (el) {
			el.setAttribute(m.name, m.value);
			applied++;
		}
	}
	return applied;
}`

// Page is a live browser tab implementing formscan.Page
type Page struct {
	page       playwright.Page
	browserCtx playwright.BrowserContext
	navTimeout time.Duration
	logger     *zap.Logger
}

var _ formscan.Page = (*Page)(nil)

func (p *Page) URL() *url.URL {
	u, err := url.Parse(p.page.URL())
	if err != nil {
		return &url.URL{}
	}
	return u
}

// Document stamps the live DOM and parses a snapshot of it
func (p *Page) Document(ctx context.Context) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := p.page.Evaluate(stampScript, formscan.RefAttr); err != nil {
		return nil, fmt.Errorf("stamping elements: %w", err)
	}

	content, err := p.page.Content()
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parsing content: %w", err)
	}
	return doc, nil
}

func (p *Page) Refresh(ctx context.Context) (*goquery.Document, error) {
	return p.Document(ctx)
}

func (p *Page) Click(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	loc := p.page.Locator(selector)
	count, err := loc.Count()
	if err != nil {
		return false, fmt.Errorf("locating %s: %w", selector, err)
	}
	if count == 0 {
		return false, nil
	}

	if err := loc.First().Click(); err != nil {
		return false, fmt.Errorf("clicking %s: %w", selector, err)
	}
	return true, nil
}

// ClickEach clicks the elements matching selector when called. Elements a
// click reveals are not clicked.
func (p *Page) ClickEach(ctx context.Context, selector string) (int, error) {
	loc := p.page.Locator(selector)
	count, err := loc.Count()
	if err != nil {
		return 0, fmt.Errorf("locating %s: %w", selector, err)
	}

	clicked := 0
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return clicked, err
		}
		if err := loc.Nth(i).Click(); err != nil {
			p.logger.Debug("click failed",
				zap.String("selector", selector),
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		clicked++
	}
	return clicked, nil
}

func (p *Page) Navigate(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := p.navTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	_, err := p.page.Goto(rawURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", rawURL, err)
	}
	return nil
}

// Apply replays attribute writes recorded on a snapshot onto the live DOM
// and returns how many landed.
func (p *Page) Apply(ctx context.Context, mutations []domain.Mutation) (int, error) {
	if len(mutations) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	payload := make([]map[string]string, 0, len(mutations))
	for _, m := range mutations {
		if m.Ref == "" {
			continue
		}
		payload = append(payload, map[string]string{"ref": m.Ref, "name": m.Name, "value": m.Value})
	}

	res, err := p.page.Evaluate(applyScript, map[string]interface{}{
		"attr":      formscan.RefAttr,
		"mutations": payload,
	})
	if err != nil {
		return 0, fmt.Errorf("applying mutations: %w", err)
	}

	applied := toInt(res)
	if applied < len(payload) {
		p.logger.Warn("some mutations found no element",
			zap.Int("recorded", len(payload)),
			zap.Int("applied", applied),
		)
	}
	return applied, nil
}

// Content returns the current page markup
func (p *Page) Content() (string, error) {
	return p.page.Content()
}

// Close closes the tab and its browser context
func (p *Page) Close() error {
	if err := p.page.Close(); err != nil {
		p.browserCtx.Close()
		return err
	}
	return p.browserCtx.Close()
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
