package formscan

import (
	"github.com/PuerkitoBio/goquery"
)

var (
	loginMarkers = []string{"sign-in", "sign in", "login"}
	searchTerms  = []string{"search", "rechercher"}
)

// FilterCandidates drops login and search containers, keeping document order
func FilterCandidates(candidates *goquery.Selection) []*goquery.Selection {
	kept := make([]*goquery.Selection, 0, candidates.Length())
	candidates.Each(func(_ int, c *goquery.Selection) {
		if IsLoginForm(c) || HasSearchControl(c) {
			return
		}
		kept = append(kept, c)
	})
	return kept
}

// IsLoginForm reports whether the visible text of a container mentions signing in
func IsLoginForm(container *goquery.Selection) bool {
	return containsFold(visibleText(container), loginMarkers...)
}

// HasSearchControl reports whether a container holds a search button or box
func HasSearchControl(container *goquery.Selection) bool {
	found := false
	container.Find("button, input, textarea").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		switch tagName(el) {
		case "button":
			found = containsFold(attr(el, "aria-label"), searchTerms...) ||
				containsFold(visibleText(el), searchTerms...)
		default:
			found = containsFold(attr(el, "aria-label"), searchTerms...) ||
				containsFold(attr(el, "placeholder"), searchTerms...)
		}
		return !found
	})
	return found
}
