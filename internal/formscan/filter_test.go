package formscan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterCandidates(t *testing.T) {
	doc := parseDoc(t, `
		<form id="login"><h2>Login</h2><input name="email"></form>
		<form id="signin"><a href="/x">Sign in with Google</a></form>
		<form id="signin-dash"><button>Go to sign-in</button></form>
		<form id="search-button"><button aria-label="Search jobs"></button></form>
		<form id="search-text"><button>Rechercher</button></form>
		<form id="search-box"><input placeholder="Search positions"></form>
		<form id="search-aria"><textarea aria-label="Search"></textarea></form>
		<form id="apply"><input name="first_name"><button>Submit application</button></form>
		<form id="apply-two"><input name="last_name"></form>
	`)

	kept := FilterCandidates(doc.Find("form"))

	var ids []string
	for _, c := range kept {
		ids = append(ids, attr(c, "id"))
	}
	assert.Equal(t, []string{"apply", "apply-two"}, ids)
}

func TestIsLoginForm(t *testing.T) {
	doc := parseDoc(t, `<form id="a"><p>Already have an account? <b>Sign In</b></p></form><form id="b"><p>Apply now</p></form>`)

	assert.True(t, IsLoginForm(doc.Find("#a")))
	assert.False(t, IsLoginForm(doc.Find("#b")))
}

func TestHasSearchControl(t *testing.T) {
	doc := parseDoc(t, `<div id="a"><input aria-label="Research interests"></div><div id="b"><input aria-label="Company"></div>`)

	// "research" contains "search"
	assert.True(t, HasSearchControl(doc.Find("#a")))
	assert.False(t, HasSearchControl(doc.Find("#b")))
}
