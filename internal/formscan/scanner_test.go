package formscan

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/cvtailor/cvtailor/internal/domain"
)

func newTestScanner(t *testing.T) *Scanner {
	opts := DefaultOptions()
	opts.ClickSettle = 0
	return NewScanner(opts, zaptest.NewLogger(t))
}

// assertFieldCountInvariant checks every emitted form reports the number of
// direct children of its root.
func assertFieldCountInvariant(t *testing.T, result *domain.ScanResult) {
	t.Helper()
	for _, f := range result.Forms {
		doc := parseDoc(t, f.Form)
		root := doc.Find("form").First()
		require.Equal(t, 1, root.Length(), "form %s has a root", f.FormID)
		assert.Equal(t, root.Contents().Length(), f.FieldCount, "form %s", f.FormID)
	}
}

const applyForm = `
<form id="apply">
	<label for="first">First name</label><input id="first" type="text">
	<label for="last">Last name</label><input id="last">
	<input type="email" aria-label="Email address">
	<input type="tel" placeholder="Phone number">
	<textarea aria-label="Cover letter"></textarea>
	<input type="submit" value="Apply now">
</form>`

func TestScanner_SignInFormFiltered(t *testing.T) {
	page := newTestPage(t, "https://careers.example.com/job/1", `<html><body>
		<form id="login"><p>Sign in to continue</p>
			<input aria-label="Username"><input aria-label="Password" type="password">
			<input aria-label="Remember me" type="checkbox"><input aria-label="Account code">
		</form>`+applyForm+`</body></html>`)

	result, err := newTestScanner(t).Scan(context.Background(), page, nil)

	require.NoError(t, err)
	require.Len(t, result.Forms, 1)
	assert.Equal(t, "apply", result.Forms[0].FormID)
	assert.Equal(t, 5, result.Forms[0].FieldCount)
	assert.Empty(t, result.Adapter)
	assert.NotContains(t, result.Handlers, "login")
	assertFieldCountInvariant(t, result)

	handlers := result.Handlers["apply"]
	assert.Equal(t, domain.HandlerEntry{Label: "First name", Type: "text", FormType: "input"}, handlers["first"])
	assert.Equal(t, domain.HandlerEntry{Label: "Email address", Type: "email", FormType: "input"}, handlers["apply-input-2"])
	assert.Len(t, handlers, 5)

	assert.Equal(t, "#apply-input-4", result.CoverLetterSelector)
}

func TestScanner_WritesSynthesizedIDs(t *testing.T) {
	page := newTestPage(t, "https://careers.example.com/job/1", `<form>
		<input aria-label="Given name"><input aria-label="Family name">
		<input aria-label="Email address"><input aria-label="Phone number">
	</form>`)

	result, err := newTestScanner(t).Scan(context.Background(), page, nil)
	require.NoError(t, err)
	require.Len(t, result.Forms, 1)
	assert.Equal(t, "form-0", result.Forms[0].FormID)

	doc, _ := page.Document(context.Background())
	assert.Equal(t, "form-0", attr(doc.Find("form"), "id"))
	var ids []string
	doc.Find("input").Each(func(_ int, s *goquery.Selection) {
		ids = append(ids, attr(s, "id"))
	})
	assert.Equal(t, []string{"form-0-input-0", "form-0-input-1", "form-0-input-2", "form-0-input-3"}, ids)
}

func TestScanner_SelectWithOptions(t *testing.T) {
	page := newTestPage(t, "https://careers.example.com/job/2", `<form id="f">
		<input aria-label="Full name"><input aria-label="Email address"><input aria-label="Current company">
		<select id="country" aria-label="Country of residence">
			<option value="fr">France</option><option value="de">Germany</option><option value="it">Italy</option>
		</select>
	</form>`)

	result, err := newTestScanner(t).Scan(context.Background(), page, nil)

	require.NoError(t, err)
	require.Len(t, result.Forms, 1)
	form := result.Forms[0]
	assert.Equal(t, 4, form.FieldCount)
	assert.Equal(t, 3, strings.Count(form.Form, "<option"))
	assert.Contains(t, form.Form, `<select id="country" aria-label="Country of residence">`)
	assert.Equal(t, "select", result.Handlers["f"]["country"].FormType)

	var sel domain.FieldDescriptor
	for _, d := range form.Fields {
		if d.ID == "country" {
			sel = d
		}
	}
	assert.Len(t, sel.Options, 3)
}

func TestScanner_ShortLabelsExcluded(t *testing.T) {
	page := newTestPage(t, "https://careers.example.com/job/3", `<form id="f">
		<input id="age" aria-label="Age">
		<input aria-label="First name"><input aria-label="Last name">
		<input aria-label="Email address"><input aria-label="Phone number">
	</form>`)

	result, err := newTestScanner(t).Scan(context.Background(), page, nil)

	require.NoError(t, err)
	require.Len(t, result.Forms, 1)
	assert.Equal(t, 4, result.Forms[0].FieldCount)
	assert.NotContains(t, result.Forms[0].Form, `id="age"`)
	assert.NotContains(t, result.Handlers["f"], "age")
	for _, d := range result.Forms[0].Fields {
		assert.Greater(t, len([]rune(d.Label)), MinLabelLength, d.ID)
	}
}

func TestScanner_BelowThresholdIsEmpty(t *testing.T) {
	page := newTestPage(t, "https://careers.example.com/job/4", `<form id="f">
		<input aria-label="Subscribe email"><input aria-label="Your name"><input aria-label="Company">
	</form>`)

	result, err := newTestScanner(t).Scan(context.Background(), page, nil)

	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.Empty(t, result.Handlers)
}

func TestScanner_ThresholdConfigurable(t *testing.T) {
	page := newTestPage(t, "https://careers.example.com/job/4", `<form id="f">
		<input aria-label="Subscribe email"><input aria-label="Your name"><input aria-label="Company">
	</form>`)
	opts := DefaultOptions()
	opts.MinFieldCount = 3

	result, err := NewScanner(opts, zap.NewNop()).Scan(context.Background(), page, nil)

	require.NoError(t, err)
	require.Len(t, result.Forms, 1)
	assert.Equal(t, 3, result.Forms[0].FieldCount)
}

func TestScanner_RemoteResumeUpload(t *testing.T) {
	page := newTestPage(t, "https://careers.example.com/job/5", `<form id="f">
		<div>Upload your resume <input type="file" id="remote-resume-url"></div>
		<input aria-label="First name"><input aria-label="Last name">
		<input aria-label="Email address"><input aria-label="Phone number">
	</form>`)

	result, err := newTestScanner(t).Scan(context.Background(), page, nil)

	require.NoError(t, err)
	require.Len(t, result.Forms, 1)
	assert.Contains(t, result.Forms[0].Form, `id="resume-"`)
	assert.Equal(t, "file", result.Handlers["f"]["resume-"].Type)

	doc, _ := page.Document(context.Background())
	assert.Equal(t, 1, doc.Find("#resume-").Length())
}

func TestScanner_DropzoneUploadPrepended(t *testing.T) {
	page := newTestPage(t, "https://careers.example.com/job/6", `<body>
		<form id="f">
			<input aria-label="First name"><input aria-label="Last name">
			<input aria-label="Email address"><input aria-label="Phone number">
		</form>
		<input type="file" class="dz-hidden-input" id="remote-url">
	</body>`)

	result, err := newTestScanner(t).Scan(context.Background(), page, nil)

	require.NoError(t, err)
	require.Len(t, result.Forms, 1)
	form := result.Forms[0]
	assert.Equal(t, 5, form.FieldCount)
	assert.True(t, strings.HasPrefix(form.Form, `<form id="f"><input id="resume-file" type="file" aria-label="resume file pdf"/>`), form.Form)
	assert.Equal(t, domain.HandlerEntry{Label: "resume file pdf", Type: "file", FormType: "input"}, result.Handlers["f"]["resume-file"])
	assertFieldCountInvariant(t, result)
}

func TestScanner_Abbott(t *testing.T) {
	page := newTestPage(t, "https://www.jobs.abbott/us/en/apply", `<body>
		<div class="resume-upload-wrapper"><input type="file"></div>
		<form id="other"><input aria-label="Unrelated field"></form>
	</body>`)

	result, err := newTestScanner(t).Scan(context.Background(), page, nil)

	require.NoError(t, err)
	assert.Equal(t, "abbott", result.Adapter)
	require.Len(t, result.Forms, 1)
	assert.Equal(t, domain.ShadowFormResult{
		FormID:     "resume-gpt-form",
		Form:       `<form id="resume-gpt-form"><input type="file" id="resume-file" aria-label="resume pdf"/></form>`,
		FieldCount: 1,
		Fields: []domain.FieldDescriptor{{
			ID: "resume-file", Kind: domain.FieldKindInput, InputType: "file", Label: "resume pdf",
		}},
	}, result.Forms[0])

	doc, _ := page.Document(context.Background())
	assert.Equal(t, "resume-file", attr(doc.Find("div.resume-upload-wrapper input"), "id"))
}

func TestScanner_RadiosProcessedOnce(t *testing.T) {
	page := newTestPage(t, "https://careers.example.com/job/7", `<form id="f">
		<fieldset>
			<legend>Gender identity</legend>
			<label><input type="radio" name="gender" value="f"> Female</label>
			<label><input type="radio" name="gender" value="m"> Male</label>
			<label><input type="radio" name="gender" value="x"> Prefer not to say</label>
		</fieldset>
		<input aria-label="First name"><input aria-label="Last name"><input aria-label="Email address">
	</form>`)

	result, err := newTestScanner(t).Scan(context.Background(), page, nil)

	require.NoError(t, err)
	require.Len(t, result.Forms, 1)
	form := result.Forms[0]
	assert.Equal(t, 4, form.FieldCount)

	seen := make(map[string]bool)
	radios := 0
	for _, d := range form.Fields {
		assert.False(t, seen[d.ID], "duplicate id %s", d.ID)
		seen[d.ID] = true
		if d.Kind == domain.FieldKindRadio {
			radios++
		}
	}
	assert.Equal(t, 3, radios)
	assert.Equal(t, 3, strings.Count(form.Form, `type="radio"`))
	assert.Equal(t, "radio", result.Handlers["f"]["f-input-1"].FormType)
	assertFieldCountInvariant(t, result)
}

func TestScanner_NestedFieldsetsFlattened(t *testing.T) {
	page := newTestPage(t, "https://careers.example.com/job/8", `<form id="f">
		<fieldset id="work"><legend>Work experience</legend>
			<input aria-label="Job title">
			<fieldset id="dates"><input aria-label="Start date"><input aria-label="End date"></fieldset>
		</fieldset>
		<input aria-label="First name"><input aria-label="Last name"><input aria-label="Email address">
	</form>`)

	result, err := newTestScanner(t).Scan(context.Background(), page, nil)

	require.NoError(t, err)
	require.Len(t, result.Forms, 1)
	form := result.Forms[0].Form
	assert.Contains(t, form, `<fieldset id="work"><input`)
	assert.NotContains(t, form, `id="dates"`)
	assert.NotContains(t, form, "<legend")
	assert.Equal(t, 4, result.Forms[0].FieldCount)
	assert.Equal(t, domain.FieldKindFieldset, result.Forms[0].Fields[0].Kind)
	assert.Equal(t, "Work experience", result.Forms[0].Fields[0].Label)
}

func TestScanner_ContainerAdapter(t *testing.T) {
	page := newTestPage(t, "https://forms.monday.com/forms/abc", `<body>
		<form id="newsletter"><input aria-label="Newsletter email"></form>
		<div id="surveyModeScrollElement">
			<input aria-label="First name"><input aria-label="Last name">
			<input aria-label="Email address"><textarea aria-label="Why this role?"></textarea>
		</div>
	</body>`)

	result, err := newTestScanner(t).Scan(context.Background(), page, nil)

	require.NoError(t, err)
	assert.Equal(t, "monday", result.Adapter)
	require.Len(t, result.Forms, 1)
	assert.Equal(t, "surveyModeScrollElement", result.Forms[0].FormID)
	assert.Equal(t, 4, result.Forms[0].FieldCount)
}

func TestScanner_DivContainers(t *testing.T) {
	page := newTestPage(t, "https://acme.myworkdayjobs.com/apply", `<body>
		<div data-automation-id="contactInformationPage">
			<div><label for="a">Given Name</label><input id="a"></div>
			<div><label for="b">Family Name</label><input id="b"></div>
			<div><label for="c">Email Address</label><input id="c"></div>
			<div><label for="d">Phone Number</label><input id="d"></div>
		</div>
	</body>`)

	result, err := newTestScanner(t).Scan(context.Background(), page, nil)

	require.NoError(t, err)
	require.Len(t, result.Forms, 1)
	assert.Equal(t, "form-0", result.Forms[0].FormID)
	assert.Equal(t, 4, result.Forms[0].FieldCount)
}

func TestScanner_Redirect(t *testing.T) {
	page := newTestPage(t, "https://consensys.io/open-roles/1",
		`<iframe id="grnhse_iframe" src="/embed/job_app?for=consensys"></iframe>`)

	result, err := newTestScanner(t).Scan(context.Background(), page, nil)

	require.NoError(t, err)
	assert.Equal(t, "https://consensys.io/embed/job_app?for=consensys", result.RedirectURL)
	assert.True(t, result.Empty())
}

func TestScanner_Idempotent(t *testing.T) {
	page := newTestPage(t, "https://careers.example.com/job/9", `<body>`+applyForm+`
		<form>
			<input aria-label="Street address"><input aria-label="City name">
			<select aria-label="Country"><option>France</option></select>
			<input type="checkbox" aria-label="Accept terms">
		</form></body>`)
	scanner := newTestScanner(t)

	first, err := scanner.Scan(context.Background(), page, nil)
	require.NoError(t, err)
	second, err := scanner.Scan(context.Background(), page, nil)
	require.NoError(t, err)

	require.Len(t, first.Forms, 2)
	assert.Equal(t, first.Forms, second.Forms)
	assert.Equal(t, first.Handlers, second.Handlers)
	assert.Equal(t, first.CoverLetterSelector, second.CoverLetterSelector)
	assertFieldCountInvariant(t, first)
}

func TestScanner_CancelledContext(t *testing.T) {
	page := newTestPage(t, "https://careers.example.com/job/10", applyForm)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestScanner(t).Scan(ctx, page, nil)

	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeScanFailed, domain.GetErrorCode(err))
}

type panicAnnotator struct{}

func (panicAnnotator) SetAttr(el *goquery.Selection, name, value string) {
	panic("detached node")
}

func TestAssembler_FailureIsolated(t *testing.T) {
	doc := parseDoc(t, `<form id="f"><input id="ok" aria-label="First name"><input aria-label="Last name"></form>`)
	session := NewSession()
	assembler := NewAssembler(NewSynthesizer(panicAnnotator{}, session), session, 1, zap.NewNop())

	sf, err := assembler.Assemble(doc.Find("form"), "f")

	assert.Nil(t, sf)
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeContainerAssembly, domain.GetErrorCode(err))
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 1, appErr.Metadata["field_index"])
}

type recorderStub struct {
	outcomes []string
	emitted  []int
	adapters []string
}

func (r *recorderStub) ScanCompleted(outcome string, forms int, _ time.Duration) {
	r.outcomes = append(r.outcomes, outcome)
}
func (r *recorderStub) FormEmitted(n int)          { r.emitted = append(r.emitted, n) }
func (r *recorderStub) AdapterMatched(name string) { r.adapters = append(r.adapters, name) }
func (r *recorderStub) ContainerFailed()           {}

func TestScanner_RecordsMetrics(t *testing.T) {
	recorder := &recorderStub{}
	opts := DefaultOptions()
	scanner := NewScanner(opts, zap.NewNop(), WithRecorder(recorder))

	_, err := scanner.Scan(context.Background(), newTestPage(t, "https://careers.example.com/1", applyForm), nil)
	require.NoError(t, err)
	_, err = scanner.Scan(context.Background(), newTestPage(t, "https://www.jobs.abbott/apply", `<p></p>`), nil)
	require.NoError(t, err)
	_, err = scanner.Scan(context.Background(), newTestPage(t, "https://careers.example.com/2", `<p>nothing</p>`), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{OutcomeForms, OutcomeForms, OutcomeEmpty}, recorder.outcomes)
	assert.Equal(t, []int{5, 1}, recorder.emitted)
	assert.Equal(t, []string{"abbott"}, recorder.adapters)
}

func assembleIDs(t *testing.T, body string, fieldsetDepth int) []domain.FieldDescriptor {
	t.Helper()
	doc := parseDoc(t, body)
	session := NewSession()
	assembler := NewAssembler(NewSynthesizer(DocumentAnnotator{}, session), session, fieldsetDepth, zap.NewNop())

	sf, err := assembler.Assemble(doc.Find("form"), "f")
	require.NoError(t, err)
	res, _ := sf.Result()
	return res.Fields
}

func TestAssembler_LegendFromOwnFieldsetOnly(t *testing.T) {
	fields := assembleIDs(t, `<form id="f"><fieldset id="outer">
		<fieldset id="inner"><legend>Work history</legend>
			<input aria-label="Job title"><input aria-label="Employer">
		</fieldset>
	</fieldset></form>`, 1)

	for _, d := range fields {
		assert.NotEqual(t, domain.FieldKindFieldset, d.Kind, "outer fieldset has no legend of its own: %+v", d)
	}
	require.Len(t, fields, 2)
	assert.Equal(t, "f-input-2", fields[0].ID)
	assert.Equal(t, "f-input-3", fields[1].ID)
}

func TestAssembler_FallbackIDAvoidsPageIDs(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "page id appears later",
			body: `<form id="f"><input aria-label="First name"><input id="f-input-0" aria-label="Last name"></form>`,
			want: []string{"f-input-0-1", "f-input-0"},
		},
		{
			name: "page id appears earlier",
			body: `<form id="f"><input id="f-input-1" aria-label="First name"><input aria-label="Last name"></form>`,
			want: []string{"f-input-1", "f-input-1-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := assembleIDs(t, tt.body, 1)
			var ids []string
			for _, d := range fields {
				ids = append(ids, d.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
