package render

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"commute-annotator/internal/types"
	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func minutes(n int) *int { return &n }

func newTestRenderer() *Renderer {
	r := NewRenderer(
		[]string{"[data-testid='address']", "h1"},
		[]string{"main"},
		[]string{"ul.details", "[class*='details']"},
	)
	r.now = func() time.Time { return time.Date(2024, 3, 6, 12, 0, 0, 0, time.Local) }
	return r
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{0, "0 min"},
		{45, "45 min"},
		{59, "59 min"},
		{60, "1 hr"},
		{95, "1 hr 35 min"},
		{120, "2 hr"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, FormatDuration(tc.minutes))
	}
}

func TestDisplayDuration(t *testing.T) {
	assert.Equal(t, "32 min", DisplayDuration(types.CommuteResult{Status: types.StatusSuccess, DurationText: "32 min", Minutes: minutes(31)}))
	assert.Equal(t, "1 hr 35 min", DisplayDuration(types.CommuteResult{Status: types.StatusSuccess, Minutes: minutes(95)}))
	assert.Equal(t, "", DisplayDuration(types.CommuteResult{Status: types.StatusSuccess}))
}

func TestAbbreviate(t *testing.T) {
	assert.Equal(t, "123 Main St", Abbreviate("123 Main St, New York, NY 10001, USA", 30))
	assert.Equal(t, "1234567890…", Abbreviate("123456789012345", 11))
	assert.Equal(t, "123 Main St → 1 Broadway", RouteSummary("123 Main St, New York", "1 Broadway, New York"))
}

func TestDirectionsURL(t *testing.T) {
	dep := time.Date(2024, 3, 11, 8, 0, 0, 0, time.Local)
	raw := DirectionsURL("123 Main St, New York, NY", "1 Broadway, New York, NY", dep)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "maps.google.com", u.Host)
	q := u.Query()
	assert.Equal(t, "123 Main St, New York, NY", q.Get("saddr"))
	assert.Equal(t, "1 Broadway, New York, NY", q.Get("daddr"))
	assert.Equal(t, "r", q.Get("dirflg"))
	assert.Equal(t, "03/11/24", q.Get("date"))
	assert.Equal(t, "8:00am", q.Get("time"))
}

func TestWidget_Success(t *testing.T) {
	doc := parse(t, `<html><body><main><h1 data-testid="address">123 Main St</h1></main></body></html>`)
	r := newTestRenderer()

	res := types.CommuteResult{Status: types.StatusSuccess, DurationText: "32 mins", Minutes: minutes(32)}
	a := r.Widget(doc.Selection, res, "123 Main St, New York, NY", "1 Broadway, New York, NY")

	assert.Equal(t, WidgetID, a.ID)
	assert.Equal(t, "afterend", a.Position)
	assert.Equal(t, 1, doc.Find(a.Selector).Length())
	assert.Equal(t, "123 Main St", doc.Find(a.Selector).Text())

	widget := parse(t, a.HTML)
	assert.Equal(t, "32 mins", widget.Find("strong").Text(), "resolver text is shown as returned")
	assert.Contains(t, widget.Find(".commute-annotator__route").Text(), "123 Main St → 1 Broadway")
	href, ok := widget.Find("a.commute-annotator__directions").Attr("href")
	require.True(t, ok)
	assert.Contains(t, href, "ttype=dep")
	assert.Contains(t, href, "date=03%2F11%2F24")
	target, _ := widget.Find("a.commute-annotator__directions").Attr("target")
	assert.Equal(t, "_blank", target)
}

func TestWidget_PrefersFormattedAddresses(t *testing.T) {
	doc := parse(t, `<html><body><h1>x</h1></body></html>`)
	r := newTestRenderer()

	res := types.CommuteResult{
		Status:             types.StatusSuccess,
		DurationText:       "40 mins",
		ApartmentFormatted: "123 Main St, New York, NY 10001, USA",
		WorkFormatted:      "1 Broadway, New York, NY 10004, USA",
	}
	a := r.Widget(doc.Selection, res, "raw", "raw work")
	widget := parse(t, a.HTML)

	assert.Equal(t, "40 mins", widget.Find("strong").Text())
	href, _ := widget.Find("a").Attr("href")
	u, err := url.Parse(href)
	require.NoError(t, err)
	assert.Equal(t, "123 Main St, New York, NY 10001, USA", u.Query().Get("saddr"))
}

func TestWidget_NeverInsideLink(t *testing.T) {
	doc := parse(t, `<html><body><div><a href="/building/x" id="bldg"><h1>150 East 44th Street</h1></a></div></body></html>`)
	r := newTestRenderer()

	a := r.Widget(doc.Selection, types.Pending(), "", "")

	assert.Equal(t, "#bldg", a.Selector)
	assert.Equal(t, "afterend", a.Position)
	assert.Contains(t, a.HTML, "Calculating commute")
}

func TestWidget_FallsBackToContainer(t *testing.T) {
	doc := parse(t, `<html><body><div></div><main><p>nothing here</p></main></body></html>`)
	r := NewRenderer([]string{"[data-testid='address']"}, []string{"main"}, nil)

	a := r.Widget(doc.Selection, types.Failure(types.KindExtraction, ""), "", "")

	assert.Equal(t, "afterbegin", a.Position)
	assert.Equal(t, 1, doc.Find(a.Selector).Length())
	assert.Equal(t, "main", goquery.NodeName(doc.Find(a.Selector)))
	assert.Contains(t, a.HTML, "Could not detect address")
}

func TestWidget_PermanentErrorVerbatim(t *testing.T) {
	doc := parse(t, `<html><body><h1>x</h1></body></html>`)
	r := newTestRenderer()

	a := r.Widget(doc.Selection, types.Failure(types.KindPermanent, "No transit route found"), "", "")

	assert.Contains(t, a.HTML, "No transit route found")
}

func TestBadge_InsideFeatureList(t *testing.T) {
	doc := parse(t, `<html><body><div data-commute-card="c4"><a href="/building/a">1 Main St</a><ul class="details"><li>2 beds</li><li>1 bath</li></ul></div></body></html>`)
	r := newTestRenderer()
	cardSel := CardSelector("data-commute-card", "c4")
	card := doc.Find(cardSel)

	a := r.Badge(card, cardSel, "c4", types.CommuteResult{Status: types.StatusSuccess, Minutes: minutes(95)})

	assert.Equal(t, BadgeID("c4"), a.ID)
	assert.Equal(t, "beforeend", a.Position)
	assert.True(t, strings.HasPrefix(a.Selector, cardSel+" > "))
	assert.Equal(t, "ul", goquery.NodeName(doc.Find(a.Selector)))

	badge := parse(t, a.HTML)
	li := badge.Find("li")
	require.Equal(t, 1, li.Length())
	assert.Contains(t, li.Text(), "1 hr 35 min")
}

func TestBadge_AppendsToCardWithoutList(t *testing.T) {
	doc := parse(t, `<html><body><div data-commute-card="c1"><a href="/building/a">1 Main St</a></div></body></html>`)
	r := newTestRenderer()
	cardSel := CardSelector("data-commute-card", "c1")

	a := r.Badge(doc.Find(cardSel), cardSel, "c1", types.Failure(types.KindPermanent, "No transit route found"))

	assert.Equal(t, cardSel, a.Selector)
	assert.Contains(t, a.HTML, "<div")
	assert.Contains(t, a.HTML, "No route")
}

func TestCSSPath_UniqueMatch(t *testing.T) {
	doc := parse(t, `<html><body><div><p>a</p><p>b</p></div><div><p>c</p><p><span>d</span></p></div></body></html>`)

	span := doc.Find("span")
	path := CSSPath(span, nil, "")

	matched := doc.Find(path)
	require.Equal(t, 1, matched.Length())
	assert.Equal(t, "d", matched.Text())
}
