package adapters

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commute-annotator/internal/types"
)

func newTestAdapter() *StreetEasyAdapter {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewStreetEasyAdapter(types.DefaultConfig(), logger, nil)
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestClassify(t *testing.T) {
	a := newTestAdapter()
	tests := []struct {
		url  string
		want PageKind
	}{
		{"https://streeteasy.com/building/150-east-44th-street-new_york/48f", PageListing},
		{"https://streeteasy.com/rental/4512345", PageListing},
		{"https://streeteasy.com/sale/1234", PageListing},
		{"https://streeteasy.com/for-rent/nyc/4512345", PageListing},
		{"https://streeteasy.com/for-rent/nyc/price:-4000", PageSearch},
		{"https://streeteasy.com/for-sale/brooklyn", PageSearch},
		{"https://www.streeteasy.com/for-rent/manhattan", PageSearch},
		{"https://streeteasy.com/", PageInert},
		{"https://streeteasy.com/blog/some-post", PageInert},
		{"https://example.com/for-rent/nyc", PageInert},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, a.Classify(mustURL(t, tc.url)), tc.url)
	}
	assert.Equal(t, PageInert, a.Classify(nil))
}

func TestListingAddress_StructuredData(t *testing.T) {
	a := newTestAdapter()
	doc := parse(t, `<html><head><title>Rental | StreetEasy</title>
<script type="application/ld+json">{"address":{"streetAddress":"123 Main St","addressLocality":"New York","addressRegion":"NY"}}</script>
</head><body><h1>Loading...</h1></body></html>`)

	addr, ok := a.ListingAddress(doc.Selection, mustURL(t, "https://streeteasy.com/rental/1"))

	require.True(t, ok)
	assert.Equal(t, "123 Main St, New York, NY", addr)
}

func TestListingAddress_FromHeading(t *testing.T) {
	a := newTestAdapter()
	doc := parse(t, `<html><head><title>StreetEasy</title></head><body>
<div class="details_title"><h1>150 East 44th Street #48F</h1></div></body></html>`)

	addr, ok := a.ListingAddress(doc.Selection, mustURL(t, "https://streeteasy.com/rental/1"))

	require.True(t, ok)
	assert.Equal(t, "150 East 44th Street", addr)
}

func TestListingAddress_FromSlug(t *testing.T) {
	a := newTestAdapter()
	doc := parse(t, `<html><head><title>StreetEasy</title></head><body><h1>Loading...</h1></body></html>`)

	addr, ok := a.ListingAddress(doc.Selection, mustURL(t, "https://streeteasy.com/building/150-east-44th-street-new_york/48f"))

	require.True(t, ok)
	assert.Equal(t, "150 East 44th Street, New York, NY", addr)
}

func TestCardAddress_AddsLocalityFromTitle(t *testing.T) {
	a := newTestAdapter()
	doc := parse(t, `<html><body><div data-testid="listing-card">
<p data-testid="listing-title">RENTAL UNIT IN MIDTOWN</p>
<a data-testid="listing-address" href="/building/150-east-44th-street-new_york/48f">150 East 44th Street #48F</a>
</div></body></html>`)

	addr, ok := a.CardAddress(doc.Find(`[data-testid="listing-card"]`))

	require.True(t, ok)
	assert.Equal(t, "150 East 44th Street, New York, NY", addr)
}

func TestCardAddress_SubLocality(t *testing.T) {
	a := newTestAdapter()
	doc := parse(t, `<html><body><div class="listingCard">
<p class="listingCardLabel">Condo in Williamsburg</p>
<address><a href="/building/1-n-4th-place">1 North 4th Place #12C</a></address>
</div></body></html>`)

	addr, ok := a.CardAddress(doc.Find(".listingCard"))

	require.True(t, ok)
	assert.Equal(t, "1 North 4th Place, Brooklyn, NY", addr)
}

func TestCardAddress_KeepsExistingLocality(t *testing.T) {
	a := newTestAdapter()
	doc := parse(t, `<html><body><div class="listingCard">
<p class="listingCardLabel">Rental in Hoboken</p>
<a data-testid="listing-address" href="/rental/9">9 Hudson Street, Hoboken, NJ</a>
</div></body></html>`)

	addr, ok := a.CardAddress(doc.Find(".listingCard"))

	require.True(t, ok)
	assert.Equal(t, "9 Hudson Street, Hoboken, NJ", addr)
}

func TestCardAddress_Placeholder(t *testing.T) {
	a := newTestAdapter()
	for _, text := range []string{"Loading...", "N/A", "TBD", "Pending", "Unknown", "----", "undefined", "…", "12345"} {
		t.Run(text, func(t *testing.T) {
			doc := parse(t, `<html><body><div class="listingCard">
<a data-testid="listing-address" href="/rental/9">`+text+`</a>
<p class="listingCardLabel">Rental unit in Midtown</p>
</div></body></html>`)

			addr, ok := a.CardAddress(doc.Find(".listingCard"))

			assert.False(t, ok)
			assert.Empty(t, addr)
		})
	}
}

func TestGetSiteName(t *testing.T) {
	a := newTestAdapter()
	assert.Equal(t, "streeteasy.com", a.GetSiteName())
	assert.Equal(t, PageListing, a.Classify(mustURL(t, "https://"+a.GetSiteName()+"/building/1-main-street")))
}

func TestLocalitySuffix(t *testing.T) {
	assert.Equal(t, "Brooklyn, NY", LocalitySuffix("Brooklyn"))
	assert.Equal(t, "Queens, NY", LocalitySuffix("astoria"))
	assert.Equal(t, "Jersey City, NJ", LocalitySuffix("Jersey City"))
	assert.Equal(t, DefaultLocality, LocalitySuffix("Midtown"))
	assert.Equal(t, DefaultLocality, LocalitySuffix(""))
}

func TestNeighborhood(t *testing.T) {
	assert.Equal(t, "MIDTOWN", Neighborhood("RENTAL UNIT IN MIDTOWN"))
	assert.Equal(t, "Park Slope", Neighborhood("Townhouse in Park Slope"))
	assert.Equal(t, "", Neighborhood("Studio"))
}

func TestCardAddress_FallsBackToBuildingLink(t *testing.T) {
	a := newTestAdapter()
	doc := parse(t, `<html><body><div class="listingCard">
<p class="listingCardLabel">Rental unit in Williamsburg</p>
<a href="/building/1-north-4th-place/12c"><img src="x.jpg"></a>
</div></body></html>`)

	addr, ok := a.CardAddress(doc.Find(".listingCard"))

	require.True(t, ok)
	assert.Equal(t, "1 North 4th Place, Brooklyn, NY", addr)
}
