package adapters

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"commute-annotator/address"
	"commute-annotator/internal/types"
	"commute-annotator/render"
	"commute-annotator/utils"
)

// DefaultLocality is appended to card addresses with no better locality hint
const DefaultLocality = "New York, NY"

// The selector lists below are coupled to the host site's markup. Each list is
// ordered from most to least specific; add new fallbacks at the position that
// matches their reliability.
var (
	listingMetaSelectors = []string{
		`meta[property="og:street-address"]`,
		`meta[name="geo.placename"]`,
		`meta[property="og:title"]`,
		`meta[name="twitter:title"]`,
	}

	listingAddressSelectors = []string{
		`[data-testid="address"]`,
		`[data-testid="homeAddress"]`,
		`.building-title .incognito`,
		`h1.building-title`,
		`.details_title h1`,
		`[class*="AddressLabel"]`,
		`[class*="address"]`,
	}

	listingContentMarkers = []string{
		`script[type="application/ld+json"]`,
		`[data-testid="address"]`,
		`.building-title`,
		`.details_title`,
		`h1`,
	}

	listingContainerSelectors = []string{
		`main`,
		`[role="main"]`,
		`#content`,
		`.content`,
	}

	cardSelectors = []string{
		`[data-testid="listing-card"]`,
		`li.searchCardList--listItem`,
		`.listingCard`,
		`article[class*="ListingCard"]`,
		`.searchCardList > li`,
	}

	cardAddressSelectors = []string{
		`[data-testid="listing-address"]`,
		`address a`,
		`.listingCard-addressLabel a`,
		`.listingCard-addressLabel`,
		`p[class*="address"] a`,
		`a[href*="/building/"]`,
		`a[href*="/rental/"]`,
		`a[href*="/sale/"]`,
	}

	cardTitleSelectors = []string{
		`[data-testid="listing-title"]`,
		`.listingCardLabel`,
		`p[class*="title"]`,
		`[class*="ListingDescription"]`,
	}

	cardFeatureListSelectors = []string{
		`[data-testid="listing-details"]`,
		`ul[class*="details"]`,
		`.listingDetailDefinitions`,
		`ul[class*="BedsBaths"]`,
	}
)

// explicitLocalities map a neighborhood hint to its own "City, State" suffix
var explicitLocalities = map[string]string{
	"brooklyn":         "Brooklyn, NY",
	"queens":           "Queens, NY",
	"bronx":            "Bronx, NY",
	"the bronx":        "Bronx, NY",
	"staten island":    "Staten Island, NY",
	"long island city": "Long Island City, NY",
	"jersey city":      "Jersey City, NJ",
	"hoboken":          "Hoboken, NJ",
}

// subLocalities map a neighborhood to the borough it belongs to
var subLocalities = map[string]string{
	"williamsburg":       "Brooklyn, NY",
	"greenpoint":         "Brooklyn, NY",
	"bushwick":           "Brooklyn, NY",
	"park slope":         "Brooklyn, NY",
	"dumbo":              "Brooklyn, NY",
	"brooklyn heights":   "Brooklyn, NY",
	"bedford-stuyvesant": "Brooklyn, NY",
	"crown heights":      "Brooklyn, NY",
	"prospect heights":   "Brooklyn, NY",
	"cobble hill":        "Brooklyn, NY",
	"fort greene":        "Brooklyn, NY",
	"bay ridge":          "Brooklyn, NY",
	"astoria":            "Queens, NY",
	"sunnyside":          "Queens, NY",
	"flushing":           "Queens, NY",
	"forest hills":       "Queens, NY",
	"jackson heights":    "Queens, NY",
	"ridgewood":          "Queens, NY",
	"riverdale":          "Bronx, NY",
	"mott haven":         "Bronx, NY",
	"st. george":         "Staten Island, NY",
}

var neighborhoodPattern = regexp.MustCompile(`(?i)\bin\s+([A-Za-z][A-Za-z .'-]*?)\s*$`)

// StreetEasyAdapter knows the host site's URLs and markup
type StreetEasyAdapter struct {
	*BaseAdapter
	listing  *address.Extractor
	renderer *render.Renderer
}

// NewStreetEasyAdapter creates the host-site adapter
func NewStreetEasyAdapter(config *types.Config, logger types.Logger, tracer *utils.Tracer) *StreetEasyAdapter {
	return &StreetEasyAdapter{
		BaseAdapter: NewBaseAdapter(config, logger, tracer),
		listing: address.NewExtractor(tracer,
			address.StructuredData(),
			address.MetaTags(listingMetaSelectors...),
			address.Title(),
			address.Elements(listingAddressSelectors...),
			address.URLSlug(DefaultLocality, "building", "rental", "sale"),
		),
		renderer: render.NewRenderer(listingAddressSelectors, listingContainerSelectors, cardFeatureListSelectors),
	}
}

// GetSiteName returns the host site name
func (s *StreetEasyAdapter) GetSiteName() string {
	return "streeteasy.com"
}

// Classify returns the kind of page u points to
func (s *StreetEasyAdapter) Classify(u *url.URL) PageKind {
	if u == nil {
		return PageInert
	}
	host := strings.ToLower(u.Hostname())
	if host != "streeteasy.com" && !strings.HasSuffix(host, ".streeteasy.com") {
		return PageInert
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for _, seg := range segments {
		switch seg {
		case "building", "rental", "sale":
			return PageListing
		}
	}
	if segments[0] == "for-rent" || segments[0] == "for-sale" {
		for _, seg := range segments[1:] {
			if isNumeric(seg) {
				return PageListing
			}
		}
		return PageSearch
	}
	return PageInert
}

// ContentMarkers are selectors whose presence means the listing has rendered
func (s *StreetEasyAdapter) ContentMarkers() []string {
	return listingContentMarkers
}

// CardSelectors locate result cards, most specific first
func (s *StreetEasyAdapter) CardSelectors() []string {
	return cardSelectors
}

// Renderer returns a renderer configured with this site's anchors
func (s *StreetEasyAdapter) Renderer() *render.Renderer {
	return s.renderer
}

// ListingAddress extracts the address of a single-listing page
func (s *StreetEasyAdapter) ListingAddress(doc *goquery.Selection, pageURL *url.URL) (string, bool) {
	addr, strategy, ok := s.listing.Extract(doc, pageURL)
	if ok {
		s.logger.Debugf("Found listing address %q using %s", addr, strategy)
	}
	return addr, ok
}

// CardAddress extracts a card's street address and completes it with a
// locality derived from the card's title.
func (s *StreetEasyAdapter) CardAddress(card *goquery.Selection) (string, bool) {
	street, selector := s.FirstText(card, cardAddressSelectors)
	if street == "" {
		street, selector = s.slugAddress(card), "link-slug"
	}
	street = address.Clean(street)
	title, _ := s.FirstText(card, cardTitleSelectors)
	hood := Neighborhood(title)
	combined := CombineLocality(street, hood)

	// The locality suffix alone reads as an address, so filler is caught on
	// the bare street.
	valid := !address.IsPlaceholder(street) &&
		strings.ContainsFunc(street, unicode.IsLetter) &&
		address.IsValid(combined)
	s.tracer.Trace("card-address", logrus.Fields{
		"selector":     selector,
		"street":       street,
		"neighborhood": hood,
		"address":      combined,
		"valid":        valid,
	})
	if !valid {
		return "", false
	}
	return combined, true
}

// slugAddress recovers a street address from the card's building link
func (s *StreetEasyAdapter) slugAddress(card *goquery.Selection) string {
	href, err := s.ExtractAttribute(card, `a[href*="/building/"]`, "href")
	if err != nil {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segments {
		if seg == "building" && i+1 < len(segments) {
			return address.FromSlug(segments[i+1], "")
		}
	}
	return ""
}

// Neighborhood returns the text following "in" in a card title such as
// "Rental unit in Midtown"
func Neighborhood(title string) string {
	m := neighborhoodPattern.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// LocalitySuffix maps a neighborhood hint to a "City, State" suffix
func LocalitySuffix(neighborhood string) string {
	key := strings.ToLower(strings.TrimSpace(neighborhood))
	if suffix, ok := explicitLocalities[key]; ok {
		return suffix
	}
	if suffix, ok := subLocalities[key]; ok {
		return suffix
	}
	return DefaultLocality
}

// CombineLocality appends the locality suffix for neighborhood to street,
// unless street already names a locality.
func CombineLocality(street, neighborhood string) string {
	street = strings.TrimSpace(street)
	if street == "" || strings.Contains(street, ",") {
		return street
	}
	return street + ", " + LocalitySuffix(neighborhood)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
