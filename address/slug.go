package address

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	slugSeparatorPattern = regexp.MustCompile(`[-_+]+`)
	slugLocalityPattern  = regexp.MustCompile(`(?i)\s+(new york|manhattan|brooklyn|queens|bronx|staten island)$`)
)

// FromSlug turns a URL path segment such as "150-east-44th-street-new_york"
// into "150 East 44th Street, <suffix>". It returns "" when the slug does not
// look like a street address.
func FromSlug(slug, suffix string) string {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ""
	}

	text := slugSeparatorPattern.ReplaceAllString(slug, " ")
	text = whitespacePattern.ReplaceAllString(strings.TrimSpace(text), " ")
	text = slugLocalityPattern.ReplaceAllString(text, "")
	text = titleWords(text)
	if !IsAddressLike(text) {
		return ""
	}

	if suffix == "" {
		return text
	}
	return text + ", " + suffix
}

// titleWords title-cases words that start with a letter and lowercases the
// rest, so ordinals keep their form ("44th", not "44Th").
func titleWords(text string) string {
	title := cases.Title(language.English)
	lower := cases.Lower(language.English)
	words := strings.Fields(text)
	for i, w := range words {
		if w[0] >= '0' && w[0] <= '9' {
			words[i] = lower.String(w)
			continue
		}
		words[i] = title.String(w)
	}
	return strings.Join(words, " ")
}
