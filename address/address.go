// Package address cleans, validates and extracts street addresses from
// listing pages.
package address

import (
	"regexp"
	"strings"
)

var (
	streetNumberPattern = regexp.MustCompile(`^\d+[A-Za-z]?\s+\w+`)
	streetTypePattern   = regexp.MustCompile(`(?i)\b(street|st|avenue|ave|road|rd|boulevard|blvd|place|pl|way|drive|dr)\b\.?`)
	regionPattern       = regexp.MustCompile(`(?i)\b(manhattan|brooklyn|queens|bronx|staten island|new york|ny)\b`)
	postalCodePattern   = regexp.MustCompile(`\b\d{5}\b`)

	siteSeparatorPattern = regexp.MustCompile(`\s*[|\x{2022}\x{00b7}]\s*.*$`)
	dashSuffixPattern    = regexp.MustCompile(`\s+[-\x{2013}\x{2014}]\s+.*$`)
	forSuffixPattern     = regexp.MustCompile(`(?i)\s+for\s+.*$`)
	unitPattern          = regexp.MustCompile(`(?i)(\s*#\s*[\w-]+|\s*,?\s*\b(apt|apartment|unit|suite|ste|ph)\.?\s*#?\s*\d[\w-]*)`)
	whitespacePattern    = regexp.MustCompile(`\s+`)
)

// IsAddressLike reports whether text has the shape of a street address.
func IsAddressLike(text string) bool {
	text = strings.TrimSpace(text)
	if len(text) < 5 {
		return false
	}
	return streetNumberPattern.MatchString(text) ||
		streetTypePattern.MatchString(text) ||
		regionPattern.MatchString(text) ||
		postalCodePattern.MatchString(text)
}

// Clean strips site names, marketing suffixes and unit numbers from a
// candidate address and collapses whitespace.
func Clean(text string) string {
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = siteSeparatorPattern.ReplaceAllString(text, "")
	text = dashSuffixPattern.ReplaceAllString(text, "")
	text = forSuffixPattern.ReplaceAllString(text, "")
	text = unitPattern.ReplaceAllString(text, "")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.Trim(text, " ,")
}
