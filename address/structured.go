package address

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FromStructuredData looks for an address in the page's JSON-LD blocks.
// Malformed blocks are skipped.
func FromStructuredData(root *goquery.Selection) string {
	var found string
	root.Find(`script[type="application/ld+json"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		found = ParseStructuredAddress(s.Text())
		return found == ""
	})
	return found
}

// ParseStructuredAddress returns the address carried by a JSON-LD document, or
// "" when the document is malformed or has none. The document may be a single
// object or an array of objects.
func ParseStructuredAddress(raw string) string {
	var doc interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &doc); err != nil {
		return ""
	}

	switch v := doc.(type) {
	case map[string]interface{}:
		return addressFromObject(v)
	case []interface{}:
		for _, item := range v {
			if obj, ok := item.(map[string]interface{}); ok {
				if addr := addressFromObject(obj); addr != "" {
					return addr
				}
			}
		}
	}
	return ""
}

func addressFromObject(obj map[string]interface{}) string {
	if addr := addressValue(obj["address"]); addr != "" {
		return addr
	}
	if location, ok := obj["location"].(map[string]interface{}); ok {
		return addressValue(location["address"])
	}
	return ""
}

func addressValue(v interface{}) string {
	switch a := v.(type) {
	case string:
		return strings.TrimSpace(a)
	case map[string]interface{}:
		var parts []string
		for _, key := range []string{"streetAddress", "addressLocality", "addressRegion"} {
			if s, ok := a[key].(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}
