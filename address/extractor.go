package address

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"commute-annotator/utils"
)

// Strategy produces candidate addresses from a page. Strategies are tried in
// the order they are registered with an Extractor.
type Strategy struct {
	Name    string
	Extract func(root *goquery.Selection, pageURL *url.URL) []string
}

// Extractor runs strategies in descending reliability order and returns the
// first candidate that survives cleaning and validation.
type Extractor struct {
	strategies []Strategy
	tracer     *utils.Tracer
}

// NewExtractor creates an extractor over the given strategies
func NewExtractor(tracer *utils.Tracer, strategies ...Strategy) *Extractor {
	return &Extractor{
		strategies: strategies,
		tracer:     tracer,
	}
}

// Extract returns the best address found under root, and the name of the
// strategy that produced it. ok is false when nothing usable was found.
func (e *Extractor) Extract(root *goquery.Selection, pageURL *url.URL) (addr string, strategy string, ok bool) {
	for _, s := range e.strategies {
		for _, candidate := range s.Extract(root, pageURL) {
			cleaned := Clean(candidate)
			valid := IsValid(cleaned)
			e.tracer.Trace("extract", logrus.Fields{
				"strategy":  s.Name,
				"candidate": candidate,
				"cleaned":   cleaned,
				"valid":     valid,
			})
			if valid {
				return cleaned, s.Name, true
			}
		}
	}
	return "", "", false
}

// StructuredData reads JSON-LD blocks.
func StructuredData() Strategy {
	return Strategy{
		Name: "structured-data",
		Extract: func(root *goquery.Selection, _ *url.URL) []string {
			if addr := FromStructuredData(root); addr != "" {
				return []string{addr}
			}
			return nil
		},
	}
}

// MetaTags reads the content of the given meta tag selectors, in order.
func MetaTags(selectors ...string) Strategy {
	return Strategy{
		Name: "meta-tags",
		Extract: func(root *goquery.Selection, _ *url.URL) []string {
			var out []string
			for _, selector := range selectors {
				root.Find(selector).Each(func(i int, s *goquery.Selection) {
					if content, exists := s.Attr("content"); exists && IsAddressLike(Clean(content)) {
						out = append(out, content)
					}
				})
			}
			return out
		},
	}
}

// Title reads the document title.
func Title() Strategy {
	return Strategy{
		Name: "title",
		Extract: func(root *goquery.Selection, _ *url.URL) []string {
			title := strings.TrimSpace(root.Find("title").First().Text())
			if title == "" || !IsAddressLike(Clean(title)) {
				return nil
			}
			return []string{title}
		},
	}
}

// Elements reads the text of the first match of each selector, in order, and
// falls back to the first h1.
func Elements(selectors ...string) Strategy {
	return Strategy{
		Name: "elements",
		Extract: func(root *goquery.Selection, _ *url.URL) []string {
			var out []string
			all := append(append([]string{}, selectors...), "h1")
			for _, selector := range all {
				text := strings.TrimSpace(root.Find(selector).First().Text())
				if text != "" {
					out = append(out, text)
				}
			}
			return out
		},
	}
}

// URLSlug converts the path segment following one of the given markers into
// an address with the fallback locality suffix.
func URLSlug(suffix string, markers ...string) Strategy {
	return Strategy{
		Name: "url-slug",
		Extract: func(_ *goquery.Selection, pageURL *url.URL) []string {
			if pageURL == nil {
				return nil
			}
			segments := strings.Split(strings.Trim(pageURL.Path, "/"), "/")
			var out []string
			for i, seg := range segments {
				for _, marker := range markers {
					if seg == marker && i+1 < len(segments) {
						if addr := FromSlug(segments[i+1], suffix); addr != "" {
							out = append(out, addr)
						}
					}
				}
			}
			return out
		},
	}
}
