package adapters

import (
	"fmt"
	"strings"

	"commute-annotator/internal/types"
	"commute-annotator/utils"

	"github.com/PuerkitoBio/goquery"
)

// PageKind is the class of a host-site page
type PageKind int

const (
	PageInert PageKind = iota
	PageListing
	PageSearch
)

func (k PageKind) String() string {
	switch k {
	case PageListing:
		return "listing"
	case PageSearch:
		return "search"
	}
	return "inert"
}

// BaseAdapter provides common functionality for site adapters: parsing
// snapshots and reading text through ordered selector fallbacks.
type BaseAdapter struct {
	config *types.Config
	logger types.Logger
	tracer *utils.Tracer
}

// NewBaseAdapter creates a new base adapter
func NewBaseAdapter(config *types.Config, logger types.Logger, tracer *utils.Tracer) *BaseAdapter {
	return &BaseAdapter{
		config: config,
		logger: logger,
		tracer: tracer,
	}
}

// ParseHTML parses HTML content into a goquery document
func (b *BaseAdapter) ParseHTML(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// ExtractText extracts text from the first element matching selector
func (b *BaseAdapter) ExtractText(root *goquery.Selection, selector string) (string, error) {
	element := root.Find(selector).First()
	if element.Length() == 0 {
		return "", fmt.Errorf("element not found with selector: %s", selector)
	}

	return strings.TrimSpace(element.Text()), nil
}

// ExtractAttribute extracts an attribute value from the first element matching selector
func (b *BaseAdapter) ExtractAttribute(root *goquery.Selection, selector string, attribute string) (string, error) {
	element := root.Find(selector).First()
	if element.Length() == 0 {
		return "", fmt.Errorf("element not found with selector: %s", selector)
	}

	value, exists := element.Attr(attribute)
	if !exists {
		return "", fmt.Errorf("attribute %s not found on element %s", attribute, selector)
	}

	return value, nil
}

// FirstText returns the first non-empty text found by trying selectors in
// order, along with the selector that matched.
func (b *BaseAdapter) FirstText(root *goquery.Selection, selectors []string) (string, string) {
	for _, selector := range selectors {
		text, err := b.ExtractText(root, selector)
		if err == nil && text != "" {
			return text, selector
		}
	}
	return "", ""
}
