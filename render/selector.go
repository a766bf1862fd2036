package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var simpleIDPattern = regexp.MustCompile(`^[A-Za-z][\w-]*$`)

// CSSPath returns a selector that matches exactly the first node of s in the
// document it was parsed from. When root is not nil the path is built
// relative to root and prefixed with rootSelector.
func CSSPath(s *goquery.Selection, root *goquery.Selection, rootSelector string) string {
	if s.Length() == 0 {
		return ""
	}
	var rootSel *goquery.Selection
	if root != nil && root.Length() > 0 {
		rootSel = root.First()
	}

	var parts []string
	cur := s.First()
	for cur.Length() > 0 {
		if rootSel != nil && cur.IsSelection(rootSel) {
			parts = append(parts, rootSelector)
			break
		}
		if id, ok := cur.Attr("id"); ok && simpleIDPattern.MatchString(id) {
			parts = append(parts, "#"+id)
			break
		}
		name := goquery.NodeName(cur)
		if name == "html" {
			parts = append(parts, "html")
			break
		}
		parts = append(parts, fmt.Sprintf("%s:nth-child(%d)", name, cur.PrevAll().Length()+1))
		cur = cur.Parent()
	}

	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

// CardSelector matches a tagged card
func CardSelector(attribute, cardID string) string {
	return fmt.Sprintf(`[%s="%s"]`, attribute, cardID)
}
