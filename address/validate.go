package address

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	minLength = 5
	maxLength = 200
)

var placeholderPattern = regexp.MustCompile(`(?i)^(?:(?:loading|error|n/a|tbd|pending|unavailable|unknown|null|undefined)\b[\s.:!\x{2026}]*|[.\x{2026}\s]+|[-_\s]+)$`)

// IsValid reports whether text is worth sending to the resolver. Every
// accepted address costs a paid lookup downstream.
func IsValid(text string) bool {
	text = strings.TrimSpace(text)
	if len(text) < minLength || len(text) > maxLength {
		return false
	}
	if IsPlaceholder(text) {
		return false
	}
	if !strings.ContainsFunc(text, unicode.IsLetter) {
		return false
	}
	return IsAddressLike(text)
}

// IsPlaceholder reports whether text is loading or error filler rendered by
// the host page before the real content arrives.
func IsPlaceholder(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return true
	}
	if strings.HasPrefix(strings.ToLower(text), "loading") {
		return true
	}
	return placeholderPattern.MatchString(text)
}
