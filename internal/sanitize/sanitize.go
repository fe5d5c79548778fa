// Package sanitize strips dangerous substrings from request input before it
// reaches handlers, and rejects requests matching known attack signatures.
//
// Both are heuristic denylists. They reduce injection risk at the edge; they
// do not replace parameterized queries or output encoding.
package sanitize

import (
	"regexp"
	"strings"
)

// DefaultMaxLength is the rune ceiling applied to every string leaf.
const DefaultMaxLength = 1000

var (
	scriptTagPattern = regexp.MustCompile(`(?i)<\s*/?\s*script\b[^>]*>`)
	jsSchemePattern  = regexp.MustCompile(`(?i)javascript\s*:`)
	eventAttrPattern = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
)

// Sanitizer cleans arbitrary decoded JSON-like values.
type Sanitizer struct {
	MaxLength int
}

// New returns a Sanitizer truncating strings to maxLength runes.
// Non-positive values use DefaultMaxLength.
func New(maxLength int) *Sanitizer {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Sanitizer{MaxLength: maxLength}
}

// Value walks v and cleans every string leaf. Maps and slices are rebuilt;
// other values pass through unchanged.
func (s *Sanitizer) Value(v any) any {
	switch val := v.(type) {
	case string:
		return s.String(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = s.Value(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = s.Value(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = s.String(item)
		}
		return out
	default:
		return v
	}
}

// String cleans a single string. The result is a fixed point: cleaning it
// again returns it unchanged.
func (s *Sanitizer) String(in string) string {
	out := strings.TrimSpace(in)
	// Removal can splice a new match together, e.g. "javajavascript:script:".
	for {
		next := scriptTagPattern.ReplaceAllString(out, "")
		next = jsSchemePattern.ReplaceAllString(next, "")
		next = eventAttrPattern.ReplaceAllString(next, "")
		next = strings.NewReplacer("<", "", ">", "").Replace(next)
		if next == out {
			break
		}
		out = next
	}
	out = truncateRunes(out, s.maxLength())
	return strings.TrimSpace(out)
}

func (s *Sanitizer) maxLength() int {
	if s == nil || s.MaxLength <= 0 {
		return DefaultMaxLength
	}
	return s.MaxLength
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

// Value cleans v with the default settings.
func Value(v any) any {
	return New(DefaultMaxLength).Value(v)
}
