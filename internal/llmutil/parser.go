// internal/llmutil/parser.go
package llmutil

import (
	"regexp"
	"strings"
)

// selectorRegex finds `selector: "<css>"` or `selector: '<css>'` anywhere in
// a model response, including inside markdown code blocks.
var selectorRegex = regexp.MustCompile(`selector: ["']([^"']+)["']`)

// ParseSelector extracts the first CSS selector a model announced in its
// response. The second result is false when the response names none.
func ParseSelector(response string) (string, bool) {
	m := selectorRegex.FindStringSubmatch(response)
	if len(m) < 2 {
		return "", false
	}
	sel := strings.TrimSpace(m[1])
	if sel == "" {
		return "", false
	}
	return sel, true
}

// Truncate shortens s to n bytes for logging, marking the cut with "...".
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
