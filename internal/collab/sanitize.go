package collab

import (
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*[ \t]*\r?\n(.*?)```")

// Sanitize strips surrounding whitespace and, when the answer wraps its
// payload in a markdown fence, keeps only the first fenced block.
func Sanitize(text string) string {
	text = strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	// unterminated fence
	if strings.HasPrefix(text, "```") {
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			return strings.TrimSpace(text[i+1:])
		}
		return ""
	}
	return text
}

// LooksLikeIR reports whether text is a JSON node document rather than code.
func LooksLikeIR(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || (text[0] != '{' && text[0] != '[') {
		return false
	}
	return strings.Contains(text, `"operation_type"`) || strings.Contains(text, `"nodes"`)
}
