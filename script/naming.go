package script

import (
	"strings"
	"unicode"
)

// SnakeCase converts a Go identifier to snake_case.
// Acronyms stay together: HTTPStatus -> http_status.
func SnakeCase(s string) string {
	return strings.Join(words(s), "_")
}

// KebabCase converts a Go identifier to kebab-case, the WIT naming style.
func KebabCase(s string) string {
	return strings.Join(words(s), "-")
}

func words(s string) []string {
	runes := []rune(s)
	var out []string
	var cur []rune

	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '_' || r == '-':
			flush()
		case unicode.IsUpper(r):
			end := i + 1
			for end < len(runes) && unicode.IsUpper(runes[end]) {
				end++
			}
			// the last capital before a lowercase letter starts the next word
			if end > i+1 && end < len(runes) && unicode.IsLower(runes[end]) {
				end--
			}
			flush()
			for j := i; j < end; j++ {
				cur = append(cur, unicode.ToLower(runes[j]))
			}
			if end == i+1 {
				continue
			}
			flush()
			i = end - 1
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return out
}
