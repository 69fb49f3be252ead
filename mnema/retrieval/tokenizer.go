package retrieval

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lowercase search terms. Identifiers are split
// on snake_case and camelCase boundaries while dots and hyphens stay inside
// a term, so "parseHTTPHeader", "retry_count" and "v1.2-rc" all keep their
// searchable pieces. Error codes like "0x8007" survive intact.
func Tokenize(text string) []string {
	var terms []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			terms = append(terms, strings.ToLower(current.String()))
			current.Reset()
		}
	}

	var prev rune
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-':
			// camelCase boundary: lower followed by upper starts a new term
			if unicode.IsUpper(r) && unicode.IsLower(prev) {
				flush()
			}
			current.WriteRune(r)
		default:
			flush()
		}
		prev = r
	}
	flush()

	// Strip leading/trailing punctuation left by sentence context
	out := terms[:0]
	for _, t := range terms {
		t = strings.Trim(t, ".-")
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
