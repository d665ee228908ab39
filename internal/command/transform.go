package command

import (
	"strings"
	"unicode"
)

// Transform converts a logical command name to its wire form. Words are
// split on spaces, hyphens, underscores and case boundaries, then each word
// is capitalized and the rest lower-cased:
//
//	create_terminal → CreateTerminal
//	get terminals   → GetTerminals
//	getTerminals    → GetTerminals
//	HTTPRequest     → HttpRequest
func Transform(name string) string {
	var b strings.Builder
	for _, word := range splitWords(name) {
		runes := []rune(strings.ToLower(word))
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}

// splitWords splits name into words. Separators are any rune that is not a
// letter or digit. An upper-case rune starts a new word when it follows a
// lower-case letter or digit, or when it precedes a lower-case letter inside
// an upper-case run (the "P" in "HTTPRequest" starts "Request").
func splitWords(name string) []string {
	runes := []rune(name)
	var words []string
	start := -1

	flush := func(end int) {
		if start >= 0 && end > start {
			words = append(words, string(runes[start:end]))
		}
		start = -1
	}

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
			continue
		}

		prev := runes[i-1]
		switch {
		case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			flush(i)
			start = i
		case unicode.IsUpper(r) && unicode.IsUpper(prev) &&
			i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			flush(i)
			start = i
		}
	}
	flush(len(runes))

	return words
}
