package prompt

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxPromptLength is the hard cap, in characters, on sanitized text.
const MaxPromptLength = 4000

// Sanitize turns raw user text into text that is safe to route and forward.
// It never fails: invalid UTF-8 becomes U+FFFD, control characters other than
// newline and tab are dropped along with invisible format characters
// (zero-width and bidi overrides), injection markers are deleted, surrounding
// whitespace is trimmed and the result is capped at MaxPromptLength characters.
// Sanitize(Sanitize(s)) == Sanitize(s) for every s.
func Sanitize(raw string) string {
	out := sanitizeOnce(raw)
	for {
		next := sanitizeOnce(out)
		if next == out {
			return out
		}
		out = next
	}
}

func sanitizeOnce(s string) string {
	s = strings.ToValidUTF8(s, string(utf8.RuneError))
	s = normalizeNewlines(s)
	s = stripControl(s)
	s = truncate(s, MaxPromptLength)
	s = removeInjections(s)
	return strings.TrimSpace(s)
}

var newlineReplacer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

func normalizeNewlines(s string) string {
	return newlineReplacer.Replace(s)
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
