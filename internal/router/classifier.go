package router

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// ComplexLengthThreshold is the character count above which text is complex.
const ComplexLengthThreshold = 180

var (
	complexKeywords = regexp.MustCompile(`(?i)\b(write|create|design|generate|brainstorm|analyze)\b`)

	paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

	lineSeparators = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\u2028", "\n", "\u2029", "\n")
)

// IsComplex reports whether text should be treated as a reasoning-heavy
// request: longer than ComplexLengthThreshold characters, containing a
// paragraph break, or containing one of the whole-word task keywords.
func IsComplex(text string) bool {
	if utf8.RuneCountInString(text) > ComplexLengthThreshold {
		return true
	}
	if paragraphBreak.MatchString(lineSeparators.Replace(text)) {
		return true
	}
	return complexKeywords.MatchString(text)
}
