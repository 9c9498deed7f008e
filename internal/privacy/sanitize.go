package privacy

import (
	"strings"
	"unicode/utf8"
)

// MaxTextLength caps sanitized free-text answers, in runes.
const MaxTextLength = 5000

var angleBrackets = strings.NewReplacer("<", "", ">", "")

// SanitizeText trims s, strips angle brackets and caps its length.
func SanitizeText(s string) string {
	s = angleBrackets.Replace(strings.TrimSpace(s))
	if utf8.RuneCountInString(s) <= MaxTextLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxTextLength])
}
