package lists

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName NFC-normalizes name, drops control characters and collapses
// runs of whitespace.
func NormalizeName(name string) string {
	name = norm.NFC.String(name)
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, name)
	return strings.Join(strings.Fields(cleaned), " ")
}
