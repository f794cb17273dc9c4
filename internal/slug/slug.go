// Package slug turns display names into comparable identifiers.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Placeholder is returned for names with no usable characters.
const Placeholder = "untitled"

// Func maps a display name to a slug. Implementations must be pure and
// never return an empty string.
type Func func(name string) string

// Normalize folds accents and case, and joins runs of letters and digits
// with single dashes: "  Café Society " -> "cafe-society".
func Normalize(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			dash = false
			sb.WriteRune(r)
			continue
		}
		dash = true
	}

	if sb.Len() == 0 {
		return Placeholder
	}
	return sb.String()
}
