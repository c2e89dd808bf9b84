package curator

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify folds accents, lowercases and joins alphanumeric runs with sep:
// "Crème Brûlée Ads" becomes "creme_brulee_ads" for sep "_".
func Slugify(s, sep string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && b.Len() > 0 {
				b.WriteString(sep)
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}

// keySeparator is "-" for document slugs and "_" for codes and data values.
func keySeparator(naturalKey string) string {
	if naturalKey == "slug" {
		return "-"
	}
	return "_"
}
