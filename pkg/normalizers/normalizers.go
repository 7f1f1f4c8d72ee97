// Package normalizers derives the comparison forms used for match keys.
package normalizers

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a pure string transformation.
type Normalizer func(string) string

// PhoneKeyLength is the number of trailing phone characters kept. It drops
// country prefixes written in different forms (+225, 00225, none).
const PhoneKeyLength = 8

var registry = map[string]Normalizer{}

func init() {
	Register("nphone", NormalizePhone)
	Register("nstring", NormalizeString)
	Register("collapse_whitespace", CollapseWhitespace)
}

func Register(name string, fn Normalizer) {
	registry[name] = fn
}

func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// ApplyChain applies registered normalizers in order, skipping unknown names.
func ApplyChain(value string, names ...string) string {
	for _, name := range names {
		if fn, ok := registry[name]; ok {
			value = fn(value)
		}
	}
	return value
}

var phoneSeparators = strings.NewReplacer(
	"-", "",
	"(", "",
	")", "",
	".", "",
)

// NormalizePhone strips whitespace and the separators - ( ) . plus any
// leading +, then keeps the last PhoneKeyLength characters.
func NormalizePhone(raw string) string {
	if raw == "" {
		return ""
	}

	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	s = phoneSeparators.Replace(s)
	s = strings.TrimLeft(s, "+")

	r := []rune(s)
	if len(r) <= PhoneKeyLength {
		return s
	}
	return string(r[len(r)-PhoneKeyLength:])
}

// NormalizeString lowercases, removes diacritics and trims.
func NormalizeString(raw string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(raw))
	if err != nil {
		// transform only fails on invalid chains; fall back to the plain fold
		folded = strings.ToLower(raw)
	}
	return strings.TrimSpace(folded)
}

// CollapseWhitespace lowercases, trims and squeezes internal whitespace runs to
// one space. Accents are kept.
func CollapseWhitespace(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}
