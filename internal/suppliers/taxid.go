package suppliers

import "strings"

// NormalizeTaxID canonicalizes a tax identifier so country-prefix and
// separator variants of the same identifier compare equal: uppercase,
// separators stripped, and a leading two-letter country prefix removed when
// the remainder is still a full-length identifier.
func NormalizeTaxID(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		switch r {
		case ' ', '-', '.', '/', '_':
			continue
		}
		b.WriteRune(r)
	}
	s := b.String()
	if len(s) > 9 && isASCIILetter(s[0]) && isASCIILetter(s[1]) {
		s = s[2:]
	}
	return s
}

func isASCIILetter(c byte) bool {
	return c >= 'A' && c <= 'Z'
}
