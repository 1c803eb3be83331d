package catalog

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// minExtractedCodeLen is the minimum normalized length for a code extracted
// from free text to be trusted.
const minExtractedCodeLen = 4

// minSimilarCodeLen guards the containment heuristic against short codes
// that would false-positive-merge distinct materials.
const minSimilarCodeLen = 6

// maxSlugLen caps derived material codes.
const maxSlugLen = 40

// codePattern recognizes prefixed code shapes in free text, e.g.
// "REF: ABC-123", "Cod. 45678", "ART 99-X", "SKU#A1B2C3".
var codePattern = regexp.MustCompile(`(?i)\b(?:ref(?:erencia)?|cod(?:igo)?|art(?:iculo)?|mat(?:erial)?|sku)\b\.?\s*[:#]?\s*([A-Za-z0-9][A-Za-z0-9\-_./]*)`)

// NormalizeCode canonicalizes a material code: uppercase with all separator
// characters stripped. Idempotent.
func NormalizeCode(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		switch r {
		case ' ', '-', '_', '.', '/':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ExtractCode scans free text for a prefixed reference code and returns it
// normalized, or "" when nothing trustworthy is found.
func ExtractCode(text string) string {
	for _, match := range codePattern.FindAllStringSubmatch(text, -1) {
		code := NormalizeCode(match[1])
		if len(code) >= minExtractedCodeLen {
			return code
		}
	}
	return ""
}

// SimilarCodes reports whether two normalized codes are close enough to be
// treated as the same material. Containment in either direction counts, but
// only when both codes are long enough to make collisions unlikely.
func SimilarCodes(a, b string) bool {
	a, b = NormalizeCode(a), NormalizeCode(b)
	if len(a) < minSimilarCodeLen || len(b) < minSimilarCodeLen {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName lowercases, strips accents and collapses whitespace so name
// comparisons are stable across invoice spelling variants.
func NormalizeName(raw string) string {
	s, _, err := transform.String(stripAccents, strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		s = strings.ToLower(strings.TrimSpace(raw))
	}
	return strings.Join(strings.Fields(s), " ")
}

// SignificantWords returns the normalized words of a name longer than two
// characters.
func SignificantWords(name string) []string {
	var words []string
	for _, w := range strings.Fields(NormalizeName(name)) {
		if len(w) > 2 {
			words = append(words, w)
		}
	}
	return words
}

// SharedWordCount counts significant words present in both names.
func SharedWordCount(a, b string) int {
	seen := make(map[string]struct{})
	for _, w := range SignificantWords(a) {
		seen[w] = struct{}{}
	}
	count := 0
	for _, w := range SignificantWords(b) {
		if _, ok := seen[w]; ok {
			count++
			delete(seen, w)
		}
	}
	return count
}

// MatchNames applies the name-based fallback: exact or substring match on
// normalized names, or at least two shared significant words.
func MatchNames(a, b string) bool {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb || strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	return SharedWordCount(a, b) >= 2
}

// Slug derives a stable primary code from a material name when no reference
// code exists: lowercase, accents stripped, non-alphanumerics removed,
// spaces to hyphens, capped length.
func Slug(name string) string {
	s := NormalizeName(name)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	slug := b.String()
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "-")
	}
	return slug
}
