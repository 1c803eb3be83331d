package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCodeIdempotent(t *testing.T) {
	for _, raw := range []string{"ref-123", "A B_C.D/E", "", "ABC123", "a-1_2.3/4 5"} {
		once := NormalizeCode(raw)
		assert.Equal(t, once, NormalizeCode(once), "raw %q", raw)
	}
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "REF123", NormalizeCode("ref-123"))
	assert.Equal(t, "ABCDE", NormalizeCode(" a b.c_d/e "))
	assert.Equal(t, "", NormalizeCode("-._/ "))
}

func TestExtractCode(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Tornillo galvanizado REF: ABC-1234 caja 100", "ABC1234"},
		{"Cemento gris cod. 45678", "45678"},
		{"Viga IPE art 99-X21", "99X21"},
		{"SKU#A1B2C3 arena fina", "A1B2C3"},
		{"material M-40.77", "M4077"},
		// too short after stripping separators
		{"ref A-1", ""},
		{"arena de rio lavada", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ExtractCode(tc.text), "text %q", tc.text)
	}
}

func TestSimilarCodes(t *testing.T) {
	assert.True(t, SimilarCodes("REF-123456", "ref123456"))
	assert.True(t, SimilarCodes("ABC123456789", "ABC123456"))
	assert.True(t, SimilarCodes("ABC123456", "ABC-123456789"))
	assert.False(t, SimilarCodes("REF-123", "COD-999"))
	// short codes never match by containment
	assert.False(t, SimilarCodes("12", "312"))
	assert.False(t, SimilarCodes("AB123", "AB123456"))
}

func TestMatchNames(t *testing.T) {
	assert.True(t, MatchNames("Cemento Gris", "cemento gris"))
	assert.True(t, MatchNames("Cemento gris saco 25kg", "Cemento gris"))
	// two shared significant words
	assert.True(t, MatchNames("tubo cobre 22mm rigido", "TUBO de COBRE recocido"))
	// one shared word is not enough
	assert.False(t, MatchNames("tubo cobre", "tubo pvc"))
	assert.False(t, MatchNames("arena fina", "grava gruesa"))
}

func TestMatchNamesAccentInsensitive(t *testing.T) {
	assert.True(t, MatchNames("Hormigón armado", "hormigon armado"))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "cemento-gris-25kg", Slug("Cemento Gris 25kg"))
	assert.Equal(t, "hormigon-armado", Slug("Hormigón  Armado!"))
	long := Slug(strings.Repeat("material largo ", 10))
	assert.LessOrEqual(t, len(long), 40)
	assert.False(t, strings.HasSuffix(long, "-"))
}
