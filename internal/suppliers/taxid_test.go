package suppliers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTaxID(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "B12345678", "B12345678"},
		{"lowercase", "b12345678", "B12345678"},
		{"hyphenated", "B-12.345.678", "B12345678"},
		{"country prefix", "ESB12345678", "B12345678"},
		{"country prefix with separator", "ES-B12345678", "B12345678"},
		{"numeric vat with prefix", "DE 123 456 789", "123456789"},
		{"short id keeps leading letters", "AB1234567", "AB1234567"},
		{"whitespace", "  B12345678 ", "B12345678"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeTaxID(tc.in))
		})
	}
}

func TestNormalizeTaxIDVariantsCollapse(t *testing.T) {
	variants := []string{"ESB12345678", "es-b12345678", "B 12345678", "B-12345678"}
	for _, v := range variants {
		assert.Equal(t, "B12345678", NormalizeTaxID(v), "variant %q", v)
	}
}

func TestNormalizeTaxIDIdempotent(t *testing.T) {
	for _, v := range []string{"ESB12345678", "B12345678", "DE123456789", "x-1/2.3_4"} {
		once := NormalizeTaxID(v)
		assert.Equal(t, once, NormalizeTaxID(once))
	}
}
