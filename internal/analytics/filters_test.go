package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/invio-erp/invio/internal/shared"
)

func TestNormalizeWorkOrder(t *testing.T) {
	cases := map[string]string{
		"OB 12":       "ob-12",
		"  ob   12  ": "ob-12",
		"Obra Norte2": "obra-norte2",
		"ob-12":       "ob-12",
		"":            "",
	}
	for in, want := range cases {
		assert.Equal(t, want, shared.NormalizeWorkOrder(in), "input %q", in)
	}
}

func TestFiltersNormalize(t *testing.T) {
	f := Filters{
		Category:  "  Aridos ",
		WorkOrder: "OB 12",
		Search:    " CEMENTO ",
	}.Normalize()

	assert.Equal(t, "aridos", f.Category)
	assert.Equal(t, "ob-12", f.WorkOrder)
	assert.Equal(t, "cemento", f.Search)
	assert.Equal(t, SortCost, f.Sort, "sort defaults to cost")

	f = Filters{Sort: SortKey("bogus")}.Normalize()
	assert.Equal(t, SortCost, f.Sort)

	f = Filters{Sort: SortName}.Normalize()
	assert.Equal(t, SortName, f.Sort)
}

func TestFiltersCacheKeyStable(t *testing.T) {
	a := Filters{MaterialID: 3, Search: "cemento", Sort: SortCost}
	b := Filters{MaterialID: 3, Search: "cemento", Sort: SortCost}
	assert.Equal(t, a.CacheKey(), b.CacheKey())

	c := Filters{MaterialID: 3, Search: "arena", Sort: SortCost}
	assert.NotEqual(t, a.CacheKey(), c.CacheKey())
}
