package analytics

import (
	"strconv"
	"strings"
	"time"

	"github.com/invio-erp/invio/internal/shared"
)

// NormalizeText trims and casefolds a free-text filter value.
func NormalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Normalize returns a copy with all text filters in canonical form and the
// sort key defaulted.
func (f Filters) Normalize() Filters {
	f.Category = NormalizeText(f.Category)
	f.WorkOrder = shared.NormalizeWorkOrder(f.WorkOrder)
	f.Search = NormalizeText(f.Search)
	switch f.Sort {
	case SortCost, SortQuantity, SortDate, SortName, SortNameDesc:
	default:
		f.Sort = SortCost
	}
	return f
}

// CacheKey encodes the filter set as a stable cache key fragment.
func (f Filters) CacheKey() string {
	parts := []string{
		strconv.FormatInt(f.MaterialID, 10),
		f.Category,
		f.WorkOrder,
		strconv.FormatInt(f.ProviderID, 10),
		f.Search,
		dateToken(f.From),
		dateToken(f.To),
		string(f.Sort),
	}
	return strings.Join(parts, ":")
}

func dateToken(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}
