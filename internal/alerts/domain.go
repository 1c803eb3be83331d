package alerts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Severity tiers for price increases.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Status enumerates alert lifecycle states.
type Status string

const (
	StatusOpen         Status = "OPEN"
	StatusAcknowledged Status = "ACKNOWLEDGED"
	StatusResolved     Status = "RESOLVED"
)

// PriceAlert flags a significant unit-price increase for a
// (material, provider) pair on a given effective date. The composite key
// (tenant, material, provider, effective date) is unique.
type PriceAlert struct {
	ID            int64           `json:"id"`
	TenantID      int64           `json:"tenantId"`
	MaterialID    int64           `json:"materialId"`
	ProviderID    int64           `json:"providerId"`
	EffectiveDate time.Time       `json:"effectiveDate"`
	OldPrice      decimal.Decimal `json:"oldPrice"`
	NewPrice      decimal.Decimal `json:"newPrice"`
	ChangePct     decimal.Decimal `json:"changePct"`
	Severity      Severity        `json:"severity"`
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
}

var (
	pctMedium = decimal.NewFromInt(10)
	pctHigh   = decimal.NewFromInt(20)
)

// SeverityFor maps a percentage increase to its tier: Low up to 10%,
// Medium up to 20%, High above that.
func SeverityFor(changePct decimal.Decimal) Severity {
	switch {
	case changePct.GreaterThan(pctHigh):
		return SeverityHigh
	case changePct.GreaterThan(pctMedium):
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ChangePct computes the percentage increase from old to new price, rounded
// to two decimal places. Zero when the old price is zero.
func ChangePct(oldPrice, newPrice decimal.Decimal) decimal.Decimal {
	if oldPrice.IsZero() {
		return decimal.Zero
	}
	return newPrice.Sub(oldPrice).Div(oldPrice).Mul(decimal.NewFromInt(100)).Round(2)
}

// ListAlertsRequest filters alert listings.
type ListAlertsRequest struct {
	Status     Status
	MaterialID int64
	ProviderID int64
	Page       int
	PerPage    int
}
