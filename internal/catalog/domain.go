package catalog

import (
	"time"
)

// Material is a deduplicated catalog entry for a product or service line.
// Code is unique per tenant; RefCode holds the normalized code extracted
// from invoice text; AltCodes collects other code variants seen for the same
// material.
type Material struct {
	ID             int64     `json:"id"`
	TenantID       int64     `json:"tenantId"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	Category       string    `json:"category,omitempty"`
	Unit           string    `json:"unit,omitempty"`
	RefCode        string    `json:"refCode,omitempty"`
	AltCodes       []string  `json:"altCodes,omitempty"`
	ProductGroupID *int64    `json:"productGroupId,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ProductGroup is a standardized name grouping near-duplicate materials.
type ProductGroup struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenantId"`
	Name     string `json:"name"`
}

// MaterialName is the minimal projection used for name-based matching.
type MaterialName struct {
	ID   int64
	Name string
}

// CreateMaterialInput for creating materials during resolution.
type CreateMaterialInput struct {
	Code     string
	Name     string
	Category string
	Unit     string
	RefCode  string
}
