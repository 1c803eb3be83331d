package suppliers

import (
	"time"
)

// ProviderType enumerates provider categories.
type ProviderType string

const (
	TypeMaterialSupplier ProviderType = "MATERIAL_SUPPLIER"
	TypeMachineryRental  ProviderType = "MACHINERY_RENTAL"
)

// Provider model. TaxID is stored normalized (see NormalizeTaxID) and is
// unique per tenant.
type Provider struct {
	ID        int64        `json:"id"`
	TenantID  int64        `json:"tenantId"`
	Name      string       `json:"name"`
	TaxID     string       `json:"taxId"`
	Type      ProviderType `json:"type"`
	Email     string       `json:"email,omitempty"`
	Phone     string       `json:"phone,omitempty"`
	Address   string       `json:"address,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// CreateProviderInput for creating providers. TaxID may arrive in any of the
// accepted variants; it is normalized before persistence.
type CreateProviderInput struct {
	Name    string
	TaxID   string
	Type    ProviderType
	Email   string
	Phone   string
	Address string
}

// ListProvidersRequest for filtering provider listings.
type ListProvidersRequest struct {
	Search  string
	Page    int
	PerPage int
}
