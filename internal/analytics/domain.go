package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// SortKey selects the ordering of breakdown listings.
type SortKey string

const (
	SortCost     SortKey = "cost"
	SortQuantity SortKey = "quantity"
	SortDate     SortKey = "date"
	SortName     SortKey = "name"
	SortNameDesc SortKey = "name_desc"
)

// Filters narrows the invoice item population under analysis. Text fields
// are normalized with the same rules ingestion applies, so filter matching
// is consistent with stored values.
type Filters struct {
	MaterialID int64
	Category   string
	WorkOrder  string
	ProviderID int64
	Search     string
	From       time.Time
	To         time.Time
	Sort       SortKey
}

// PricePoint is one observed unit price on a date.
type PricePoint struct {
	Date  time.Time       `json:"date"`
	Price decimal.Decimal `json:"price"`
}

// SupplierShare ranks a supplier's contribution to one material's cost.
type SupplierShare struct {
	ProviderID int64           `json:"providerId"`
	Name       string          `json:"name"`
	Quantity   decimal.Decimal `json:"quantity"`
	TotalCost  decimal.Decimal `json:"totalCost"`
}

// MaterialBreakdown is the full per-material statistic set.
type MaterialBreakdown struct {
	MaterialID    int64           `json:"materialId"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Category      string          `json:"category,omitempty"`
	TotalQuantity decimal.Decimal `json:"totalQuantity"`
	TotalCost     decimal.Decimal `json:"totalCost"`
	AvgUnitPrice  decimal.Decimal `json:"avgUnitPrice"`
	InvoiceCount  int             `json:"invoiceCount"`
	SupplierCount int             `json:"supplierCount"`
	LastPurchase  time.Time       `json:"lastPurchase"`
	WorkOrders    []string        `json:"workOrders,omitempty"`
	PriceSeries   []PricePoint    `json:"priceSeries,omitempty"`
	TopSuppliers  []SupplierShare `json:"topSuppliers,omitempty"`
}

// MaterialShare ranks a material within one supplier's purchases.
type MaterialShare struct {
	MaterialID int64           `json:"materialId"`
	Name       string          `json:"name"`
	Quantity   decimal.Decimal `json:"quantity"`
	TotalCost  decimal.Decimal `json:"totalCost"`
}

// MonthlySpend is one calendar month's spending with a supplier.
type MonthlySpend struct {
	Month string          `json:"month"`
	Total decimal.Decimal `json:"total"`
}

// SupplierBreakdown is the full per-supplier statistic set.
type SupplierBreakdown struct {
	ProviderID     int64           `json:"providerId"`
	Name           string          `json:"name"`
	TotalSpent     decimal.Decimal `json:"totalSpent"`
	TotalQuantity  decimal.Decimal `json:"totalQuantity"`
	InvoiceCount   int             `json:"invoiceCount"`
	MaterialCount  int             `json:"materialCount"`
	WorkOrderCount int             `json:"workOrderCount"`
	AvgInvoice     decimal.Decimal `json:"avgInvoice"`
	LastInvoice    time.Time       `json:"lastInvoice"`
	MonthlySeries  []MonthlySpend  `json:"monthlySeries,omitempty"`
	TopByQuantity  []MaterialShare `json:"topByQuantity,omitempty"`
	TopByCost      []MaterialShare `json:"topByCost,omitempty"`
}

// topMaterialLimit caps the per-supplier material rankings.
const topMaterialLimit = 10

// ItemRow is one invoice item joined with its invoice, material and
// provider, the unit both breakdown shapes are computed from.
type ItemRow struct {
	MaterialID   int64
	MaterialCode string
	MaterialName string
	Category     string
	ProviderID   int64
	ProviderName string
	InvoiceID    int64
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	TotalPrice   decimal.Decimal
	WorkOrder    string
	ItemDate     time.Time
}

// InvoiceRow is one invoice header joined with its provider.
type InvoiceRow struct {
	InvoiceID    int64
	ProviderID   int64
	ProviderName string
	Code         string
	IssueDate    time.Time
	Total        decimal.Decimal
}

// ExportRow is the flat tabular projection for spreadsheet consumers.
type ExportRow struct {
	MaterialCode string          `json:"materialCode"`
	MaterialName string          `json:"materialName"`
	Category     string          `json:"category,omitempty"`
	Provider     string          `json:"provider"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	TotalPrice   decimal.Decimal `json:"totalPrice"`
	WorkOrder    string          `json:"workOrder,omitempty"`
	ItemDate     time.Time       `json:"itemDate"`
}
