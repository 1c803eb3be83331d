package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// lineEnvelope is the outer shape of one line in a batch result source. The
// extraction engine's response is itself a JSON-encoded invoice record.
type lineEnvelope struct {
	Key      string `json:"key"`
	Response string `json:"response"`
}

// Date accepts the calendar-date and RFC3339 encodings emitted by the
// extraction service.
type Date struct {
	time.Time
}

// UnmarshalJSON parses "2006-01-02" or RFC3339 timestamps.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid date %q", s)
	}
	d.Time = t
	return nil
}

// MarshalJSON encodes as a calendar date.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`null`), nil
	}
	return []byte(`"` + d.Format("2006-01-02") + `"`), nil
}

// InvoiceRecord is the strict schema for one extracted invoice. Shape
// mismatches are parse errors for that line only; they never propagate
// downstream.
type InvoiceRecord struct {
	ProviderName  string `json:"provider_name" validate:"required"`
	ProviderTaxID string `json:"provider_tax_id" validate:"required"`
	ProviderType  string `json:"provider_type"`
	ProviderEmail string `json:"provider_email"`
	ProviderPhone string `json:"provider_phone"`

	InvoiceCode string `json:"invoice_code" validate:"required"`
	IssueDate   Date   `json:"issue_date" validate:"required"`

	Items []ItemRecord `json:"items" validate:"required,min=1,dive"`
}

// ItemRecord is one extracted line item.
type ItemRecord struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Code        string          `json:"code"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	WorkOrder   string          `json:"work_order"`
	ItemDate    Date            `json:"item_date"`
	LineNumber  int             `json:"line_number"`
}

// Invoice is a persisted invoice header. Total always equals the sum of its
// items' line totals.
type Invoice struct {
	ID         int64           `json:"id"`
	TenantID   int64           `json:"tenantId"`
	ProviderID int64           `json:"providerId"`
	Code       string          `json:"code"`
	IssueDate  time.Time       `json:"issueDate"`
	Total      decimal.Decimal `json:"total"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// InvoiceItem is a persisted line item.
type InvoiceItem struct {
	ID         int64           `json:"id"`
	TenantID   int64           `json:"tenantId"`
	InvoiceID  int64           `json:"invoiceId"`
	MaterialID int64           `json:"materialId"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	WorkOrder  string          `json:"workOrder,omitempty"`
	ItemDate   time.Time       `json:"itemDate"`
	LineNumber int             `json:"lineNumber"`
}

// PricePoint is the last observed unit price for a (material, provider)
// pair.
type PricePoint struct {
	Price decimal.Decimal
	At    time.Time
}

// JobStatus enumerates batch job states.
type JobStatus string

const (
	JobQueued    JobStatus = "QUEUED"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

// FailureReason records why one invoice in a batch was rejected.
type FailureReason struct {
	InvoiceCode string `json:"invoiceCode"`
	Reason      string `json:"reason"`
}

// Summary reports the outcome of a batch job.
type Summary struct {
	Attempted     int             `json:"attempted"`
	Succeeded     int             `json:"succeeded"`
	Failed        int             `json:"failed"`
	AlertsRaised  int             `json:"alertsRaised,omitempty"`
	Failures      []FailureReason `json:"failures,omitempty"`
	ParseFailures []ParseFailure  `json:"parseFailures,omitempty"`
}

// Job tracks one batch ingestion run.
type Job struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   int64      `json:"tenantId"`
	Status     JobStatus  `json:"status"`
	SourcePath string     `json:"-"`
	Summary    Summary    `json:"summary"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}
