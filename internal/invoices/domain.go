package invoices

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates vendor invoice states.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusFinalized Status = "FINALIZED"
)

// DefaultPendingLimit bounds PendingInvoices when the caller passes no limit.
const DefaultPendingLimit = 5

// Invoice is a vendor bill. Totals are frozen once it is finalized.
type Invoice struct {
	ID          int64           `json:"id"`
	VendorID    int64           `json:"vendor_id"`
	VendorName  string          `json:"vendor_name,omitempty"`
	Number      string          `json:"invoice_number"`
	Status      Status          `json:"status"`
	InvoiceDate time.Time       `json:"invoice_date"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	AdvancePaid decimal.Decimal `json:"advance_paid"`
	Balance     decimal.Decimal `json:"balance"`
	CreatedAt   time.Time       `json:"created_at"`
	FinalizedAt *time.Time      `json:"finalized_at,omitempty"`
}

// Item is an invoice line. Total is supplied by the caller and stored as given.
type Item struct {
	ID        int64           `json:"id"`
	InvoiceID int64           `json:"invoice_id"`
	Product   string          `json:"product"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      string          `json:"unit"`
	Rate      decimal.Decimal `json:"rate"`
	Total     decimal.Decimal `json:"total"`
}

// Advance is a prepayment recorded against a draft invoice.
type Advance struct {
	ID        int64           `json:"id"`
	InvoiceID int64           `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    time.Time       `json:"paid_at"`
}

// Details bundles an invoice with its lines and advances.
type Details struct {
	Invoice
	Items    []Item    `json:"items"`
	Advances []Advance `json:"advances"`
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Status   Status
	VendorID int64
}

// StartInput opens a draft invoice.
type StartInput struct {
	VendorID    int64     `json:"vendor_id" validate:"required,gt=0"`
	Number      string    `json:"invoice_number" validate:"required,max=60"`
	InvoiceDate time.Time `json:"invoice_date"`
}

// ItemInput adds a line to a draft invoice.
type ItemInput struct {
	Product  string          `json:"product" validate:"required,max=200"`
	Quantity decimal.Decimal `json:"quantity" validate:"qty_gt0"`
	Unit     string          `json:"unit" validate:"max=20"`
	Rate     decimal.Decimal `json:"rate" validate:"gte=0"`
	Total    decimal.Decimal `json:"total" validate:"gte=0"`
}

// AdvanceInput records a prepayment.
type AdvanceInput struct {
	Amount decimal.Decimal `json:"amount" validate:"money_gt0"`
}

// FinalizeInput freezes an invoice. ClosingAdvance, when positive, is recorded as a last advance
// in the same transaction.
type FinalizeInput struct {
	TotalAmount    decimal.Decimal `json:"total_amount" validate:"gte=0"`
	ClosingAdvance decimal.Decimal `json:"closing_advance" validate:"gte=0"`
}
