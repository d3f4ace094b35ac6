package invoices

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/siteledger/internal/ledger"
)

// TxRepository exposes transactional invoice statements.
type TxRepository interface {
	Ledger() ledger.TxRepository

	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	// InvoiceVendor returns the vendor of an invoice without locking it.
	InvoiceVendor(ctx context.Context, id int64) (int64, error)
	// LockInvoice loads an invoice and holds its row lock until the transaction ends.
	LockInvoice(ctx context.Context, id int64) (Invoice, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	// ItemInvoice returns the invoice an item belongs to.
	ItemInvoice(ctx context.Context, itemID int64) (int64, error)
	DeleteItem(ctx context.Context, itemID int64) (int64, error)
	// RecomputeSubtotal stores and returns the sum of the invoice's item totals.
	RecomputeSubtotal(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	InsertAdvance(ctx context.Context, adv Advance) (int64, error)
	SumAdvances(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	// MarkFinalized writes the frozen totals; it affects nothing unless the row is still DRAFT.
	MarkFinalized(ctx context.Context, inv Invoice) (int64, error)
}

// Repository exposes invoice persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Invoice, error)
	Items(ctx context.Context, invoiceID int64) ([]Item, error)
	Advances(ctx context.Context, invoiceID int64) ([]Advance, error)
	List(ctx context.Context, filter ListFilter) ([]Invoice, error)
	Pending(ctx context.Context, limit int) ([]Invoice, error)
}
