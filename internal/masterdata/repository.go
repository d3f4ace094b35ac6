package masterdata

import (
	"context"

	"github.com/odyssey-erp/siteledger/internal/ledger"
)

// Table names the cascade works on.
const (
	tableClients         = "clients"
	tableVendors         = "vendors"
	tableProjects        = "projects"
	tableProjectVendors  = "project_vendors"
	tableLabor           = "labor"
	tableLaborPayments   = "labor_payments"
	tableProjectLedger   = "project_ledger"
	tableVendorLedger    = "vendor_ledger"
	tableExpenses        = "expenses"
	tablePayments        = "payments"
	tableInvoices        = "vendor_invoices"
	tableInvoiceItems    = "vendor_invoice_items"
	tableInvoiceAdvances = "vendor_invoice_advances"
)

// TxRepository exposes transactional statements.
type TxRepository interface {
	Ledger() ledger.TxRepository

	InsertClient(ctx context.Context, c Client) (int64, error)
	InsertVendor(ctx context.Context, v Vendor) (int64, error)
	InsertProject(ctx context.Context, p Project) (int64, error)
	InsertLabor(ctx context.Context, l Labor) (int64, error)
	LinkVendor(ctx context.Context, projectID, vendorID int64) (bool, error)
	UnlinkVendor(ctx context.Context, projectID, vendorID int64) (int64, error)

	// LockRow takes a row lock on table.id and reports whether the row exists.
	LockRow(ctx context.Context, table string, id int64) (bool, error)
	// ChildIDs returns ids of rows in table whose column equals parentID.
	ChildIDs(ctx context.Context, table, column string, parentID int64) ([]int64, error)
	// DeleteRows deletes rows in table whose column is one of ids.
	DeleteRows(ctx context.Context, table, column string, ids []int64) (int64, error)
}

// Repository provides access to master data.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	ListClients(ctx context.Context) ([]Client, error)
	GetClient(ctx context.Context, id int64) (Client, error)
	ListVendors(ctx context.Context) ([]Vendor, error)
	GetVendor(ctx context.Context, id int64) (Vendor, error)
	ListProjects(ctx context.Context, clientID int64) ([]Project, error)
	GetProject(ctx context.Context, id int64) (Project, error)
	ListLabor(ctx context.Context) ([]Labor, error)
}
