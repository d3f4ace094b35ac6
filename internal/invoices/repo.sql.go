package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/siteledger/internal/ledger"
	"github.com/odyssey-erp/siteledger/internal/platform/db"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the postgres repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// WithTx runs fn inside a transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, ledger: ledger.NewTxRepository(tx)})
	})
}

type txRepo struct {
	tx     pgx.Tx
	ledger ledger.TxRepository
}

func (t *txRepo) Ledger() ledger.TxRepository { return t.ledger }

const invoiceColumns = `i.id, i.vendor_id, v.name, i.invoice_number, i.status, i.invoice_date, i.subtotal,
i.total_amount, i.advance_paid, i.balance, i.created_at, i.finalized_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.VendorID, &inv.VendorName, &inv.Number, &inv.Status, &inv.InvoiceDate, &inv.Subtotal,
		&inv.TotalAmount, &inv.AdvancePaid, &inv.Balance, &inv.CreatedAt, &inv.FinalizedAt)
	return inv, err
}

func notFound(err error, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: invoice %d", shared.ErrNotFound, id)
	}
	return db.Classify(err)
}

func (t *txRepo) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO vendor_invoices (vendor_id, invoice_number, status, invoice_date)
VALUES ($1, $2, $3, $4) RETURNING id`, inv.VendorID, inv.Number, inv.Status, inv.InvoiceDate).Scan(&id)
	return id, db.Classify(err)
}

func (t *txRepo) InvoiceVendor(ctx context.Context, id int64) (int64, error) {
	var vendorID int64
	if err := t.tx.QueryRow(ctx, `SELECT vendor_id FROM vendor_invoices WHERE id = $1`, id).Scan(&vendorID); err != nil {
		return 0, notFound(err, id)
	}
	return vendorID, nil
}

func (t *txRepo) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+invoiceColumns+`
FROM vendor_invoices i JOIN vendors v ON v.id = i.vendor_id
WHERE i.id = $1
FOR UPDATE OF i`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		return Invoice{}, notFound(err, id)
	}
	return inv, nil
}

func (t *txRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO vendor_invoice_items (invoice_id, product, quantity, unit, rate, total)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		item.InvoiceID, item.Product, item.Quantity, item.Unit, item.Rate, item.Total).Scan(&id)
	return id, db.Classify(err)
}

func (t *txRepo) ItemInvoice(ctx context.Context, itemID int64) (int64, error) {
	var invoiceID int64
	err := t.tx.QueryRow(ctx, `SELECT invoice_id FROM vendor_invoice_items WHERE id = $1`, itemID).Scan(&invoiceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: invoice item %d", shared.ErrNotFound, itemID)
	}
	return invoiceID, db.Classify(err)
}

func (t *txRepo) DeleteItem(ctx context.Context, itemID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM vendor_invoice_items WHERE id = $1`, itemID)
	if err != nil {
		return 0, db.Classify(err)
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) RecomputeSubtotal(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	var subtotal decimal.Decimal
	err := t.tx.QueryRow(ctx, `UPDATE vendor_invoices
SET subtotal = (SELECT COALESCE(SUM(total), 0) FROM vendor_invoice_items WHERE invoice_id = $1)
WHERE id = $1
RETURNING subtotal`, invoiceID).Scan(&subtotal)
	if err != nil {
		return decimal.Zero, notFound(err, invoiceID)
	}
	return subtotal, nil
}

func (t *txRepo) InsertAdvance(ctx context.Context, adv Advance) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO vendor_invoice_advances (invoice_id, amount, paid_at) VALUES ($1, $2, $3) RETURNING id`,
		adv.InvoiceID, adv.Amount, adv.PaidAt).Scan(&id)
	return id, db.Classify(err)
}

func (t *txRepo) SumAdvances(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM vendor_invoice_advances WHERE invoice_id = $1`, invoiceID).Scan(&sum)
	return sum, db.Classify(err)
}

func (t *txRepo) MarkFinalized(ctx context.Context, inv Invoice) (int64, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE vendor_invoices
SET status = $2, invoice_number = $3, total_amount = $4, advance_paid = $5, balance = $6, finalized_at = $7
WHERE id = $1 AND status = 'DRAFT'`,
		inv.ID, StatusFinalized, inv.Number, inv.TotalAmount, inv.AdvancePaid, inv.Balance, inv.FinalizedAt)
	if err != nil {
		return 0, db.Classify(err)
	}
	return tag.RowsAffected(), nil
}

func (r *PGRepository) Get(ctx context.Context, id int64) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+`
FROM vendor_invoices i JOIN vendors v ON v.id = i.vendor_id
WHERE i.id = $1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		return Invoice{}, notFound(err, id)
	}
	return inv, nil
}

func (r *PGRepository) Items(ctx context.Context, invoiceID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, product, quantity, unit, rate, total
FROM vendor_invoice_items WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Product, &it.Quantity, &it.Unit, &it.Rate, &it.Total); err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, it)
	}
	return out, db.Classify(rows.Err())
}

func (r *PGRepository) Advances(ctx context.Context, invoiceID int64) ([]Advance, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, amount, paid_at
FROM vendor_invoice_advances WHERE invoice_id = $1 ORDER BY paid_at, id`, invoiceID)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []Advance
	for rows.Next() {
		var a Advance
		if err := rows.Scan(&a.ID, &a.InvoiceID, &a.Amount, &a.PaidAt); err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, a)
	}
	return out, db.Classify(rows.Err())
}

func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("i.status = $%d", len(args)))
	}
	if filter.VendorID > 0 {
		args = append(args, filter.VendorID)
		where = append(where, fmt.Sprintf("i.vendor_id = $%d", len(args)))
	}
	query := `SELECT ` + invoiceColumns + ` FROM vendor_invoices i JOIN vendors v ON v.id = i.vendor_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY i.invoice_date DESC, i.id DESC"
	return r.queryInvoices(ctx, query, args...)
}

func (r *PGRepository) Pending(ctx context.Context, limit int) ([]Invoice, error) {
	return r.queryInvoices(ctx, `SELECT `+invoiceColumns+`
FROM vendor_invoices i JOIN vendors v ON v.id = i.vendor_id
WHERE i.status = 'FINALIZED' AND i.balance > 0
ORDER BY i.invoice_date ASC, i.id ASC
LIMIT $1`, limit)
}

func (r *PGRepository) queryInvoices(ctx context.Context, query string, args ...any) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, inv)
	}
	return out, db.Classify(rows.Err())
}
