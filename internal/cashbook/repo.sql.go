package cashbook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

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

func nullID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

func missing(err error, what string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", shared.ErrNotFound, what, id)
	}
	return db.Classify(err)
}

func (t *txRepo) InsertExpense(ctx context.Context, e Expense) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO expenses (type, project_id, vendor_id, amount, method, spent_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		e.Type, nullID(e.ProjectID), nullID(e.VendorID), e.Amount, e.Method, e.SpentAt).Scan(&id)
	return id, db.Classify(err)
}

func (t *txRepo) GetExpense(ctx context.Context, id int64) (Expense, error) {
	var (
		e                   Expense
		projectID, vendorID *int64
	)
	err := t.tx.QueryRow(ctx, `SELECT id, type, project_id, vendor_id, amount, method, spent_at FROM expenses WHERE id = $1`, id).
		Scan(&e.ID, &e.Type, &projectID, &vendorID, &e.Amount, &e.Method, &e.SpentAt)
	if err != nil {
		return Expense{}, missing(err, "expense", id)
	}
	if projectID != nil {
		e.ProjectID = *projectID
	}
	if vendorID != nil {
		e.VendorID = *vendorID
	}
	return e, nil
}

func (t *txRepo) DeleteExpense(ctx context.Context, id int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return 0, db.Classify(err)
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO payments (project_id, amount, method, paid_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		p.ProjectID, p.Amount, p.Method, p.PaidAt).Scan(&id)
	return id, db.Classify(err)
}

func (t *txRepo) GetPayment(ctx context.Context, id int64) (Payment, error) {
	var p Payment
	err := t.tx.QueryRow(ctx, `SELECT id, project_id, amount, method, paid_at FROM payments WHERE id = $1`, id).
		Scan(&p.ID, &p.ProjectID, &p.Amount, &p.Method, &p.PaidAt)
	if err != nil {
		return Payment{}, missing(err, "payment", id)
	}
	return p, nil
}

func (t *txRepo) DeletePayment(ctx context.Context, id int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return 0, db.Classify(err)
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) LockLabor(ctx context.Context, id int64) (string, error) {
	var name string
	if err := t.tx.QueryRow(ctx, `SELECT name FROM labor WHERE id = $1 FOR SHARE`, id).Scan(&name); err != nil {
		return "", missing(err, "labor", id)
	}
	return name, nil
}

func (t *txRepo) InsertLaborPayment(ctx context.Context, p LaborPayment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO labor_payments (labor_id, description, amount, method, paid_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, p.LaborID, p.Description, p.Amount, p.Method, p.PaidAt).Scan(&id)
	return id, db.Classify(err)
}

func (r *PGRepository) ListExpenses(ctx context.Context, filter ExpenseFilter) ([]Expense, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != "" {
		args = append(args, filter.Type)
		where = append(where, fmt.Sprintf("e.type = $%d", len(args)))
	}
	if filter.ProjectID > 0 {
		args = append(args, filter.ProjectID)
		where = append(where, fmt.Sprintf("e.project_id = $%d", len(args)))
	}
	if filter.VendorID > 0 {
		args = append(args, filter.VendorID)
		where = append(where, fmt.Sprintf("e.vendor_id = $%d", len(args)))
	}
	query := `SELECT e.id, e.type, COALESCE(e.project_id, 0), COALESCE(e.vendor_id, 0), COALESCE(p.name, v.name, ''),
e.amount, e.method, e.spent_at
FROM expenses e
LEFT JOIN projects p ON p.id = e.project_id
LEFT JOIN vendors v ON v.id = e.vendor_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY e.spent_at DESC, e.id DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.Type, &e.ProjectID, &e.VendorID, &e.TargetName, &e.Amount, &e.Method, &e.SpentAt); err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, e)
	}
	return out, db.Classify(rows.Err())
}

func (r *PGRepository) ListPayments(ctx context.Context, projectID int64) ([]Payment, error) {
	query := `SELECT pay.id, pay.project_id, p.name, pay.amount, pay.method, pay.paid_at
FROM payments pay JOIN projects p ON p.id = pay.project_id`
	var args []any
	if projectID > 0 {
		query += ` WHERE pay.project_id = $1`
		args = append(args, projectID)
	}
	query += ` ORDER BY pay.paid_at DESC, pay.id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.ProjectName, &p.Amount, &p.Method, &p.PaidAt); err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, p)
	}
	return out, db.Classify(rows.Err())
}

func (r *PGRepository) ListLaborPayments(ctx context.Context, laborID int64) ([]LaborPayment, error) {
	query := `SELECT lp.id, lp.labor_id, l.name, lp.description, lp.amount, lp.method, lp.paid_at
FROM labor_payments lp JOIN labor l ON l.id = lp.labor_id`
	var args []any
	if laborID > 0 {
		query += ` WHERE lp.labor_id = $1`
		args = append(args, laborID)
	}
	query += ` ORDER BY lp.paid_at DESC, lp.id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []LaborPayment
	for rows.Next() {
		var p LaborPayment
		if err := rows.Scan(&p.ID, &p.LaborID, &p.LaborName, &p.Description, &p.Amount, &p.Method, &p.PaidAt); err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, p)
	}
	return out, db.Classify(rows.Err())
}
