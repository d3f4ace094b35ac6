package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/siteledger/internal/ledger"
	"github.com/odyssey-erp/siteledger/internal/platform/db"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

// columns that cascade statements may filter on, per table.
var cascadeColumns = map[string]map[string]bool{
	tableClients:         {"id": true},
	tableVendors:         {"id": true},
	tableProjects:        {"id": true, "client_id": true},
	tableProjectVendors:  {"project_id": true, "vendor_id": true},
	tableLabor:           {"id": true},
	tableLaborPayments:   {"labor_id": true},
	tableProjectLedger:   {"project_id": true},
	tableVendorLedger:    {"vendor_id": true},
	tableExpenses:        {"project_id": true, "vendor_id": true},
	tablePayments:        {"project_id": true},
	tableInvoices:        {"vendor_id": true, "id": true},
	tableInvoiceItems:    {"invoice_id": true},
	tableInvoiceAdvances: {"invoice_id": true},
}

func checkTarget(table, column string) error {
	cols, ok := cascadeColumns[table]
	if !ok || !cols[column] {
		return fmt.Errorf("masterdata: %s.%s is not a cascade target", table, column)
	}
	return nil
}

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

func (t *txRepo) InsertClient(ctx context.Context, c Client) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO clients (name, phone) VALUES ($1, $2) RETURNING id`, c.Name, c.Phone).Scan(&id)
	return id, db.Classify(err)
}

func (t *txRepo) InsertVendor(ctx context.Context, v Vendor) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO vendors (name, phone, opening_balance) VALUES ($1, $2, $3) RETURNING id`,
		v.Name, v.Phone, v.OpeningBalance).Scan(&id)
	return id, db.Classify(err)
}

func (t *txRepo) InsertProject(ctx context.Context, p Project) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO projects (client_id, name, advance) VALUES ($1, $2, $3) RETURNING id`,
		p.ClientID, p.Name, p.Advance).Scan(&id)
	return id, db.Classify(err)
}

func (t *txRepo) InsertLabor(ctx context.Context, l Labor) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO labor (name, phone, salary) VALUES ($1, $2, $3) RETURNING id`,
		l.Name, l.Phone, l.Salary).Scan(&id)
	return id, db.Classify(err)
}

func (t *txRepo) LinkVendor(ctx context.Context, projectID, vendorID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `INSERT INTO project_vendors (project_id, vendor_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, projectID, vendorID)
	if err != nil {
		return false, db.Classify(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepo) UnlinkVendor(ctx context.Context, projectID, vendorID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM project_vendors WHERE project_id = $1 AND vendor_id = $2`, projectID, vendorID)
	if err != nil {
		return 0, db.Classify(err)
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) LockRow(ctx context.Context, table string, id int64) (bool, error) {
	if err := checkTarget(table, "id"); err != nil {
		return false, err
	}
	var got int64
	err := t.tx.QueryRow(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE id = $1 FOR UPDATE`, table), id).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, db.Classify(err)
	}
	return true, nil
}

func (t *txRepo) ChildIDs(ctx context.Context, table, column string, parentID int64) ([]int64, error) {
	if err := checkTarget(table, column); err != nil {
		return nil, err
	}
	rows, err := t.tx.Query(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE %s = $1 ORDER BY id FOR UPDATE`, table, column), parentID)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, db.Classify(err)
		}
		ids = append(ids, id)
	}
	return ids, db.Classify(rows.Err())
}

func (t *txRepo) DeleteRows(ctx context.Context, table, column string, ids []int64) (int64, error) {
	if err := checkTarget(table, column); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := t.tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = ANY($1)`, table, column), ids)
	if err != nil {
		return 0, db.Classify(err)
	}
	return tag.RowsAffected(), nil
}

func (r *PGRepository) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, phone, created_at FROM clients ORDER BY name, id`)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt); err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, c)
	}
	return out, db.Classify(rows.Err())
}

func (r *PGRepository) GetClient(ctx context.Context, id int64) (Client, error) {
	var c Client
	err := r.pool.QueryRow(ctx, `SELECT id, name, phone, created_at FROM clients WHERE id = $1`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Client{}, fmt.Errorf("%w: client %d", shared.ErrNotFound, id)
	}
	return c, db.Classify(err)
}

func (r *PGRepository) ListVendors(ctx context.Context) ([]Vendor, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, phone, opening_balance, created_at FROM vendors ORDER BY name, id`)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []Vendor
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.Phone, &v.OpeningBalance, &v.CreatedAt); err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, v)
	}
	return out, db.Classify(rows.Err())
}

func (r *PGRepository) GetVendor(ctx context.Context, id int64) (Vendor, error) {
	var v Vendor
	err := r.pool.QueryRow(ctx, `SELECT id, name, phone, opening_balance, created_at FROM vendors WHERE id = $1`, id).
		Scan(&v.ID, &v.Name, &v.Phone, &v.OpeningBalance, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Vendor{}, fmt.Errorf("%w: vendor %d", shared.ErrNotFound, id)
	}
	return v, db.Classify(err)
}

const projectColumns = `p.id, p.client_id, p.name, p.advance, p.created_at,
    COALESCE((SELECT array_agg(pv.vendor_id ORDER BY pv.vendor_id) FROM project_vendors pv WHERE pv.project_id = p.id), '{}')`

func (r *PGRepository) ListProjects(ctx context.Context, clientID int64) ([]Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects p`
	var args []any
	if clientID > 0 {
		query += ` WHERE p.client_id = $1`
		args = append(args, clientID)
	}
	query += ` ORDER BY p.created_at DESC, p.id DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.ClientID, &p.Name, &p.Advance, &p.CreatedAt, &p.VendorIDs); err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, p)
	}
	return out, db.Classify(rows.Err())
}

func (r *PGRepository) GetProject(ctx context.Context, id int64) (Project, error) {
	var p Project
	err := r.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id = $1`, id).
		Scan(&p.ID, &p.ClientID, &p.Name, &p.Advance, &p.CreatedAt, &p.VendorIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, fmt.Errorf("%w: project %d", shared.ErrNotFound, id)
	}
	return p, db.Classify(err)
}

func (r *PGRepository) ListLabor(ctx context.Context) ([]Labor, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, phone, salary, created_at FROM labor ORDER BY name, id`)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []Labor
	for rows.Next() {
		var l Labor
		if err := rows.Scan(&l.ID, &l.Name, &l.Phone, &l.Salary, &l.CreatedAt); err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, l)
	}
	return out, db.Classify(rows.Err())
}
