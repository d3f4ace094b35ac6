package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/siteledger/internal/platform/db"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

// TxRepository is the ledger's view of an open transaction.
type TxRepository interface {
	// LockOwner loads the owning entity and holds a row lock until the transaction ends.
	LockOwner(ctx context.Context, entity EntityKind, id int64) (Owner, error)
	LastEntry(ctx context.Context, entity EntityKind, id int64) (Entry, bool, error)
	InsertEntry(ctx context.Context, entry Entry) (int64, error)
}

// Repository exposes ledger persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Owner(ctx context.Context, entity EntityKind, id int64) (Owner, error)
	CurrentBalance(ctx context.Context, entity EntityKind, id int64) (Balance, error)
	Balances(ctx context.Context, entity EntityKind) ([]Balance, error)
	Entries(ctx context.Context, entity EntityKind, id int64) ([]Entry, error)
	Statement(ctx context.Context, entity EntityKind, id int64, limit int) ([]Entry, error)
	RecentActivity(ctx context.Context, limit int) ([]Activity, error)
	OwnerIDs(ctx context.Context, entity EntityKind) ([]int64, error)
	DashboardCounts(ctx context.Context, yearStart time.Time) (DashboardCounts, error)
}

type tableSet struct {
	owner  string
	ledger string
	fk     string
	seed   string
}

var tables = map[EntityKind]tableSet{
	KindProject: {owner: "projects", ledger: "project_ledger", fk: "project_id", seed: "advance"},
	KindVendor:  {owner: "vendors", ledger: "vendor_ledger", fk: "vendor_id", seed: "opening_balance"},
}

func tablesFor(entity EntityKind) (tableSet, error) {
	t, ok := tables[entity]
	if !ok {
		return tableSet{}, shared.NewValidationError("entity", "must be one of project vendor")
	}
	return t, nil
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the postgres repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// WithTx runs fn inside a READ COMMITTED transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository exposes ledger statements on a transaction owned by another package.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

func (r *txRepo) LockOwner(ctx context.Context, entity EntityKind, id int64) (Owner, error) {
	t, err := tablesFor(entity)
	if err != nil {
		return Owner{}, err
	}
	owner := Owner{Entity: entity, ID: id}
	query := fmt.Sprintf(`SELECT name, %s FROM %s WHERE id = $1 FOR UPDATE`, t.seed, t.owner)
	if err := r.tx.QueryRow(ctx, query, id).Scan(&owner.Name, &owner.Seed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Owner{}, fmt.Errorf("%w: %s %d", shared.ErrNotFound, entity, id)
		}
		return Owner{}, db.Classify(err)
	}
	return owner, nil
}

func (r *txRepo) LastEntry(ctx context.Context, entity EntityKind, id int64) (Entry, bool, error) {
	t, err := tablesFor(entity)
	if err != nil {
		return Entry{}, false, err
	}
	query := fmt.Sprintf(`SELECT id, seq, entry_at, kind, description, debit, credit, balance
FROM %s WHERE %s = $1
ORDER BY entry_at DESC, seq DESC
LIMIT 1`, t.ledger, t.fk)
	entry := Entry{Entity: entity, EntityID: id}
	err = r.tx.QueryRow(ctx, query, id).Scan(&entry.ID, &entry.Seq, &entry.At, &entry.Kind, &entry.Description, &entry.Debit, &entry.Credit, &entry.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, db.Classify(err)
	}
	return entry, true, nil
}

func (r *txRepo) InsertEntry(ctx context.Context, entry Entry) (int64, error) {
	t, err := tablesFor(entry.Entity)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s, seq, entry_at, kind, description, debit, credit, balance)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`, t.ledger, t.fk)
	var id int64
	if err := r.tx.QueryRow(ctx, query, entry.EntityID, entry.Seq, entry.At, entry.Kind, entry.Description, entry.Debit, entry.Credit, entry.Balance).Scan(&id); err != nil {
		return 0, db.Classify(err)
	}
	return id, nil
}

func (r *PGRepository) Owner(ctx context.Context, entity EntityKind, id int64) (Owner, error) {
	t, err := tablesFor(entity)
	if err != nil {
		return Owner{}, err
	}
	owner := Owner{Entity: entity, ID: id}
	query := fmt.Sprintf(`SELECT name, %s FROM %s WHERE id = $1`, t.seed, t.owner)
	if err := r.pool.QueryRow(ctx, query, id).Scan(&owner.Name, &owner.Seed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Owner{}, fmt.Errorf("%w: %s %d", shared.ErrNotFound, entity, id)
		}
		return Owner{}, db.Classify(err)
	}
	return owner, nil
}

// latestBalanceSQL selects every owner with the balance of its newest entry, falling back to the seed.
const latestBalanceSQL = `SELECT o.id, o.name, COALESCE(l.balance, o.%[3]s), l.balance IS NOT NULL
FROM %[1]s o
LEFT JOIN LATERAL (
    SELECT balance FROM %[2]s WHERE %[4]s = o.id ORDER BY entry_at DESC, seq DESC LIMIT 1
) l ON TRUE`

func (r *PGRepository) CurrentBalance(ctx context.Context, entity EntityKind, id int64) (Balance, error) {
	t, err := tablesFor(entity)
	if err != nil {
		return Balance{}, err
	}
	query := fmt.Sprintf(latestBalanceSQL, t.owner, t.ledger, t.seed, t.fk) + ` WHERE o.id = $1`
	bal := Balance{Entity: entity}
	if err := r.pool.QueryRow(ctx, query, id).Scan(&bal.EntityID, &bal.Name, &bal.Balance, &bal.Seeded); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, fmt.Errorf("%w: %s %d", shared.ErrNotFound, entity, id)
		}
		return Balance{}, db.Classify(err)
	}
	return bal, nil
}

func (r *PGRepository) Balances(ctx context.Context, entity EntityKind) ([]Balance, error) {
	t, err := tablesFor(entity)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(latestBalanceSQL, t.owner, t.ledger, t.seed, t.fk) + ` ORDER BY o.id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []Balance
	for rows.Next() {
		bal := Balance{Entity: entity}
		if err := rows.Scan(&bal.EntityID, &bal.Name, &bal.Balance, &bal.Seeded); err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, bal)
	}
	return out, db.Classify(rows.Err())
}

func (r *PGRepository) Entries(ctx context.Context, entity EntityKind, id int64) ([]Entry, error) {
	return r.listEntries(ctx, entity, id, "ASC", 0)
}

func (r *PGRepository) Statement(ctx context.Context, entity EntityKind, id int64, limit int) ([]Entry, error) {
	return r.listEntries(ctx, entity, id, "DESC", limit)
}

func (r *PGRepository) listEntries(ctx context.Context, entity EntityKind, id int64, order string, limit int) ([]Entry, error) {
	t, err := tablesFor(entity)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, seq, entry_at, kind, description, debit, credit, balance
FROM %s WHERE %s = $1
ORDER BY entry_at %s, seq %s`, t.ledger, t.fk, order, order)
	args := []any{id}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e := Entry{Entity: entity, EntityID: id}
		if err := rows.Scan(&e.ID, &e.Seq, &e.At, &e.Kind, &e.Description, &e.Debit, &e.Credit, &e.Balance); err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, e)
	}
	return out, db.Classify(rows.Err())
}

func (r *PGRepository) RecentActivity(ctx context.Context, limit int) ([]Activity, error) {
	const query = `SELECT 'project' AS origin, pl.project_id, p.name, pl.id, pl.seq, pl.entry_at, pl.kind, pl.description, pl.debit, pl.credit, pl.balance
FROM project_ledger pl JOIN projects p ON p.id = pl.project_id
UNION ALL
SELECT 'vendor' AS origin, vl.vendor_id, v.name, vl.id, vl.seq, vl.entry_at, vl.kind, vl.description, vl.debit, vl.credit, vl.balance
FROM vendor_ledger vl JOIN vendors v ON v.id = vl.vendor_id
ORDER BY entry_at DESC, seq DESC, origin
LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.Origin, &a.EntityID, &a.EntityName, &a.EntryID, &a.Seq, &a.At, &a.Kind, &a.Desc, &a.Debit, &a.Credit, &a.Balance); err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, a)
	}
	return out, db.Classify(rows.Err())
}

func (r *PGRepository) OwnerIDs(ctx context.Context, entity EntityKind) ([]int64, error) {
	t, err := tablesFor(entity)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT id FROM %s ORDER BY id`, t.owner))
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

func (r *PGRepository) DashboardCounts(ctx context.Context, yearStart time.Time) (DashboardCounts, error) {
	var counts DashboardCounts
	err := r.pool.QueryRow(ctx, `SELECT
    (SELECT COUNT(*) FROM vendor_invoices WHERE status = 'FINALIZED' AND balance > 0),
    (SELECT COUNT(DISTINCT project_id) FROM project_ledger WHERE entry_at >= $1)`, yearStart).Scan(&counts.PendingInvoices, &counts.ActiveProjectsInYear)
	if err != nil {
		return DashboardCounts{}, db.Classify(err)
	}
	return counts, nil
}

// sumBalances adds up balances; the zero value is returned for an empty slice.
func sumBalances(balances []Balance) decimal.Decimal {
	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b.Balance)
	}
	return total
}
