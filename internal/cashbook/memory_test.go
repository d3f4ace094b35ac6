package cashbook

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/odyssey-erp/siteledger/internal/ledger"
	"github.com/odyssey-erp/siteledger/internal/ledger/ledgertest"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

type memState struct {
	Expenses      map[int64]Expense
	Payments      map[int64]Payment
	LaborPayments map[int64]LaborPayment
	NextID        int64
}

func (s memState) clone() memState {
	out := memState{
		Expenses:      map[int64]Expense{},
		Payments:      map[int64]Payment{},
		LaborPayments: map[int64]LaborPayment{},
		NextID:        s.NextID,
	}
	for k, v := range s.Expenses {
		out.Expenses[k] = v
	}
	for k, v := range s.Payments {
		out.Payments[k] = v
	}
	for k, v := range s.LaborPayments {
		out.LaborPayments[k] = v
	}
	return out
}

// memRepo keeps cashbook rows in memory; projects and vendors live in the ledgertest store.
type memRepo struct {
	ledger *ledgertest.Store
	labor  map[int64]string
	state  memState
}

func newMemRepo() *memRepo {
	return &memRepo{ledger: ledgertest.New(), labor: map[int64]string{}, state: memState{}.clone()}
}

func (m *memRepo) snapshot() memState {
	var st memState
	_ = m.ledger.Atomic(func(*ledgertest.Tx) error {
		st = m.state.clone()
		return nil
	})
	return st
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return m.ledger.Atomic(func(ltx *ledgertest.Tx) error {
		saved := m.state.clone()
		if err := fn(ctx, &memTx{repo: m, ltx: ltx}); err != nil {
			m.state = saved
			return err
		}
		return nil
	})
}

type memTx struct {
	repo *memRepo
	ltx  *ledgertest.Tx
}

func (t *memTx) next() int64 {
	t.repo.state.NextID++
	return t.repo.state.NextID
}

func (t *memTx) Ledger() ledger.TxRepository { return t.ltx }

func (t *memTx) InsertExpense(_ context.Context, e Expense) (int64, error) {
	entity, id := e.Target()
	if !t.ltx.HasOwner(entity, id) {
		return 0, &shared.StoreError{Kind: shared.ErrPersistence, Code: "23503", Err: fmt.Errorf("%s %d missing", entity, id)}
	}
	e.ID = t.next()
	t.repo.state.Expenses[e.ID] = e
	return e.ID, nil
}

func (t *memTx) GetExpense(_ context.Context, id int64) (Expense, error) {
	e, ok := t.repo.state.Expenses[id]
	if !ok {
		return Expense{}, fmt.Errorf("%w: expense %d", shared.ErrNotFound, id)
	}
	return e, nil
}

func (t *memTx) DeleteExpense(_ context.Context, id int64) (int64, error) {
	if _, ok := t.repo.state.Expenses[id]; !ok {
		return 0, nil
	}
	delete(t.repo.state.Expenses, id)
	return 1, nil
}

func (t *memTx) InsertPayment(_ context.Context, p Payment) (int64, error) {
	p.ID = t.next()
	t.repo.state.Payments[p.ID] = p
	return p.ID, nil
}

func (t *memTx) GetPayment(_ context.Context, id int64) (Payment, error) {
	p, ok := t.repo.state.Payments[id]
	if !ok {
		return Payment{}, fmt.Errorf("%w: payment %d", shared.ErrNotFound, id)
	}
	return p, nil
}

func (t *memTx) DeletePayment(_ context.Context, id int64) (int64, error) {
	if _, ok := t.repo.state.Payments[id]; !ok {
		return 0, nil
	}
	delete(t.repo.state.Payments, id)
	return 1, nil
}

func (t *memTx) LockLabor(_ context.Context, id int64) (string, error) {
	name, ok := t.repo.labor[id]
	if !ok {
		return "", fmt.Errorf("%w: labor %d", shared.ErrNotFound, id)
	}
	return name, nil
}

func (t *memTx) InsertLaborPayment(_ context.Context, p LaborPayment) (int64, error) {
	p.ID = t.next()
	t.repo.state.LaborPayments[p.ID] = p
	return p.ID, nil
}

func (m *memRepo) ListExpenses(_ context.Context, filter ExpenseFilter) ([]Expense, error) {
	var out []Expense
	for _, e := range m.snapshot().Expenses {
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.ProjectID > 0 && e.ProjectID != filter.ProjectID {
			continue
		}
		if filter.VendorID > 0 && e.VendorID != filter.VendorID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memRepo) ListPayments(_ context.Context, projectID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range m.snapshot().Payments {
		if projectID == 0 || p.ProjectID == projectID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memRepo) ListLaborPayments(_ context.Context, laborID int64) ([]LaborPayment, error) {
	var out []LaborPayment
	for _, p := range m.snapshot().LaborPayments {
		if laborID == 0 || p.LaborID == laborID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

type memDedup struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (d *memDedup) Claim(_ context.Context, key, scope string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.keys == nil {
		d.keys = map[string]bool{}
	}
	if d.keys[scope+"/"+key] {
		return shared.ErrDuplicateRequest
	}
	d.keys[scope+"/"+key] = true
	return nil
}

func (d *memDedup) Release(_ context.Context, key, scope string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.keys, scope+"/"+key)
	return nil
}

var (
	_ Repository   = (*memRepo)(nil)
	_ Deduplicator = (*memDedup)(nil)
	_ Deduplicator = (*shared.IdempotencyStore)(nil)
)
