package invoices

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/siteledger/internal/ledger"
	"github.com/odyssey-erp/siteledger/internal/ledger/ledgertest"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

type memState struct {
	Invoices map[int64]Invoice
	Items    map[int64]Item
	Advances map[int64]Advance
	NextID   int64
}

func (s memState) clone() memState {
	out := memState{Invoices: map[int64]Invoice{}, Items: map[int64]Item{}, Advances: map[int64]Advance{}, NextID: s.NextID}
	for k, v := range s.Invoices {
		out.Invoices[k] = v
	}
	for k, v := range s.Items {
		out.Items[k] = v
	}
	for k, v := range s.Advances {
		out.Advances[k] = v
	}
	return out
}

// memRepo keeps invoices in memory and delegates vendor rows and ledgers to ledgertest.
type memRepo struct {
	ledger *ledgertest.Store
	state  memState
}

func newMemRepo() *memRepo {
	return &memRepo{ledger: ledgertest.New(), state: memState{}.clone()}
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

func (t *memTx) InsertInvoice(_ context.Context, inv Invoice) (int64, error) {
	if !t.ltx.HasOwner(ledger.KindVendor, inv.VendorID) {
		return 0, &shared.StoreError{Kind: shared.ErrPersistence, Code: "23503", Err: fmt.Errorf("vendor %d missing", inv.VendorID)}
	}
	inv.ID = t.next()
	t.repo.state.Invoices[inv.ID] = inv
	return inv.ID, nil
}

func (t *memTx) InvoiceVendor(_ context.Context, id int64) (int64, error) {
	inv, ok := t.repo.state.Invoices[id]
	if !ok {
		return 0, fmt.Errorf("%w: invoice %d", shared.ErrNotFound, id)
	}
	return inv.VendorID, nil
}

func (t *memTx) LockInvoice(_ context.Context, id int64) (Invoice, error) {
	inv, ok := t.repo.state.Invoices[id]
	if !ok {
		return Invoice{}, fmt.Errorf("%w: invoice %d", shared.ErrNotFound, id)
	}
	return inv, nil
}

func (t *memTx) InsertItem(_ context.Context, item Item) (int64, error) {
	item.ID = t.next()
	t.repo.state.Items[item.ID] = item
	return item.ID, nil
}

func (t *memTx) ItemInvoice(_ context.Context, itemID int64) (int64, error) {
	item, ok := t.repo.state.Items[itemID]
	if !ok {
		return 0, fmt.Errorf("%w: invoice item %d", shared.ErrNotFound, itemID)
	}
	return item.InvoiceID, nil
}

func (t *memTx) DeleteItem(_ context.Context, itemID int64) (int64, error) {
	if _, ok := t.repo.state.Items[itemID]; !ok {
		return 0, nil
	}
	delete(t.repo.state.Items, itemID)
	return 1, nil
}

func (t *memTx) RecomputeSubtotal(_ context.Context, invoiceID int64) (decimal.Decimal, error) {
	inv, ok := t.repo.state.Invoices[invoiceID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: invoice %d", shared.ErrNotFound, invoiceID)
	}
	sum := decimal.Zero
	for _, it := range t.repo.state.Items {
		if it.InvoiceID == invoiceID {
			sum = sum.Add(it.Total)
		}
	}
	inv.Subtotal = sum
	t.repo.state.Invoices[invoiceID] = inv
	return sum, nil
}

func (t *memTx) InsertAdvance(_ context.Context, adv Advance) (int64, error) {
	adv.ID = t.next()
	t.repo.state.Advances[adv.ID] = adv
	return adv.ID, nil
}

func (t *memTx) SumAdvances(_ context.Context, invoiceID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, a := range t.repo.state.Advances {
		if a.InvoiceID == invoiceID {
			sum = sum.Add(a.Amount)
		}
	}
	return sum, nil
}

func (t *memTx) MarkFinalized(_ context.Context, inv Invoice) (int64, error) {
	cur, ok := t.repo.state.Invoices[inv.ID]
	if !ok || cur.Status != StatusDraft {
		return 0, nil
	}
	cur.Status = StatusFinalized
	cur.Number = inv.Number
	cur.TotalAmount = inv.TotalAmount
	cur.AdvancePaid = inv.AdvancePaid
	cur.Balance = inv.Balance
	cur.FinalizedAt = inv.FinalizedAt
	t.repo.state.Invoices[inv.ID] = cur
	return 1, nil
}

func (m *memRepo) Get(_ context.Context, id int64) (Invoice, error) {
	st := m.snapshot()
	inv, ok := st.Invoices[id]
	if !ok {
		return Invoice{}, fmt.Errorf("%w: invoice %d", shared.ErrNotFound, id)
	}
	return inv, nil
}

func (m *memRepo) Items(_ context.Context, invoiceID int64) ([]Item, error) {
	var out []Item
	for _, it := range m.snapshot().Items {
		if it.InvoiceID == invoiceID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) Advances(_ context.Context, invoiceID int64) ([]Advance, error) {
	var out []Advance
	for _, a := range m.snapshot().Advances {
		if a.InvoiceID == invoiceID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) List(_ context.Context, filter ListFilter) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.snapshot().Invoices {
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if filter.VendorID > 0 && inv.VendorID != filter.VendorID {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memRepo) Pending(_ context.Context, limit int) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.snapshot().Invoices {
		if inv.Status == StatusFinalized && inv.Balance.IsPositive() {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].InvoiceDate.Equal(out[j].InvoiceDate) {
			return out[i].InvoiceDate.Before(out[j].InvoiceDate)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Repository = (*memRepo)(nil)
