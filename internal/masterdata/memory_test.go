package masterdata

import (
	"context"
	"fmt"
	"sort"

	"github.com/odyssey-erp/siteledger/internal/ledger"
	"github.com/odyssey-erp/siteledger/internal/ledger/ledgertest"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

type foreignKey struct {
	child, column, parent string
}

var memForeignKeys = []foreignKey{
	{tableProjects, "client_id", tableClients},
	{tableProjectVendors, "project_id", tableProjects},
	{tableProjectVendors, "vendor_id", tableVendors},
	{tableLaborPayments, "labor_id", tableLabor},
	{tableExpenses, "project_id", tableProjects},
	{tableExpenses, "vendor_id", tableVendors},
	{tablePayments, "project_id", tableProjects},
	{tableInvoices, "vendor_id", tableVendors},
	{tableInvoiceItems, "invoice_id", tableInvoices},
	{tableInvoiceAdvances, "invoice_id", tableInvoices},
}

type memRow map[string]int64

// memRepo is an in-memory relational fake: rows carry only their key columns, and deleting a
// parent that is still referenced fails like a foreign key would.
type memRepo struct {
	ledger  *ledgertest.Store
	tables  map[string]map[int64]memRow
	nextID  int64
	clients map[int64]Client
	vendors map[int64]Vendor
	proj    map[int64]Project
	labor   map[int64]Labor
	failOn  map[string]error
}

func newMemRepo() *memRepo {
	return &memRepo{
		ledger:  ledgertest.New(),
		tables:  map[string]map[int64]memRow{},
		clients: map[int64]Client{},
		vendors: map[int64]Vendor{},
		proj:    map[int64]Project{},
		labor:   map[int64]Labor{},
		failOn:  map[string]error{},
	}
}

type memState struct {
	Tables  map[string]map[int64]memRow
	NextID  int64
	Clients map[int64]Client
	Vendors map[int64]Vendor
	Proj    map[int64]Project
	Labor   map[int64]Labor
	Ledger  map[string][]ledger.Entry
}

func (m *memRepo) state() memState {
	st := memState{
		Tables:  map[string]map[int64]memRow{},
		NextID:  m.nextID,
		Clients: map[int64]Client{},
		Vendors: map[int64]Vendor{},
		Proj:    map[int64]Project{},
		Labor:   map[int64]Labor{},
	}
	for table, rows := range m.tables {
		st.Tables[table] = map[int64]memRow{}
		for id, row := range rows {
			cp := memRow{}
			for k, v := range row {
				cp[k] = v
			}
			st.Tables[table][id] = cp
		}
	}
	for k, v := range m.clients {
		st.Clients[k] = v
	}
	for k, v := range m.vendors {
		st.Vendors[k] = v
	}
	for k, v := range m.proj {
		st.Proj[k] = v
	}
	for k, v := range m.labor {
		st.Labor[k] = v
	}
	return st
}

func (m *memRepo) restore(st memState) {
	m.tables = st.Tables
	m.nextID = st.NextID
	m.clients = st.Clients
	m.vendors = st.Vendors
	m.proj = st.Proj
	m.labor = st.Labor
}

// snapshot is the externally observable state including ledger rows.
func (m *memRepo) snapshot() memState {
	var st memState
	_ = m.ledger.Atomic(func(*ledgertest.Tx) error {
		st = m.state()
		return nil
	})
	st.Ledger = m.ledger.Dump()
	return st
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return m.ledger.Atomic(func(ltx *ledgertest.Tx) error {
		st := m.state()
		if err := fn(ctx, &memTx{repo: m, ltx: ltx}); err != nil {
			m.restore(st)
			return err
		}
		return nil
	})
}

// insert adds a raw row outside any transaction; used to build fixtures.
func (m *memRepo) insert(table string, cols memRow) int64 {
	var id int64
	_ = m.ledger.Atomic(func(*ledgertest.Tx) error {
		id = m.insertLocked(table, cols)
		return nil
	})
	return id
}

func (m *memRepo) insertLocked(table string, cols memRow) int64 {
	m.nextID++
	row := memRow{"id": m.nextID}
	for k, v := range cols {
		row[k] = v
	}
	if m.tables[table] == nil {
		m.tables[table] = map[int64]memRow{}
	}
	m.tables[table][m.nextID] = row
	return m.nextID
}

func (m *memRepo) count(table, column string, value int64) int {
	n := 0
	_ = m.ledger.Atomic(func(*ledgertest.Tx) error {
		for _, row := range m.tables[table] {
			if row[column] == value {
				n++
			}
		}
		return nil
	})
	return n
}

type memTx struct {
	repo *memRepo
	ltx  *ledgertest.Tx
}

func (t *memTx) Ledger() ledger.TxRepository { return t.ltx }

func (t *memTx) InsertClient(_ context.Context, c Client) (int64, error) {
	c.ID = t.repo.insertLocked(tableClients, nil)
	t.repo.clients[c.ID] = c
	return c.ID, nil
}

func (t *memTx) InsertVendor(_ context.Context, v Vendor) (int64, error) {
	v.ID = t.repo.insertLocked(tableVendors, nil)
	t.repo.vendors[v.ID] = v
	t.ltx.AddOwner(ledger.KindVendor, v.ID, v.Name, v.OpeningBalance)
	return v.ID, nil
}

func (t *memTx) InsertProject(_ context.Context, p Project) (int64, error) {
	if _, ok := t.repo.tables[tableClients][p.ClientID]; !ok {
		return 0, &shared.StoreError{Kind: shared.ErrPersistence, Code: "23503", Err: fmt.Errorf("client %d missing", p.ClientID)}
	}
	p.ID = t.repo.insertLocked(tableProjects, memRow{"client_id": p.ClientID})
	t.repo.proj[p.ID] = p
	t.ltx.AddOwner(ledger.KindProject, p.ID, p.Name, p.Advance)
	return p.ID, nil
}

func (t *memTx) InsertLabor(_ context.Context, l Labor) (int64, error) {
	l.ID = t.repo.insertLocked(tableLabor, nil)
	t.repo.labor[l.ID] = l
	return l.ID, nil
}

func (t *memTx) LinkVendor(_ context.Context, projectID, vendorID int64) (bool, error) {
	for _, row := range t.repo.tables[tableProjectVendors] {
		if row["project_id"] == projectID && row["vendor_id"] == vendorID {
			return false, nil
		}
	}
	t.repo.insertLocked(tableProjectVendors, memRow{"project_id": projectID, "vendor_id": vendorID})
	return true, nil
}

func (t *memTx) UnlinkVendor(_ context.Context, projectID, vendorID int64) (int64, error) {
	var n int64
	for id, row := range t.repo.tables[tableProjectVendors] {
		if row["project_id"] == projectID && row["vendor_id"] == vendorID {
			delete(t.repo.tables[tableProjectVendors], id)
			n++
		}
	}
	return n, nil
}

func (t *memTx) LockRow(_ context.Context, table string, id int64) (bool, error) {
	_, ok := t.repo.tables[table][id]
	return ok, nil
}

func (t *memTx) ChildIDs(_ context.Context, table, column string, parentID int64) ([]int64, error) {
	var ids []int64
	for id, row := range t.repo.tables[table] {
		if row[column] == parentID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (t *memTx) DeleteRows(_ context.Context, table, column string, ids []int64) (int64, error) {
	if err := t.repo.failOn[table]; err != nil {
		return 0, err
	}
	switch table {
	case tableVendorLedger, tableProjectLedger:
		kind := ledger.KindVendor
		if table == tableProjectLedger {
			kind = ledger.KindProject
		}
		var n int64
		for _, id := range ids {
			n += int64(t.ltx.DeleteEntries(kind, id))
		}
		return n, nil
	}

	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var doomed []int64
	for id, row := range t.repo.tables[table] {
		if want[row[column]] {
			doomed = append(doomed, id)
		}
	}
	for _, id := range doomed {
		for _, fk := range memForeignKeys {
			if fk.parent != table {
				continue
			}
			for _, child := range t.repo.tables[fk.child] {
				if child[fk.column] == id {
					return 0, &shared.StoreError{Kind: shared.ErrPersistence, Code: "23503", Err: fmt.Errorf("%s %d still referenced by %s", table, id, fk.child)}
				}
			}
		}
		switch table {
		case tableVendors:
			if _, err := t.ltx.DeleteOwner(ledger.KindVendor, id); err != nil {
				return 0, err
			}
		case tableProjects:
			if _, err := t.ltx.DeleteOwner(ledger.KindProject, id); err != nil {
				return 0, err
			}
		}
	}
	for _, id := range doomed {
		delete(t.repo.tables[table], id)
		switch table {
		case tableClients:
			delete(t.repo.clients, id)
		case tableVendors:
			delete(t.repo.vendors, id)
		case tableProjects:
			delete(t.repo.proj, id)
		case tableLabor:
			delete(t.repo.labor, id)
		}
	}
	return int64(len(doomed)), nil
}

func (m *memRepo) ListClients(context.Context) ([]Client, error) {
	var out []Client
	_ = m.ledger.Atomic(func(*ledgertest.Tx) error {
		for _, c := range m.clients {
			out = append(out, c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) GetClient(_ context.Context, id int64) (Client, error) {
	c, ok := m.clients[id]
	if !ok {
		return Client{}, fmt.Errorf("%w: client %d", shared.ErrNotFound, id)
	}
	return c, nil
}

func (m *memRepo) ListVendors(context.Context) ([]Vendor, error) {
	var out []Vendor
	for _, v := range m.vendors {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) GetVendor(_ context.Context, id int64) (Vendor, error) {
	v, ok := m.vendors[id]
	if !ok {
		return Vendor{}, fmt.Errorf("%w: vendor %d", shared.ErrNotFound, id)
	}
	return v, nil
}

func (m *memRepo) ListProjects(_ context.Context, clientID int64) ([]Project, error) {
	var out []Project
	for _, p := range m.proj {
		if clientID == 0 || p.ClientID == clientID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) GetProject(_ context.Context, id int64) (Project, error) {
	p, ok := m.proj[id]
	if !ok {
		return Project{}, fmt.Errorf("%w: project %d", shared.ErrNotFound, id)
	}
	return p, nil
}

func (m *memRepo) ListLabor(context.Context) ([]Labor, error) {
	var out []Labor
	for _, l := range m.labor {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ Repository = (*memRepo)(nil)
