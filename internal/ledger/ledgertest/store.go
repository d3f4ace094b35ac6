// Package ledgertest provides an in-memory ledger store for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/siteledger/internal/ledger"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

type key struct {
	entity ledger.EntityKind
	id     int64
}

type owner struct {
	ledger.Owner
}

// Store implements ledger.Repository in memory. Transactions are fully serialized.
type Store struct {
	mu      sync.Mutex
	owners  map[key]owner
	entries map[key][]ledger.Entry
	nextID  int64

	// FailInsertAfter makes the n-th InsertEntry (1-based) fail with FailErr; 0 disables it.
	FailInsertAfter int
	FailErr         error
	inserts         int

	// PendingInvoices is returned by DashboardCounts.
	PendingInvoices int
}

// New constructs an empty store.
func New() *Store {
	return &Store{owners: map[key]owner{}, entries: map[key][]ledger.Entry{}}
}

// AddOwner registers a vendor or project with its seed value.
func (s *Store) AddOwner(entity ledger.EntityKind, id int64, name string, seed decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addOwnerLocked(entity, id, name, seed)
}

func (s *Store) addOwnerLocked(entity ledger.EntityKind, id int64, name string, seed decimal.Decimal) {
	s.owners[key{entity, id}] = owner{
		Owner: ledger.Owner{Entity: entity, ID: id, Name: name, Seed: seed},
	}
}

// EntriesOf returns a copy of an entity's entries in ascending order.
func (s *Store) EntriesOf(entity ledger.EntityKind, id int64) []ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Entry(nil), s.entries[key{entity, id}]...)
}

// HasOwner reports whether the entity exists.
func (s *Store) HasOwner(entity ledger.EntityKind, id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.owners[key{entity, id}]
	return ok
}

type snapshot struct {
	owners  map[key]owner
	entries map[key][]ledger.Entry
	nextID  int64
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{owners: make(map[key]owner, len(s.owners)), entries: make(map[key][]ledger.Entry, len(s.entries)), nextID: s.nextID}
	for k, v := range s.owners {
		snap.owners[k] = v
	}
	for k, v := range s.entries {
		snap.entries[k] = append([]ledger.Entry(nil), v...)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.owners = snap.owners
	s.entries = snap.entries
	s.nextID = snap.nextID
}

// Atomic runs fn with exclusive access to the store; when fn fails the store is restored.
func (s *Store) Atomic(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	if err := fn(&Tx{store: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// WithTx implements ledger.Repository.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	return s.Atomic(func(tx *Tx) error { return fn(ctx, tx) })
}

// Tx is the transactional view handed out by Atomic. It must not be used after Atomic returns.
type Tx struct {
	store *Store
}

// LockOwner implements ledger.TxRepository.
func (t *Tx) LockOwner(_ context.Context, entity ledger.EntityKind, id int64) (ledger.Owner, error) {
	o, ok := t.store.owners[key{entity, id}]
	if !ok {
		return ledger.Owner{}, fmt.Errorf("%w: %s %d", shared.ErrNotFound, entity, id)
	}
	return o.Owner, nil
}

// LastEntry implements ledger.TxRepository.
func (t *Tx) LastEntry(_ context.Context, entity ledger.EntityKind, id int64) (ledger.Entry, bool, error) {
	list := t.store.entries[key{entity, id}]
	if len(list) == 0 {
		return ledger.Entry{}, false, nil
	}
	return latest(list), true, nil
}

// InsertEntry implements ledger.TxRepository.
func (t *Tx) InsertEntry(_ context.Context, entry ledger.Entry) (int64, error) {
	s := t.store
	s.inserts++
	if s.FailInsertAfter > 0 && s.inserts == s.FailInsertAfter {
		return 0, s.FailErr
	}
	k := key{entry.Entity, entry.EntityID}
	for _, e := range s.entries[k] {
		if e.Seq == entry.Seq {
			return 0, &shared.StoreError{Kind: shared.ErrPersistence, Code: "23505", Err: fmt.Errorf("duplicate seq %d", entry.Seq)}
		}
	}
	s.nextID++
	entry.ID = s.nextID
	s.entries[k] = append(s.entries[k], entry)
	return entry.ID, nil
}

// AddOwner registers an entity inside the transaction.
func (t *Tx) AddOwner(entity ledger.EntityKind, id int64, name string, seed decimal.Decimal) {
	t.store.addOwnerLocked(entity, id, name, seed)
}

// HasOwner reports whether the entity exists inside the transaction.
func (t *Tx) HasOwner(entity ledger.EntityKind, id int64) bool {
	_, ok := t.store.owners[key{entity, id}]
	return ok
}

// DeleteEntries removes an entity's ledger and returns the row count.
func (t *Tx) DeleteEntries(entity ledger.EntityKind, id int64) int {
	k := key{entity, id}
	n := len(t.store.entries[k])
	delete(t.store.entries, k)
	return n
}

// DeleteOwner removes the entity row and reports whether it existed. Like the foreign key on the
// ledger tables, it refuses while ledger rows remain.
func (t *Tx) DeleteOwner(entity ledger.EntityKind, id int64) (bool, error) {
	k := key{entity, id}
	if _, ok := t.store.owners[k]; !ok {
		return false, nil
	}
	if len(t.store.entries[k]) > 0 {
		return false, &shared.StoreError{Kind: shared.ErrPersistence, Code: "23503", Err: fmt.Errorf("%s %d still referenced by ledger rows", entity, id)}
	}
	delete(t.store.owners, k)
	return true, nil
}

// HasEntries reports whether the entity has ledger rows inside the transaction.
func (t *Tx) HasEntries(entity ledger.EntityKind, id int64) bool {
	return len(t.store.entries[key{entity, id}]) > 0
}

// Dump returns a deep copy of every ledger row keyed by "entity/id", for before/after comparisons.
func (s *Store) Dump() map[string][]ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]ledger.Entry, len(s.entries))
	for k, v := range s.entries {
		out[fmt.Sprintf("%s/%d", k.entity, k.id)] = append([]ledger.Entry(nil), v...)
	}
	return out
}

func latest(list []ledger.Entry) ledger.Entry {
	best := list[0]
	for _, e := range list[1:] {
		if e.At.After(best.At) || (e.At.Equal(best.At) && e.Seq > best.Seq) {
			best = e
		}
	}
	return best
}

// Owner implements ledger.Repository.
func (s *Store) Owner(_ context.Context, entity ledger.EntityKind, id int64) (ledger.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.owners[key{entity, id}]
	if !ok {
		return ledger.Owner{}, fmt.Errorf("%w: %s %d", shared.ErrNotFound, entity, id)
	}
	return o.Owner, nil
}

// CurrentBalance implements ledger.Repository.
func (s *Store) CurrentBalance(_ context.Context, entity ledger.EntityKind, id int64) (ledger.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.owners[key{entity, id}]
	if !ok {
		return ledger.Balance{}, fmt.Errorf("%w: %s %d", shared.ErrNotFound, entity, id)
	}
	return s.balanceLocked(o), nil
}

func (s *Store) balanceLocked(o owner) ledger.Balance {
	bal := ledger.Balance{Entity: o.Entity, EntityID: o.ID, Name: o.Name, Balance: o.Seed}
	if list := s.entries[key{o.Entity, o.ID}]; len(list) > 0 {
		bal.Balance = latest(list).Balance
		bal.Seeded = true
	}
	return bal
}

// Balances implements ledger.Repository.
func (s *Store) Balances(_ context.Context, entity ledger.EntityKind) ([]ledger.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Balance
	for k, o := range s.owners {
		if k.entity == entity {
			out = append(out, s.balanceLocked(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

// Entries implements ledger.Repository.
func (s *Store) Entries(_ context.Context, entity ledger.EntityKind, id int64) ([]ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]ledger.Entry(nil), s.entries[key{entity, id}]...)
	sort.SliceStable(out, func(i, j int) bool { return before(out[i], out[j]) })
	return out, nil
}

// Statement implements ledger.Repository.
func (s *Store) Statement(ctx context.Context, entity ledger.EntityKind, id int64, limit int) ([]ledger.Entry, error) {
	asc, _ := s.Entries(ctx, entity, id)
	out := make([]ledger.Entry, 0, len(asc))
	for i := len(asc) - 1; i >= 0; i-- {
		out = append(out, asc[i])
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecentActivity implements ledger.Repository.
func (s *Store) RecentActivity(_ context.Context, limit int) ([]ledger.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Activity
	for k, list := range s.entries {
		name := s.owners[k].Name
		for _, e := range list {
			out = append(out, ledger.Activity{
				Origin: e.Entity, EntityID: e.EntityID, EntityName: name, EntryID: e.ID, Seq: e.Seq,
				At: e.At, Kind: e.Kind, Desc: e.Description, Debit: e.Debit, Credit: e.Credit, Balance: e.Balance,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.After(out[j].At)
		}
		return out[i].EntryID > out[j].EntryID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// OwnerIDs implements ledger.Repository.
func (s *Store) OwnerIDs(_ context.Context, entity ledger.EntityKind) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for k := range s.owners {
		if k.entity == entity {
			ids = append(ids, k.id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// DashboardCounts implements ledger.Repository.
func (s *Store) DashboardCounts(_ context.Context, yearStart time.Time) (ledger.DashboardCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := ledger.DashboardCounts{PendingInvoices: s.PendingInvoices}
	for k, list := range s.entries {
		if k.entity != ledger.KindProject {
			continue
		}
		for _, e := range list {
			if !e.At.Before(yearStart) {
				counts.ActiveProjectsInYear++
				break
			}
		}
	}
	return counts, nil
}

// Corrupt overwrites the balance of an entry in place, for verifier tests.
func (s *Store) Corrupt(entity ledger.EntityKind, id, seq int64, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.entries[key{entity, id}]
	for i := range list {
		if list[i].Seq == seq {
			list[i].Balance = balance
		}
	}
}

func before(a, b ledger.Entry) bool {
	if !a.At.Equal(b.At) {
		return a.At.Before(b.At)
	}
	return a.Seq < b.Seq
}

var _ ledger.Repository = (*Store)(nil)
var _ ledger.TxRepository = (*Tx)(nil)
