package ledger_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/siteledger/internal/events"
	"github.com/odyssey-erp/siteledger/internal/ledger"
	"github.com/odyssey-erp/siteledger/internal/ledger/ledgertest"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newTestService(t *testing.T) (*ledger.Service, *ledgertest.Store, *events.Recorder) {
	t.Helper()
	store := ledgertest.New()
	rec := &events.Recorder{}
	svc := ledger.NewService(store, ledger.NewPoster(nil), rec, nil, nil)
	return svc, store, rec
}

func TestProjectScenarioAdvanceExpensePayment(t *testing.T) {
	ctx := context.Background()
	svc, store, rec := newTestService(t)
	store.AddOwner(ledger.KindProject, 1, "Villa", d("2000"))

	seed, err := svc.Append(ctx, ledger.SeedPosting(ledger.KindProject, 1, d("2000")))
	require.NoError(t, err)
	require.True(t, seed.Balance.Equal(d("2000")))
	require.True(t, seed.Credit.Equal(d("2000")))

	expense, err := svc.Append(ctx, ledger.Posting{Entity: ledger.KindProject, EntityID: 1, Kind: ledger.EntryStandard, Description: "Expense", Debit: d("300")})
	require.NoError(t, err)
	require.True(t, expense.Debit.Equal(d("300")))
	require.True(t, expense.Credit.IsZero())
	require.True(t, expense.Balance.Equal(d("1700")))

	payment, err := svc.Append(ctx, ledger.Posting{Entity: ledger.KindProject, EntityID: 1, Kind: ledger.EntryStandard, Description: "Payment Received", Credit: d("500")})
	require.NoError(t, err)
	require.True(t, payment.Balance.Equal(d("2200")))
	require.Equal(t, []int64{1, 2, 3}, []int64{seed.Seq, expense.Seq, payment.Seq})

	bal, err := svc.CurrentBalance(ctx, ledger.KindProject, 1)
	require.NoError(t, err)
	require.True(t, bal.Balance.Equal(d("2200")))

	violations, err := svc.Verify(ctx, ledger.KindProject, 1)
	require.NoError(t, err)
	require.Empty(t, violations)
	require.Len(t, rec.Sent(), 3)
	require.Equal(t, "project-1/project-ledger-updated", rec.Events()[2])
}

func TestVendorScenarioOpeningBalanceAndSettlement(t *testing.T) {
	ctx := context.Background()
	svc, store, rec := newTestService(t)
	store.AddOwner(ledger.KindVendor, 4, "Cement Co", d("-500"))

	seed, err := svc.Append(ctx, ledger.SeedPosting(ledger.KindVendor, 4, d("-500")))
	require.NoError(t, err)
	require.Equal(t, ledger.EntryOpening, seed.Kind)
	require.True(t, seed.Debit.Equal(d("500")))
	require.True(t, seed.Balance.Equal(d("-500")))

	settled, err := svc.Append(ctx, ledger.Posting{Entity: ledger.KindVendor, EntityID: 4, Kind: ledger.EntrySettlement, Description: "Invoice INV-7-1", Debit: d("1000"), Credit: d("200")})
	require.NoError(t, err)
	require.True(t, settled.Debit.Equal(d("1000")))
	require.True(t, settled.Credit.Equal(d("200")))
	require.True(t, settled.Balance.Equal(d("300")))
	require.Equal(t, "vendor-4/vendor-ledger-updated", rec.Events()[1])

	violations, err := svc.Verify(ctx, ledger.KindVendor, 4)
	require.NoError(t, err)
	require.Empty(t, violations)
}

func TestConcurrentAppendsAreSerialized(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	store.AddOwner(ledger.KindProject, 9, "Tower", d("2000"))
	_, err := svc.Append(ctx, ledger.SeedPosting(ledger.KindProject, 9, d("2000")))
	require.NoError(t, err)

	const workers = 64
	rng := rand.New(rand.NewSource(7))
	postings := make([]ledger.Posting, workers)
	expected := d("2000")
	for i := range postings {
		amount := decimal.New(int64(rng.Intn(100000)+1), -2)
		p := ledger.Posting{Entity: ledger.KindProject, EntityID: 9, Kind: ledger.EntryStandard, Description: "op"}
		if i%2 == 0 {
			p.Debit = amount
			expected = expected.Sub(amount)
		} else {
			p.Credit = amount
			expected = expected.Add(amount)
		}
		postings[i] = p
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for _, p := range postings {
		wg.Add(1)
		go func(p ledger.Posting) {
			defer wg.Done()
			_, err := svc.Append(ctx, p)
			errs <- err
		}(p)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	bal, err := svc.CurrentBalance(ctx, ledger.KindProject, 9)
	require.NoError(t, err)
	require.True(t, expected.Equal(bal.Balance), "want %s got %s", expected, bal.Balance)

	entries := store.EntriesOf(ledger.KindProject, 9)
	require.Len(t, entries, workers+1)
	seen := map[int64]bool{}
	for _, e := range entries {
		require.False(t, seen[e.Seq], "duplicate seq %d", e.Seq)
		seen[e.Seq] = true
	}
	violations, err := svc.Verify(ctx, ledger.KindProject, 9)
	require.NoError(t, err)
	require.Empty(t, violations)
}

func TestExpenseAndPaymentOrderIndependent(t *testing.T) {
	ctx := context.Background()
	expense := ledger.Posting{Entity: ledger.KindProject, EntityID: 1, Kind: ledger.EntryStandard, Description: "Expense", Debit: d("300")}
	payment := ledger.Posting{Entity: ledger.KindProject, EntityID: 1, Kind: ledger.EntryStandard, Description: "Payment", Credit: d("500")}
	for _, order := range [][]ledger.Posting{{expense, payment}, {payment, expense}} {
		svc, store, _ := newTestService(t)
		store.AddOwner(ledger.KindProject, 1, "P", d("2000"))
		_, err := svc.Append(ctx, ledger.SeedPosting(ledger.KindProject, 1, d("2000")))
		require.NoError(t, err)
		for _, p := range order {
			_, err := svc.Append(ctx, p)
			require.NoError(t, err)
		}
		bal, err := svc.CurrentBalance(ctx, ledger.KindProject, 1)
		require.NoError(t, err)
		require.True(t, bal.Balance.Equal(d("2200")))
	}
}

func TestAppendValidatesBeforeStoreAccess(t *testing.T) {
	ctx := context.Background()
	svc, _, rec := newTestService(t)

	cases := []ledger.Posting{
		{Entity: ledger.KindProject, EntityID: 1, Kind: ledger.EntryStandard, Description: "neg", Debit: d("-1")},
		{Entity: ledger.KindProject, EntityID: 1, Kind: ledger.EntryStandard, Description: "zero"},
		{Entity: ledger.KindProject, EntityID: 1, Kind: ledger.EntryStandard, Description: "both", Debit: d("1"), Credit: d("1")},
		{Entity: "client", EntityID: 1, Kind: ledger.EntryStandard, Description: "kind", Debit: d("1")},
		{Entity: ledger.KindVendor, EntityID: 0, Kind: ledger.EntryStandard, Description: "id", Debit: d("1")},
		{Entity: ledger.KindVendor, EntityID: 1, Kind: ledger.EntryStandard, Debit: d("1")},
	}
	for _, p := range cases {
		_, err := svc.Append(ctx, p)
		require.ErrorIs(t, err, shared.ErrValidation, p.Description)
	}
	require.Empty(t, rec.Sent())
}

func TestAppendUnknownEntityIsNotFound(t *testing.T) {
	svc, store, _ := newTestService(t)
	_, err := svc.Append(context.Background(), ledger.Posting{Entity: ledger.KindVendor, EntityID: 42, Kind: ledger.EntryStandard, Description: "x", Debit: d("1")})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, store.EntriesOf(ledger.KindVendor, 42))
}

func TestAppendWithoutSeedEntryStartsFromSeedValue(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	store.AddOwner(ledger.KindVendor, 2, "Legacy", d("750"))

	bal, err := svc.CurrentBalance(ctx, ledger.KindVendor, 2)
	require.NoError(t, err)
	require.True(t, bal.Balance.Equal(d("750")))
	require.False(t, bal.Seeded)

	entry, err := svc.Append(ctx, ledger.Posting{Entity: ledger.KindVendor, EntityID: 2, Kind: ledger.EntryStandard, Description: "Payment", Debit: d("50")})
	require.NoError(t, err)
	require.Equal(t, int64(1), entry.Seq)
	require.True(t, entry.Balance.Equal(d("700")))
}

func TestSeedTwiceIsInvalidState(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	store.AddOwner(ledger.KindVendor, 3, "V", d("10"))
	_, err := svc.Append(ctx, ledger.SeedPosting(ledger.KindVendor, 3, d("10")))
	require.NoError(t, err)
	_, err = svc.Append(ctx, ledger.SeedPosting(ledger.KindVendor, 3, d("10")))
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Len(t, store.EntriesOf(ledger.KindVendor, 3), 1)
}

func TestClockSkewKeepsOrdering(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	store.AddOwner(ledger.KindProject, 1, "P", decimal.Zero)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	poster := ledger.NewPoster(nil).WithClock(func() time.Time { return clock })
	svc := ledger.NewService(store, poster, nil, nil, nil)

	first, err := svc.Append(ctx, ledger.Posting{Entity: ledger.KindProject, EntityID: 1, Kind: ledger.EntryStandard, Description: "a", Credit: d("1")})
	require.NoError(t, err)
	clock = now.Add(-time.Hour)
	second, err := svc.Append(ctx, ledger.Posting{Entity: ledger.KindProject, EntityID: 1, Kind: ledger.EntryStandard, Description: "b", Credit: d("2")})
	require.NoError(t, err)

	require.False(t, second.At.Before(first.At))
	require.Greater(t, second.Seq, first.Seq)
	bal, err := svc.CurrentBalance(ctx, ledger.KindProject, 1)
	require.NoError(t, err)
	require.True(t, bal.Balance.Equal(d("3")))
}

func TestInsertFailureLeavesNoPartialWrite(t *testing.T) {
	ctx := context.Background()
	svc, store, rec := newTestService(t)
	store.AddOwner(ledger.KindProject, 1, "P", d("100"))
	store.FailInsertAfter = 1
	store.FailErr = &shared.StoreError{Kind: shared.ErrPersistence, Err: errors.New("disk full")}

	_, err := svc.Append(ctx, ledger.Posting{Entity: ledger.KindProject, EntityID: 1, Kind: ledger.EntryStandard, Description: "x", Credit: d("1")})
	require.ErrorIs(t, err, shared.ErrPersistence)
	require.Empty(t, store.EntriesOf(ledger.KindProject, 1))
	require.Empty(t, rec.Sent())
}

type countingMetrics struct {
	mu     sync.Mutex
	ok     int
	failed int
}

func (m *countingMetrics) ObservePosting(_ ledger.EntityKind, _ ledger.EntryKind, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.failed++
		return
	}
	m.ok++
}

func TestPosterReportsMetrics(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	store.AddOwner(ledger.KindVendor, 1, "V", decimal.Zero)
	metrics := &countingMetrics{}
	svc := ledger.NewService(store, ledger.NewPoster(metrics), nil, nil, nil)

	_, err := svc.Append(ctx, ledger.Posting{Entity: ledger.KindVendor, EntityID: 1, Kind: ledger.EntryStandard, Description: "x", Credit: d("1")})
	require.NoError(t, err)
	_, err = svc.Append(ctx, ledger.Posting{Entity: ledger.KindVendor, EntityID: 2, Kind: ledger.EntryStandard, Description: "x", Credit: d("1")})
	require.Error(t, err)
	require.Equal(t, 1, metrics.ok)
	require.Equal(t, 1, metrics.failed)
}
