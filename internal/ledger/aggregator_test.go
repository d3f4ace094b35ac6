package ledger_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/siteledger/internal/events"
	"github.com/odyssey-erp/siteledger/internal/ledger"
	"github.com/odyssey-erp/siteledger/internal/ledger/ledgertest"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

func seedBooks(t *testing.T, svc *ledger.Service, store *ledgertest.Store) {
	t.Helper()
	ctx := context.Background()
	store.AddOwner(ledger.KindVendor, 1, "Steel", d("-500"))
	store.AddOwner(ledger.KindVendor, 2, "Sand", d("120"))
	store.AddOwner(ledger.KindProject, 1, "Villa", d("2000"))
	store.AddOwner(ledger.KindProject, 2, "Shop", d("300"))

	_, err := svc.Append(ctx, ledger.SeedPosting(ledger.KindVendor, 1, d("-500")))
	require.NoError(t, err)
	_, err = svc.Append(ctx, ledger.SeedPosting(ledger.KindProject, 1, d("2000")))
	require.NoError(t, err)
	_, err = svc.Append(ctx, ledger.Posting{Entity: ledger.KindVendor, EntityID: 1, Kind: ledger.EntrySettlement, Description: "Invoice", Debit: d("1000"), Credit: d("200")})
	require.NoError(t, err)
	_, err = svc.Append(ctx, ledger.Posting{Entity: ledger.KindProject, EntityID: 1, Kind: ledger.EntryStandard, Description: "Expense", Debit: d("300")})
	require.NoError(t, err)
}

func TestTotalsUseSeedFallback(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	seedBooks(t, svc, store)

	payable, err := svc.TotalPayable(ctx)
	require.NoError(t, err)
	// vendor 1 ledger at 300, vendor 2 has no entries and falls back to 120
	require.True(t, payable.Equal(d("420")), payable.String())

	receivable, err := svc.TotalReceivable(ctx)
	require.NoError(t, err)
	require.True(t, receivable.Equal(d("2000")), receivable.String())

	balances, err := svc.Balances(ctx, ledger.KindVendor)
	require.NoError(t, err)
	require.Len(t, balances, 2)
	require.True(t, balances[0].Seeded)
	require.False(t, balances[1].Seeded)
}

func TestRecentActivityNewestFirstAndTagged(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	seedBooks(t, svc, store)

	activity, err := svc.RecentActivity(ctx, 3)
	require.NoError(t, err)
	require.Len(t, activity, 3)
	require.Equal(t, ledger.KindProject, activity[0].Origin)
	require.Equal(t, "Expense", activity[0].Desc)
	require.Equal(t, ledger.KindVendor, activity[1].Origin)
	require.Equal(t, "Villa", activity[0].EntityName)
	for i := 1; i < len(activity); i++ {
		require.False(t, activity[i].At.After(activity[i-1].At))
	}

	all, err := svc.RecentActivity(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
}

func TestStatementNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	seedBooks(t, svc, store)

	stmt, err := svc.Statement(ctx, ledger.KindVendor, 1, 0)
	require.NoError(t, err)
	require.Len(t, stmt, 2)
	require.Equal(t, int64(2), stmt[0].Seq)

	_, err = svc.Statement(ctx, ledger.KindVendor, 99, 0)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCurrentBalanceValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CurrentBalance(context.Background(), "client", 1)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.CurrentBalance(context.Background(), ledger.KindProject, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestVerifyAllFindsCorruption(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)
	seedBooks(t, svc, store)

	report, err := svc.VerifyAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, report.Checked)
	require.Empty(t, report.Violations)

	store.Corrupt(ledger.KindProject, 1, 2, d("1800"))
	report, err = svc.VerifyAll(ctx)
	require.NoError(t, err)
	require.Len(t, report.Violations, 1)
	v := report.Violations[0]
	require.Equal(t, ledger.KindProject, v.Entity)
	require.Equal(t, int64(2), v.Seq)
	require.True(t, v.Expected.Equal(d("1700")))
}

func TestVerifyDetectsSequenceRegression(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []ledger.Entry{
		{Seq: 1, At: base, Kind: ledger.EntryAdvance, Credit: d("10"), Balance: d("10")},
		{Seq: 1, At: base, Kind: ledger.EntryStandard, Debit: d("4"), Balance: d("6")},
	}
	violations := ledger.Verify(ledger.KindProject, 1, d("10"), entries)
	require.Len(t, violations, 1)
	require.Contains(t, violations[0].Reason, "sequence")
}

func TestDashboardCachedUntilBumped(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := ledgertest.New()
	cache := ledger.NewCache(client, time.Minute)
	rec := &events.Recorder{}
	svc := ledger.NewService(store, ledger.NewPoster(nil), rec, cache, nil)
	seedBooks(t, svc, store)
	store.PendingInvoices = 2

	first, err := svc.Dashboard(ctx, 5)
	require.NoError(t, err)
	require.True(t, first.TotalPayable.Equal(d("420")))
	require.True(t, first.TotalReceivable.Equal(d("2000")))
	require.Equal(t, 2, first.PendingInvoices)
	require.Equal(t, 1, first.ActiveProjectsInYear)
	require.Len(t, first.RecentActivity, 4)

	// Direct write bypassing notifications: cached view stays.
	_, err = ledger.NewService(store, nil, nil, nil, nil).Append(ctx, ledger.Posting{Entity: ledger.KindProject, EntityID: 1, Kind: ledger.EntryStandard, Description: "Payment", Credit: d("500")})
	require.NoError(t, err)
	cached, err := svc.Dashboard(ctx, 5)
	require.NoError(t, err)
	require.True(t, cached.TotalReceivable.Equal(d("2000")))

	require.NoError(t, cache.Publish(ctx, events.New(events.ProjectTopic(1), events.ProjectLedgerUpdated, nil)))
	fresh, err := svc.Dashboard(ctx, 5)
	require.NoError(t, err)
	require.True(t, fresh.TotalReceivable.Equal(d("2500")))
}

func TestActiveProjectsCountLedgerActivityThisYear(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := ledgertest.New()
	lastYear := time.Now().UTC().AddDate(-1, 0, 0)
	past := ledger.NewService(store, ledger.NewPoster(nil).WithClock(func() time.Time { return lastYear }), nil, nil, nil)
	svc := ledger.NewService(store, nil, nil, ledger.NewCache(client, time.Minute), nil)

	store.AddOwner(ledger.KindProject, 1, "Villa", d("2000"))
	store.AddOwner(ledger.KindProject, 2, "Shop", d("300"))
	store.AddOwner(ledger.KindProject, 3, "Idle", d("50"))
	_, err := past.Append(ctx, ledger.SeedPosting(ledger.KindProject, 1, d("2000")))
	require.NoError(t, err)
	_, err = past.Append(ctx, ledger.SeedPosting(ledger.KindProject, 2, d("300")))
	require.NoError(t, err)
	_, err = svc.Append(ctx, ledger.Posting{Entity: ledger.KindProject, EntityID: 1, Kind: ledger.EntryStandard, Description: "Expense", Debit: d("10")})
	require.NoError(t, err)

	dash, err := svc.Dashboard(ctx, 5)
	require.NoError(t, err)
	// Project 2 only has last year's entries and project 3 has none.
	require.Equal(t, 1, dash.ActiveProjectsInYear)
}

func TestCacheIgnoresLaborEvents(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := ledger.NewCache(client, time.Minute)

	v1, err := cache.Version(ctx)
	require.NoError(t, err)
	require.NoError(t, cache.Publish(ctx, events.New(events.TopicLabor, events.LaborPaymentRecorded, nil)))
	v2, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, v1, v2)

	require.NoError(t, cache.Publish(ctx, events.New(events.InvoiceTopic(3), events.InvoiceUpdated, nil)))
	v3, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, v1+1, v3)
}

func TestCacheWithoutClientCallsLoader(t *testing.T) {
	cache := ledger.NewCache(nil, time.Minute)
	var out map[string]int
	calls := 0
	for i := 0; i < 2; i++ {
		err := cache.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
			calls++
			return map[string]int{"n": calls}, nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, 2, calls)
	require.Equal(t, 2, out["n"])
}
