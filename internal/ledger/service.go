package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/siteledger/internal/events"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

// DefaultRecentActivityLimit is used when callers pass a non-positive limit.
const DefaultRecentActivityLimit = 10

// Service is the ledger engine entry point for standalone appends and the balance aggregator.
type Service struct {
	repo      Repository
	poster    *Poster
	publisher events.Publisher
	cache     *Cache
	logger    *slog.Logger
	clock     func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, poster *Poster, publisher events.Publisher, cache *Cache, logger *slog.Logger) *Service {
	if poster == nil {
		poster = NewPoster(nil)
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		poster:    poster,
		publisher: publisher,
		cache:     cache,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Append writes one entry in its own transaction and announces it after commit.
func (s *Service) Append(ctx context.Context, posting Posting) (Entry, error) {
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.poster.Post(ctx, tx, posting)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	if err := s.publisher.Publish(ctx, Notification(entry)); err != nil {
		s.logger.Warn("ledger notification failed", slog.String("entity", string(entry.Entity)), slog.Int64("entity_id", entry.EntityID), slog.Any("error", err))
	}
	return entry, nil
}

// CurrentBalance returns the newest entry's balance, or the seed value for an empty ledger.
func (s *Service) CurrentBalance(ctx context.Context, entity EntityKind, id int64) (Balance, error) {
	if !entity.Valid() {
		return Balance{}, shared.NewValidationError("entity", "must be one of project vendor")
	}
	if id <= 0 {
		return Balance{}, shared.NewValidationError("id", "must be a positive integer")
	}
	return s.repo.CurrentBalance(ctx, entity, id)
}

// Balances lists every entity of a kind with its current balance.
func (s *Service) Balances(ctx context.Context, entity EntityKind) ([]Balance, error) {
	if !entity.Valid() {
		return nil, shared.NewValidationError("entity", "must be one of project vendor")
	}
	return s.repo.Balances(ctx, entity)
}

// TotalPayable sums current balances across all vendors.
func (s *Service) TotalPayable(ctx context.Context) (decimal.Decimal, error) {
	balances, err := s.repo.Balances(ctx, KindVendor)
	if err != nil {
		return decimal.Zero, err
	}
	return sumBalances(balances), nil
}

// TotalReceivable sums current balances across all projects.
func (s *Service) TotalReceivable(ctx context.Context) (decimal.Decimal, error) {
	balances, err := s.repo.Balances(ctx, KindProject)
	if err != nil {
		return decimal.Zero, err
	}
	return sumBalances(balances), nil
}

// RecentActivity merges both ledgers, most recent first.
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = DefaultRecentActivityLimit
	}
	return s.repo.RecentActivity(ctx, limit)
}

// Statement lists an entity's entries newest first. limit <= 0 returns all entries.
func (s *Service) Statement(ctx context.Context, entity EntityKind, id int64, limit int) ([]Entry, error) {
	if _, err := s.CurrentBalance(ctx, entity, id); err != nil {
		return nil, err
	}
	return s.repo.Statement(ctx, entity, id, limit)
}

// Verify checks one entity's ledger chain.
func (s *Service) Verify(ctx context.Context, entity EntityKind, id int64) ([]Violation, error) {
	if !entity.Valid() {
		return nil, shared.NewValidationError("entity", "must be one of project vendor")
	}
	owner, err := s.repo.Owner(ctx, entity, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.Entries(ctx, entity, id)
	if err != nil {
		return nil, err
	}
	return Verify(entity, id, owner.Seed, entries), nil
}

// VerifyReport summarises a full verification pass.
type VerifyReport struct {
	Checked    int         `json:"checked"`
	Violations []Violation `json:"violations"`
}

// VerifyAll checks every vendor and project ledger.
func (s *Service) VerifyAll(ctx context.Context) (VerifyReport, error) {
	var report VerifyReport
	for _, entity := range []EntityKind{KindVendor, KindProject} {
		ids, err := s.repo.OwnerIDs(ctx, entity)
		if err != nil {
			return report, fmt.Errorf("list %s ids: %w", entity, err)
		}
		for _, id := range ids {
			violations, err := s.Verify(ctx, entity, id)
			if err != nil {
				return report, fmt.Errorf("verify %s %d: %w", entity, id, err)
			}
			report.Checked++
			report.Violations = append(report.Violations, violations...)
		}
	}
	return report, nil
}

// Dashboard returns the overview, served from cache when it is current.
func (s *Service) Dashboard(ctx context.Context, activityLimit int) (Dashboard, error) {
	if activityLimit <= 0 {
		activityLimit = DefaultRecentActivityLimit
	}
	key, err := s.cache.BuildKey(ctx, "ledger", "dashboard", fmt.Sprint(activityLimit))
	if err != nil {
		s.logger.Warn("dashboard cache key", slog.Any("error", err))
		return s.buildDashboard(ctx, activityLimit)
	}
	var out Dashboard
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.buildDashboard(ctx, activityLimit)
	})
	if err != nil {
		return Dashboard{}, err
	}
	return out, nil
}

func (s *Service) buildDashboard(ctx context.Context, activityLimit int) (Dashboard, error) {
	now := s.clock()
	out := Dashboard{GeneratedAt: now}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.TotalPayable(gctx)
		out.TotalPayable = v
		return err
	})
	g.Go(func() error {
		v, err := s.TotalReceivable(gctx)
		out.TotalReceivable = v
		return err
	})
	g.Go(func() error {
		v, err := s.RecentActivity(gctx, activityLimit)
		out.RecentActivity = v
		return err
	})
	g.Go(func() error {
		yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		v, err := s.repo.DashboardCounts(gctx, yearStart)
		out.DashboardCounts = v
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return out, nil
}
