package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/siteledger/internal/cashbook"
	"github.com/odyssey-erp/siteledger/internal/events"
	"github.com/odyssey-erp/siteledger/internal/invoices"
	"github.com/odyssey-erp/siteledger/internal/ledger"
	"github.com/odyssey-erp/siteledger/internal/masterdata"
	"github.com/odyssey-erp/siteledger/internal/observability"
	"github.com/odyssey-erp/siteledger/internal/platform/cache"
	"github.com/odyssey-erp/siteledger/internal/platform/db"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

// Infra holds the process-wide connections.
type Infra struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client
}

// OpenInfra connects to postgres and redis, applying migrations when configured.
func OpenInfra(ctx context.Context, cfg *Config, logger *slog.Logger) (*Infra, error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.MigrateOnStart {
		if err := db.Migrate(pool, "up", 0); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("migrations applied")
	}
	client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &Infra{Pool: pool, Redis: client}, nil
}

// Close releases the connections.
func (i *Infra) Close(logger *slog.Logger) {
	if i == nil {
		return
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if i.Pool != nil {
		i.Pool.Close()
	}
}

// Services is the assembled domain layer shared by the API and the worker.
type Services struct {
	Ledger      *ledger.Service
	MasterData  *masterdata.Service
	Invoices    *invoices.Service
	Cashbook    *cashbook.Service
	Idempotency *shared.IdempotencyStore
	Publisher   events.Publisher
}

// NewServices wires repositories, the ledger poster and the notification fanout.
// The dashboard cache sits in the fanout so ledger updates invalidate it.
func NewServices(infra *Infra, cfg *Config, logger *slog.Logger, metrics *observability.Metrics) *Services {
	dashboardCache := ledger.NewCache(infra.Redis, cfg.DashboardCacheTTL)
	publisher := events.Fanout{
		dashboardCache,
		events.NewRedisPublisher(infra.Redis, events.DefaultChannelPrefix, logger),
	}
	poster := ledger.NewPoster(metrics)
	idempotency := shared.NewIdempotencyStore(infra.Pool)

	return &Services{
		Ledger:      ledger.NewService(ledger.NewRepository(infra.Pool), poster, publisher, dashboardCache, logger),
		MasterData:  masterdata.NewService(masterdata.NewRepository(infra.Pool), poster, publisher, shared.NewAuditLogger(infra.Pool), logger),
		Invoices:    invoices.NewService(invoices.NewRepository(infra.Pool), poster, publisher, logger),
		Cashbook:    cashbook.NewService(cashbook.NewRepository(infra.Pool), poster, publisher, idempotency, logger),
		Idempotency: idempotency,
		Publisher:   publisher,
	}
}
