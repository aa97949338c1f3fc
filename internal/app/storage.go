package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/giftkart/internal/domain/auth"
	"github.com/xenking/giftkart/internal/domain/order"
	"github.com/xenking/giftkart/internal/notify"
	"github.com/xenking/giftkart/internal/repository"
	"github.com/xenking/giftkart/internal/repository/memory"
	"github.com/xenking/giftkart/internal/seed"
	"github.com/xenking/giftkart/pkg/health"
)

type storage struct {
	deps    order.Deps
	apikeys auth.Repository
	// pinger is nil for the in-memory backend.
	pinger health.Pinger
	close  func()
}

func openStorage(ctx context.Context, lg *zap.Logger, cfg *Config) (*storage, error) {
	switch cfg.Storage {
	case StorageMemory:
		return openMemory(ctx, lg, cfg)
	case StoragePostgres:
		return openPostgres(ctx, cfg)
	default:
		return nil, errors.Errorf("unknown storage %q", cfg.Storage)
	}
}

func openPostgres(ctx context.Context, cfg *Config) (*storage, error) {
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := repository.RunMigrations(pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	return &storage{
		deps: order.Deps{
			Store:    repository.NewStore(pool),
			Orders:   repository.NewOrderRepository(pool),
			Carts:    repository.NewCartRepository(pool),
			Products: repository.NewProductRepository(pool),
			Coupons:  repository.NewCouponRepository(pool),
		},
		apikeys: repository.NewAPIKeyRepository(pool),
		pinger:  pool,
		close:   pool.Close,
	}, nil
}

// openMemory builds a process-local store, seeded from cfg.SeedFile when
// set. Everything is lost on restart.
func openMemory(ctx context.Context, lg *zap.Logger, cfg *Config) (*storage, error) {
	store := memory.New()
	if cfg.SeedFile != "" {
		data, err := seed.Load(cfg.SeedFile)
		if err != nil {
			return nil, errors.Wrap(err, "load seed file")
		}
		if err := seed.Apply(ctx, lg.Named("seed"), seed.NewMemorySink(store), data, []byte(cfg.APIKeyPepper)); err != nil {
			return nil, errors.Wrap(err, "seed memory store")
		}
	} else {
		lg.Warn("Memory storage without a seed file: no products or API keys")
	}

	return &storage{
		deps: order.Deps{
			Store:    store,
			Orders:   store.Orders(),
			Carts:    store.Carts(),
			Products: store.Products(),
			Coupons:  store.Coupons(),
		},
		apikeys: store.APIKeys(),
		close:   func() {},
	}, nil
}

func newPublisher(lg *zap.Logger, cfg NotifyConfig) (notify.Publisher, error) {
	switch cfg.Driver {
	case NotifyKafka:
		return notify.NewKafkaPublisher(cfg.Brokers, cfg.Topic), nil
	case NotifyAMQP:
		return notify.NewAMQPPublisher(cfg.AMQPURL, cfg.Queue)
	case NotifyLog:
		return notify.NewLogPublisher(lg.Named("events")), nil
	default:
		return nil, errors.Errorf("unknown notify driver %q", cfg.Driver)
	}
}
