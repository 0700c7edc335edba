package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordercore/internal/cache"
	"github.com/vladislavdragonenkov/ordercore/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/ordercore/internal/health"
	"github.com/vladislavdragonenkov/ordercore/internal/storage/memory"
	"github.com/vladislavdragonenkov/ordercore/internal/storage/postgres"
)

// Storage — хранилище, общее для memory и postgres.
type Storage interface {
	domain.TxManager
	Orders() domain.OrderRepository
	History() domain.StatusHistoryRepository
	Outbox() domain.OutboxRepository
	Idempotency() domain.IdempotencyRepository
}

// runtimeDependencies содержит инфраструктуру, которую нужно закрыть при остановке.
type runtimeDependencies struct {
	store    Storage
	cache    domain.Cache
	checkers map[string]healthcheck.Checker
	closers  []func() error
}

// initRuntimeDependencies поднимает хранилище и кэш согласно конфигурации.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{checkers: make(map[string]healthcheck.Checker)}

	if err := deps.initStorage(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if err := deps.initCache(ctx, cfg, logger); err != nil {
		deps.Close(logger)
		return nil, err
	}
	deps.checkers["outbox"] = healthcheck.NewOutboxChecker(deps.store.Outbox(), cfg.OutboxStaleAfter)
	return deps, nil
}

func (d *runtimeDependencies) initStorage(ctx context.Context, cfg Config, logger *log.Entry) error {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		d.store = memory.NewStore()
		logger.Info("using in-memory storage")
		return nil
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("postgres storage requires a DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return fmt.Errorf("apply migrations: %w", err)
			}
		}
		d.store = store
		d.checkers["postgres"] = healthcheck.NewPingChecker("postgres", store)
		d.closers = append(d.closers, store.Close)
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres storage")
		return nil
	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func (d *runtimeDependencies) initCache(ctx context.Context, cfg Config, logger *log.Entry) error {
	switch cfg.CacheDriver {
	case CacheDriverNone:
		d.cache = nil
	case CacheDriverMemory, "":
		d.cache = cache.NewMemory()
	case CacheDriverRedis:
		redisCache, err := cache.NewRedisFromAddr(ctx, cfg.RedisAddr)
		if err != nil {
			// Кэш необязателен: без него сервис работает напрямую с хранилищем.
			logger.WithError(err).WithField("addr", cfg.RedisAddr).Warn("redis unavailable, continuing without cache")
			d.cache = nil
			return nil
		}
		d.cache = redisCache
		d.checkers["redis"] = healthcheck.NewOptionalPingChecker("redis", redisCache)
		d.closers = append(d.closers, redisCache.Close)
	default:
		return fmt.Errorf("unsupported cache driver %q", cfg.CacheDriver)
	}
	logger.WithField("cache", cfg.CacheDriver).Info("cache initialized")
	return nil
}

// Close освобождает ресурсы в обратном порядке.
func (d *runtimeDependencies) Close(logger *log.Entry) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.WithError(err).Warn("failed to close dependency")
		}
	}
	d.closers = nil
}
