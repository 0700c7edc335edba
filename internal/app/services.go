package app

import (
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordercore/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/ordercore/internal/service/grpc"
	"github.com/vladislavdragonenkov/ordercore/internal/service/history"
	"github.com/vladislavdragonenkov/ordercore/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ordercore/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/ordercore/internal/service/pricing"
	"github.com/vladislavdragonenkov/ordercore/internal/service/statussync"
)

// services — прикладной слой поверх инфраструктуры.
type services struct {
	lifecycle  *lifecycle.Service
	recorder   *history.Recorder
	grpc       *grpcsvc.OrderService
	statusSync *statussync.Handler

	idempotency *grpcsvc.IdempotencyInterceptor
	cleanup     *idempotency.CleanupWorker
}

func buildServices(deps *runtimeDependencies, cfg Config, registerer prometheus.Registerer, logger *log.Entry) *services {
	lifecycleMetrics := metrics.NewLifecycleMetricsWithRegisterer(registerer)
	calc := pricing.NewCalculator(pricing.DefaultRules())

	lifecycleOpts := []lifecycle.Option{
		lifecycle.WithLogger(logger.WithField("component", "lifecycle")),
		lifecycle.WithMetrics(lifecycleMetrics),
		lifecycle.WithRetry(cfg.MutationMaxAttempts, cfg.MutationRetryDelay),
	}
	recorderOpts := []history.Option{
		history.WithLogger(logger.WithField("component", "history-recorder")),
		history.WithMetrics(lifecycleMetrics),
	}
	if deps.cache != nil {
		lifecycleOpts = append(lifecycleOpts, lifecycle.WithCache(deps.cache, cfg.CacheTTL))
		recorderOpts = append(recorderOpts, history.WithCache(deps.cache, cfg.CacheTTL))
	}

	lc := lifecycle.NewService(deps.store, calc, lifecycleOpts...)
	recorder := history.NewRecorder(deps.store, recorderOpts...)

	idemRepo := deps.store.Idempotency()
	idemMetrics := metrics.NewIdempotencyMetrics(registerer)

	return &services{
		lifecycle:  lc,
		recorder:   recorder,
		grpc:       grpcsvc.NewOrderService(lc, recorder, calc, logger.WithField("layer", "grpc")),
		statusSync: statussync.NewHandler(lc, logger.WithField("component", "payment-status-sync")),

		idempotency: grpcsvc.NewIdempotencyInterceptor(idemRepo, cfg.IdempotencyTTL,
			logger.WithField("component", "grpc-idempotency"), idemMetrics),
		cleanup: idempotency.NewCleanupWorker(idemRepo,
			idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
			idempotency.WithMetrics(idemMetrics),
			idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		),
	}
}
