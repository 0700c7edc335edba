// Package app собирает сервис жизненного цикла заказов: хранилище, кэш, gRPC, HTTP, outbox и Kafka.
package app

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthcheck "github.com/vladislavdragonenkov/ordercore/internal/health"
	grpcsvc "github.com/vladislavdragonenkov/ordercore/internal/service/grpc"
	"github.com/vladislavdragonenkov/ordercore/internal/version"
)

const gracefulStopTimeout = 5 * time.Second

// Run запускает сервис и блокируется до отмены ctx или ошибки gRPC-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close(logger)

	registerer := prometheus.DefaultRegisterer
	svcs := buildServices(deps, cfg, registerer, logger)

	// Kafka необязательна: без неё события копятся в outbox.
	kafkaProducer, _ := initKafkaProducer(cfg.Brokers(), logger)
	defer closeKafka(kafkaProducer, logger)

	workerCtx, stopWorker := context.WithCancel(ctx)
	var workerWG sync.WaitGroup
	worker := newOutboxWorker(deps.store.Outbox(), kafkaProducer, cfg, registerer, logger)
	workerWG.Add(2)
	go func() {
		defer workerWG.Done()
		worker.Run(workerCtx)
	}()
	go func() {
		defer workerWG.Done()
		svcs.cleanup.Run(workerCtx)
	}()
	defer func() {
		stopWorker()
		workerWG.Wait()
	}()

	consumer, err := startPaymentConsumer(ctx, cfg, svcs.statusSync.MessageHandler(), kafkaProducer, logger)
	if err != nil {
		logger.WithError(err).Warn("failed to start payment consumer, continuing without it")
	}
	defer stopConsumer(consumer, logger)

	grpcServer, healthServer := newGRPCServer(svcs.grpc, registerer, logger, svcs.idempotency.Unary())

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	for name, checker := range deps.checkers {
		healthHandler.RegisterChecker(name, checker)
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, newHTTPRouter(healthHandler, svcs.recorder, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stoppedCh := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stoppedCh)
		}()
		select {
		case <-stoppedCh:
		case <-time.After(gracefulStopTimeout):
			logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
			grpcServer.Stop()
		}
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// newGRPCServer создаёт сервер с prometheus-интерсепторами, сервисом заказов и grpc health.
// Дополнительные интерсепторы выполняются после метрик.
func newGRPCServer(
	orders grpcsvc.OrderLifecycleServer,
	registerer prometheus.Registerer,
	logger *log.Entry,
	interceptors ...grpc.UnaryServerInterceptor,
) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := registerer.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	chain := append([]grpc.UnaryServerInterceptor{grpcMetrics.UnaryServerInterceptor()}, interceptors...)
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(chain...))
	grpcsvc.RegisterOrderLifecycleServer(grpcServer, orders)
	grpcMetrics.InitializeMetrics(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return grpcServer, healthServer
}
