package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"

	err := Run(context.Background(), cfg)
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestRun_ListenError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GRPCAddr = "256.0.0.1:bad"
	cfg.MetricsAddr = "127.0.0.1:0"

	require.Error(t, Run(context.Background(), cfg))
}

func TestBuildServices_WiresEverything(t *testing.T) {
	deps, err := initRuntimeDependencies(context.Background(), DefaultConfig(), testLogger())
	require.NoError(t, err)

	svcs := buildServices(deps, DefaultConfig(), newTestRegistry(), testLogger())
	require.NotNil(t, svcs.lifecycle)
	require.NotNil(t, svcs.recorder)
	require.NotNil(t, svcs.grpc)
	require.NotNil(t, svcs.statusSync)
	require.NotNil(t, svcs.idempotency)
	require.NotNil(t, svcs.cleanup)

	grpcServer, healthServer := newGRPCServer(svcs.grpc, newTestRegistry(), testLogger(), svcs.idempotency.Unary())
	require.NotNil(t, healthServer)
	require.Contains(t, grpcServer.GetServiceInfo(), "ordercore.v1.OrderLifecycleService")
	grpcServer.Stop()
}
