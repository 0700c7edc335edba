package grpcsvc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
	"github.com/vladislavdragonenkov/ordercore/internal/storage/memory"
)

func TestIdempotencyInterceptor_InProgress(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	interceptor := NewIdempotencyInterceptor(repo, time.Hour, nil, nil).Unary()
	req := &CancelOrderRequest{OrderID: "o-1", ChangedBy: "support"}
	method := fullMethod("CancelOrder")

	hash, err := requestHash(method, req)
	require.NoError(t, err)
	_, err = repo.Begin(context.Background(), "cancel-1", hash, time.Now().Add(time.Hour))
	require.NoError(t, err)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(IdempotencyKeyHeader, "cancel-1"))
	called := false
	_, err = interceptor(ctx, req, &grpc.UnaryServerInfo{FullMethod: method}, func(context.Context, any) (any, error) {
		called = true
		return &OrderResponse{}, nil
	})
	require.Equal(t, codes.Aborted, status.Code(err))
	require.False(t, called)
}

func TestIdempotencyInterceptor_RepositoryError(t *testing.T) {
	interceptor := NewIdempotencyInterceptor(failingIdempotencyRepo{}, time.Hour, nil, nil).Unary()
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(IdempotencyKeyHeader, "k"))

	_, err := interceptor(ctx, &CancelOrderRequest{}, &grpc.UnaryServerInfo{FullMethod: fullMethod("CancelOrder")},
		func(context.Context, any) (any, error) { return &OrderResponse{}, nil })
	require.Equal(t, codes.Internal, status.Code(err))
}

func TestIdempotencyInterceptor_StoresRawResponse(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	interceptor := NewIdempotencyInterceptor(repo, time.Hour, nil, nil).Unary()
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(IdempotencyKeyHeader, "apply-1"))
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod("ApplyDiscount")}
	req := &ApplyDiscountRequest{OrderID: "o-1", Type: "fixed", Amount: "5", ChangedBy: "ops"}

	calls := 0
	handler := func(context.Context, any) (any, error) {
		calls++
		return &OrderResponse{Order: &Order{ID: "o-1", Status: "pending"}}, nil
	}

	first, err := interceptor(ctx, req, info, handler)
	require.NoError(t, err)
	require.IsType(t, &OrderResponse{}, first)

	second, err := interceptor(ctx, req, info, handler)
	require.NoError(t, err)
	raw, ok := second.(json.RawMessage)
	require.True(t, ok, "replay must be raw JSON, got %T", second)

	var replayed OrderResponse
	require.NoError(t, json.Unmarshal(raw, &replayed))
	require.Equal(t, "o-1", replayed.Order.ID)
	require.Equal(t, "pending", replayed.Order.Status)
	require.Equal(t, 1, calls)
}

func TestFailureStatus(t *testing.T) {
	err := failureStatus(domain.IdempotencyRecord{ErrorCode: int(codes.FailedPrecondition), ErrorMessage: "bad"})
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	err = failureStatus(domain.IdempotencyRecord{ErrorCode: 999})
	require.Equal(t, codes.Internal, status.Code(err))
}

type failingIdempotencyRepo struct{}

func (failingIdempotencyRepo) Begin(context.Context, string, string, time.Time) (domain.IdempotencyRecord, error) {
	return domain.IdempotencyRecord{}, errors.New("db down")
}

func (failingIdempotencyRepo) Complete(context.Context, string, []byte) error { return nil }

func (failingIdempotencyRepo) Fail(context.Context, string, int, string) error { return nil }

func (failingIdempotencyRepo) DeleteExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}
