package grpcsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
	"github.com/vladislavdragonenkov/ordercore/internal/metrics"
)

const (
	// IdempotencyKeyHeader — ключ в metadata запроса.
	IdempotencyKeyHeader = "idempotency-key"

	// DefaultIdempotencyTTL — сколько живёт сохранённый ответ.
	DefaultIdempotencyTTL = 24 * time.Hour

	maxIdempotencyKeyLength = 128
)

// mutatingMethods — методы, которые меняют состояние и поэтому принимают ключ идемпотентности.
var mutatingMethods = map[string]struct{}{
	fullMethod("CreateOrder"):        {},
	fullMethod("CancelOrder"):        {},
	fullMethod("MarkOrderPaid"):      {},
	fullMethod("MarkOrderShipped"):   {},
	fullMethod("MarkOrderCompleted"): {},
	fullMethod("RefundOrderPayment"): {},
	fullMethod("ApplyDiscount"):      {},
	fullMethod("RemoveDiscount"):     {},
	fullMethod("AddItem"):            {},
	fullMethod("UpdateItem"):         {},
	fullMethod("LogStatusChange"):    {},
}

// IdempotencyInterceptor сохраняет результат изменяющих вызовов по ключу из metadata
// и повторяет его для запросов с тем же ключом. Без ключа вызов выполняется как обычно.
type IdempotencyInterceptor struct {
	repo    domain.IdempotencyRepository
	ttl     time.Duration
	logger  *log.Entry
	metrics *metrics.IdempotencyMetrics
	now     func() time.Time
}

// NewIdempotencyInterceptor создаёт интерсептор. ttl <= 0 означает DefaultIdempotencyTTL.
func NewIdempotencyInterceptor(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry, m *metrics.IdempotencyMetrics) *IdempotencyInterceptor {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	if logger == nil {
		logger = log.WithField("component", "grpc-idempotency")
	}
	return &IdempotencyInterceptor{
		repo:    repo,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Unary возвращает grpc.UnaryServerInterceptor.
func (i *IdempotencyInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if i.repo == nil {
			return handler(ctx, req)
		}
		if _, ok := mutatingMethods[info.FullMethod]; !ok {
			return handler(ctx, req)
		}

		key, err := readIdempotencyKey(ctx)
		if err != nil {
			return nil, err
		}
		if key == "" {
			return handler(ctx, req)
		}

		hash, err := requestHash(info.FullMethod, req)
		if err != nil {
			i.logger.WithError(err).WithField("method", info.FullMethod).Warn("failed to hash idempotent request")
			return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
		}

		record, err := i.repo.Begin(ctx, key, hash, i.now().Add(i.ttl))
		if err != nil {
			return i.replay(info.FullMethod, err, record)
		}

		resp, runErr := handler(ctx, req)
		// результат фиксируем даже если клиент уже отключился
		storeCtx := context.WithoutCancel(ctx)
		if runErr != nil {
			i.storeFailure(storeCtx, key, runErr)
			i.metrics.RecordRequest(info.FullMethod, "executed")
			return resp, runErr
		}

		body, err := json.Marshal(resp)
		if err == nil {
			err = i.repo.Complete(storeCtx, key, body)
		}
		if err != nil {
			i.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
		}
		i.metrics.RecordRequest(info.FullMethod, "executed")
		return resp, nil
	}
}

func (i *IdempotencyInterceptor) replay(method string, beginErr error, record domain.IdempotencyRecord) (any, error) {
	switch {
	case errors.Is(beginErr, domain.ErrIdempotencyHashMismatch):
		i.metrics.RecordRequest(method, "mismatch")
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case errors.Is(beginErr, domain.ErrIdempotencyKeyExists):
	default:
		i.logger.WithError(beginErr).WithField("method", method).Warn("failed to begin idempotent request")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	switch record.Status {
	case domain.IdempotencyStatusDone:
		if len(record.ResponseBody) == 0 {
			return nil, status.Error(codes.Internal, "idempotency cache is empty")
		}
		i.metrics.RecordRequest(method, "replayed")
		// Кодек сервиса JSON: сохранённые байты уходят клиенту без повторной сериализации.
		return json.RawMessage(record.ResponseBody), nil
	case domain.IdempotencyStatusProcessing:
		i.metrics.RecordRequest(method, "in_progress")
		return nil, status.Error(codes.Aborted, "request with the same idempotency key is already processing")
	case domain.IdempotencyStatusFailed:
		i.metrics.RecordRequest(method, "replayed")
		return nil, failureStatus(record)
	default:
		return nil, status.Error(codes.Internal, "unknown idempotency record status")
	}
}

func (i *IdempotencyInterceptor) storeFailure(ctx context.Context, key string, runErr error) {
	st := status.Convert(runErr)
	code := st.Code()
	if code == codes.OK {
		code = codes.Internal
	}
	if err := i.repo.Fail(ctx, key, int(code), st.Message()); err != nil {
		i.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent failure")
	}
}

func failureStatus(record domain.IdempotencyRecord) error {
	code := codes.Internal
	if record.ErrorCode > int(codes.OK) && record.ErrorCode <= int(codes.Unauthenticated) {
		code = codes.Code(uint32(record.ErrorCode)) //nolint:gosec // диапазон проверен выше
	}
	message := record.ErrorMessage
	if message == "" {
		message = "previous request with the same idempotency key failed"
	}
	return status.Error(code, message)
}

func readIdempotencyKey(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", nil
	}
	values := md.Get(IdempotencyKeyHeader)
	if len(values) == 0 {
		return "", nil
	}
	key := strings.TrimSpace(values[0])
	if len(key) > maxIdempotencyKeyLength {
		return "", status.Errorf(codes.InvalidArgument, "%s must be at most %d characters", IdempotencyKeyHeader, maxIdempotencyKeyLength)
	}
	return key, nil
}

func requestHash(method string, req any) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.New()
	sum.Write([]byte(method))
	sum.Write([]byte{0})
	sum.Write(payload)
	return hex.EncodeToString(sum.Sum(nil)), nil
}
