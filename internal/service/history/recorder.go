// Package history ведёт append-only журнал изменений статусов заказа и строит его таймлайн.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
	"github.com/vladislavdragonenkov/ordercore/internal/metrics"
)

const defaultCacheTTL = 5 * time.Minute

// Store — то, что нужно журналу от хранилища.
type Store interface {
	domain.TxManager
	Orders() domain.OrderRepository
	History() domain.StatusHistoryRepository
}

// LogInput описывает одно изменение статуса.
type LogInput struct {
	OrderID   string
	Field     domain.StatusField
	OldStatus string
	NewStatus string
	Actor     domain.Actor
	Note      string
}

// Option настраивает Recorder.
type Option func(*Recorder)

// WithCache включает read-through кэш таймлайна.
func WithCache(cache domain.Cache, ttl time.Duration) Option {
	return func(r *Recorder) {
		r.cache = cache
		if ttl > 0 {
			r.cacheTTL = ttl
		}
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.LifecycleMetrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// Recorder записывает изменения статусов и отдаёт таймлайн заказа.
type Recorder struct {
	store    Store
	cache    domain.Cache
	cacheTTL time.Duration
	metrics  *metrics.LifecycleMetrics
	logger   *log.Entry
	now      func() time.Time
}

// NewRecorder создаёт Recorder поверх хранилища.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:    store,
		cacheTTL: defaultCacheTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.WithField("component", "history-recorder")
	}
	return r
}

// NewEntry валидирует ввод и собирает запись журнала. OldStatus может быть пустым
// только у записи о создании заказа.
func NewEntry(in LogInput, now time.Time) (domain.StatusHistoryEntry, error) {
	field := in.Field
	if field == "" {
		field = domain.StatusFieldOrder
	}

	entry := domain.StatusHistoryEntry{
		ID:             uuid.NewString(),
		OrderID:        in.OrderID,
		Field:          field,
		OldStatus:      in.OldStatus,
		NewStatus:      in.NewStatus,
		ChangedBy:      in.Actor.ID,
		ChangedAt:      now.UTC().Truncate(time.Microsecond),
		Note:           in.Note,
		IsSystemChange: in.Actor.System,
		Metadata:       copyMetadata(in.Actor.Metadata),
	}

	if errs := entry.Validate(); len(errs) > 0 {
		return domain.StatusHistoryEntry{}, domain.NewValidationError("history_entry", errors.Join(errs...))
	}
	if err := validateStatusValues(field, in.OldStatus, in.NewStatus); err != nil {
		return domain.StatusHistoryEntry{}, err
	}
	return entry, nil
}

func validateStatusValues(field domain.StatusField, oldStatus, newStatus string) error {
	switch field {
	case domain.StatusFieldOrder:
		if oldStatus != "" && !domain.OrderStatus(oldStatus).Valid() {
			return domain.NewValidationError("old_status", domain.ErrUnknownStatus)
		}
		if !domain.OrderStatus(newStatus).Valid() {
			return domain.NewValidationError("new_status", domain.ErrUnknownStatus)
		}
	case domain.StatusFieldPayment:
		if oldStatus != "" && !domain.PaymentStatus(oldStatus).Valid() {
			return domain.NewValidationError("old_status", domain.ErrUnknownPaymentStatus)
		}
		if !domain.PaymentStatus(newStatus).Valid() {
			return domain.NewValidationError("new_status", domain.ErrUnknownPaymentStatus)
		}
	default:
		return domain.NewValidationError("field", fmt.Errorf("unsupported status field %q", field))
	}
	return nil
}

// LogStatusChange добавляет запись в журнал. Требуются order_id и оба статуса;
// без автора запись считается системной.
func (r *Recorder) LogStatusChange(ctx context.Context, in LogInput) (domain.StatusHistoryEntry, error) {
	if in.OldStatus == "" {
		return domain.StatusHistoryEntry{}, domain.NewValidationError("old_status", domain.ErrStatusRequired)
	}
	if in.Actor.ID == "" {
		metadata := in.Actor.Metadata
		in.Actor = domain.SystemActor("")
		in.Actor.Metadata = metadata
	}

	entry, err := NewEntry(in, r.now())
	if err != nil {
		return domain.StatusHistoryEntry{}, err
	}

	err = r.store.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Orders().Get(ctx, entry.OrderID); err != nil {
			return err
		}
		return tx.History().Append(ctx, entry)
	})
	if err != nil {
		return domain.StatusHistoryEntry{}, fmt.Errorf("log status change: %w", err)
	}

	r.metrics.RecordHistoryEntry()
	r.InvalidateTimeline(ctx, entry.OrderID)

	r.logger.WithFields(log.Fields{
		"order_id":   entry.OrderID,
		"field":      entry.Field,
		"old_status": entry.OldStatus,
		"new_status": entry.NewStatus,
		"changed_by": entry.ChangedBy,
	}).Info("status change logged")

	return entry, nil
}

// GetOrderTimeline возвращает записи заказа по возрастанию времени изменения.
func (r *Recorder) GetOrderTimeline(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error) {
	if orderID == "" {
		return nil, domain.NewValidationError("order_id", domain.ErrOrderIDRequired)
	}

	key := domain.TimelineCacheKey(orderID)
	if cached, ok := r.fromCache(ctx, key); ok {
		return cached, nil
	}

	entries, err := r.store.History().ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	if len(entries) == 0 {
		// Пустой журнал бывает только у несуществующего заказа.
		if _, err := r.store.Orders().Get(ctx, orderID); err != nil {
			return nil, err
		}
	}

	r.fillCache(ctx, key, entries)
	return entries, nil
}

// fillCache кладёт таймлайн в кэш и сверяет его длину с хранилищем. Журнал только
// дописывается, так что другая длина означает запись, успевшую между чтением и Set.
func (r *Recorder) fillCache(ctx context.Context, key domain.CacheKey, entries []domain.StatusHistoryEntry) {
	if r.cache == nil {
		return
	}
	r.toCache(ctx, key, entries)

	current, err := r.store.History().ListByOrder(ctx, key.ID)
	if err == nil && len(current) == len(entries) {
		return
	}
	if err := r.cache.Invalidate(ctx, key); err != nil {
		r.logger.WithError(err).WithField("cache_key", key.String()).Warn("failed to drop stale timeline cache entry")
	}
}

// InvalidateTimeline сбрасывает закэшированный таймлайн заказа.
func (r *Recorder) InvalidateTimeline(ctx context.Context, orderID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, domain.TimelineCacheKey(orderID)); err != nil {
		r.logger.WithError(err).WithField("order_id", orderID).Warn("failed to invalidate timeline cache")
	}
}

func (r *Recorder) fromCache(ctx context.Context, key domain.CacheKey) ([]domain.StatusHistoryEntry, bool) {
	if r.cache == nil {
		return nil, false
	}

	raw, err := r.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			r.logger.WithError(err).WithField("cache_key", key.String()).Warn("timeline cache read failed")
		}
		r.metrics.RecordCacheMiss(string(key.Entity))
		return nil, false
	}

	var entries []domain.StatusHistoryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		r.logger.WithError(err).WithField("cache_key", key.String()).Warn("corrupted timeline cache entry")
		r.metrics.RecordCacheMiss(string(key.Entity))
		return nil, false
	}
	r.metrics.RecordCacheHit(string(key.Entity))
	return entries, true
}

func (r *Recorder) toCache(ctx context.Context, key domain.CacheKey, entries []domain.StatusHistoryEntry) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		r.logger.WithError(err).Warn("marshal timeline for cache")
		return
	}
	if err := r.cache.Set(ctx, key, raw, r.cacheTTL); err != nil {
		r.logger.WithError(err).WithField("cache_key", key.String()).Warn("timeline cache write failed")
	}
}

func copyMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
