// Package lifecycle управляет жизненным циклом заказа: создание, переходы статусов,
// скидки и изменение позиций. Каждая операция атомарно пишет заказ, журнал статусов и outbox.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
	"github.com/vladislavdragonenkov/ordercore/internal/metrics"
	"github.com/vladislavdragonenkov/ordercore/internal/service/history"
	"github.com/vladislavdragonenkov/ordercore/internal/service/pricing"
)

const (
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 10 * time.Millisecond
	defaultCacheTTL       = 5 * time.Minute
)

// Store — то, что сервису нужно от хранилища.
type Store interface {
	domain.TxManager
	Orders() domain.OrderRepository
}

// Option настраивает Service.
type Option func(*Service)

// WithCache включает read-through кэш заказов.
func WithCache(cache domain.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.LifecycleMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithRetry задаёт число попыток при конфликте версий и базовую задержку backoff.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(s *Service) {
		s.maxAttempts = maxAttempts
		s.retryBaseDelay = baseDelay
	}
}

// Service реализует операции жизненного цикла заказа.
type Service struct {
	store          Store
	calc           *pricing.Calculator
	cache          domain.Cache
	cacheTTL       time.Duration
	metrics        *metrics.LifecycleMetrics
	logger         *log.Entry
	now            func() time.Time
	maxAttempts    int
	retryBaseDelay time.Duration
}

// NewService создаёт сервис поверх хранилища и калькулятора.
func NewService(store Store, calc *pricing.Calculator, opts ...Option) *Service {
	s := &Service{
		store:          store,
		calc:           calc,
		cacheTTL:       defaultCacheTTL,
		now:            time.Now,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.calc == nil {
		s.calc = pricing.NewCalculator(pricing.DefaultRules())
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "lifecycle")
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.retryBaseDelay < 0 {
		s.retryBaseDelay = 0
	}
	return s
}

// Calculator возвращает калькулятор сервиса.
func (s *Service) Calculator() *pricing.Calculator {
	return s.calc
}

// GetOrder возвращает заказ, по возможности из кэша.
func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if orderID == "" {
		return domain.Order{}, domain.NewValidationError("order_id", domain.ErrOrderIDRequired)
	}

	key := domain.OrderCacheKey(orderID)
	if order, ok := s.cachedOrder(ctx, key); ok {
		return order, nil
	}

	order, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	s.fillOrderCache(ctx, key, order)
	return order, nil
}

// fillOrderCache кладёт прочитанный заказ в кэш и перечитывает версию из хранилища.
// Запись, закоммиченная между чтением и Set, уже отработала свой Invalidate, поэтому
// устаревшее значение сбрасывается здесь.
func (s *Service) fillOrderCache(ctx context.Context, key domain.CacheKey, order domain.Order) {
	if s.cache == nil {
		return
	}
	s.cacheOrder(ctx, key, order)

	current, err := s.store.Orders().Get(ctx, order.ID)
	if err == nil && current.Version == order.Version {
		return
	}
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.logger.WithError(err).WithField("cache_key", key.String()).Warn("failed to drop stale order cache entry")
	}
}

// change накапливает побочные эффекты одной операции: записи журнала и события outbox.
type change struct {
	actor   domain.Actor
	now     time.Time
	entries []domain.StatusHistoryEntry
	events  []domain.OrderEvent
}

// setStatus проверяет переход по таблице и фиксирует его в журнале.
func (c *change) setStatus(order *domain.Order, to domain.OrderStatus, note string) error {
	from := order.Status
	if err := domain.CheckOrderTransition(from, to); err != nil {
		return err
	}

	entry, err := history.NewEntry(history.LogInput{
		OrderID:   order.ID,
		Field:     domain.StatusFieldOrder,
		OldStatus: string(from),
		NewStatus: string(to),
		Actor:     c.actor,
		Note:      note,
	}, c.now)
	if err != nil {
		return err
	}

	order.Status = to
	c.entries = append(c.entries, entry)
	c.emit(order, domain.EventOrderStatusChanged, string(from), string(to), note)
	return nil
}

// setPayment проверяет переход оплаты. Если в этой же операции уже сменился статус заказа,
// смена оплаты дописывается в его запись журнала: один переход даёт одну запись.
func (c *change) setPayment(order *domain.Order, to domain.PaymentStatus, note string) error {
	from := order.PaymentStatus
	if err := domain.CheckPaymentTransition(from, to); err != nil {
		return err
	}

	if n := len(c.entries); n > 0 && c.entries[n-1].Field == domain.StatusFieldOrder {
		last := &c.entries[n-1]
		if last.Metadata == nil {
			last.Metadata = make(map[string]string, 1)
		}
		last.Metadata[domain.MetadataPaymentStatus] = domain.FormatStatusChange(string(from), string(to))

		order.PaymentStatus = to
		c.emit(order, domain.EventOrderPaymentStatusChanged, string(from), string(to), note)
		return nil
	}

	entry, err := history.NewEntry(history.LogInput{
		OrderID:   order.ID,
		Field:     domain.StatusFieldPayment,
		OldStatus: string(from),
		NewStatus: string(to),
		Actor:     c.actor,
		Note:      note,
	}, c.now)
	if err != nil {
		return err
	}

	order.PaymentStatus = to
	c.entries = append(c.entries, entry)
	c.emit(order, domain.EventOrderPaymentStatusChanged, string(from), string(to), note)
	return nil
}

// emit ставит событие в очередь; итоговые поля заказа заполняются при коммите.
func (c *change) emit(order *domain.Order, eventType, oldValue, newValue, reason string) {
	c.events = append(c.events, domain.OrderEvent{
		EventType:      eventType,
		OrderID:        order.ID,
		OldValue:       oldValue,
		NewValue:       newValue,
		Reason:         reason,
		ChangedBy:      c.actor.ID,
		IsSystemChange: c.actor.System,
		OccurredAt:     c.now,
	})
}

func (c *change) addNote(order *domain.Order, noteType domain.NoteType, text string) {
	if text == "" {
		return
	}
	order.Notes = append(order.Notes, domain.OrderNote{
		Type:      noteType,
		Text:      text,
		Author:    c.actor.ID,
		CreatedAt: c.now,
	})
}

// mutation изменяет загруженный заказ. Возврат errNoop означает, что сохранять нечего.
type mutation func(order *domain.Order, c *change) error

var errNoop = errors.New("no changes")

// mutate загружает заказ, применяет fn и сохраняет результат вместе с журналом и outbox
// в одной транзакции. Конфликт версий повторяется с экспоненциальной задержкой.
func (s *Service) mutate(ctx context.Context, operation, orderID string, actor domain.Actor, fn mutation) (order domain.Order, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordOperation(operation, time.Since(start), err)
	}()

	if orderID == "" {
		return domain.Order{}, domain.NewValidationError("order_id", domain.ErrOrderIDRequired)
	}
	if actor.ID == "" {
		return domain.Order{}, domain.NewValidationError("changed_by", domain.ErrActorRequired)
	}

	logger := s.logger.WithFields(log.Fields{
		"order_id":  orderID,
		"operation": operation,
	})

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		var (
			result domain.Order
			ch     *change
			noop   bool
		)

		err = s.store.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			current, err := tx.Orders().Get(ctx, orderID)
			if err != nil {
				return err
			}

			ch = &change{actor: actor, now: s.now().UTC()}
			next := cloneOrder(current)
			if err := fn(&next, ch); err != nil {
				if errors.Is(err, errNoop) {
					noop = true
					result = current
					return nil
				}
				return err
			}
			if err := domain.CheckStatusConsistency(next.Status, next.PaymentStatus); err != nil {
				return err
			}

			next.UpdatedAt = ch.now
			if err := tx.Orders().Save(ctx, next); err != nil {
				return err
			}
			next.Version++

			if err := s.persistSideEffects(ctx, tx, next, ch); err != nil {
				return err
			}
			result = next
			return nil
		})

		if err == nil {
			if !noop {
				s.afterCommit(ctx, result, ch)
				logger.WithField("version", result.Version).Info("order updated")
			}
			return result, nil
		}

		if domain.IsVersionConflict(err) && attempt < s.maxAttempts-1 {
			logger.WithFields(log.Fields{
				"attempt": attempt + 1,
			}).Warn("version conflict detected, retrying")

			delay := s.retryBaseDelay * time.Duration(1<<uint(attempt))
			if delay > 0 {
				select {
				case <-ctx.Done():
					return domain.Order{}, ctx.Err()
				case <-time.After(delay):
				}
			}
			continue
		}

		s.recordRejection(err)
		if domain.IsValidation(err) || domain.IsInvalidTransition(err) || errors.Is(err, domain.ErrStatusUnchanged) {
			logger.WithError(err).Debug("operation rejected")
		} else {
			logger.WithError(err).WithField("attempt", attempt+1).Warn("operation failed")
		}
		return domain.Order{}, err
	}

	return domain.Order{}, domain.ErrOrderVersionConflict
}

func (s *Service) persistSideEffects(ctx context.Context, tx domain.Tx, order domain.Order, ch *change) error {
	for _, entry := range ch.entries {
		if err := tx.History().Append(ctx, entry); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
	}
	for _, event := range ch.events {
		if err := enqueueEvent(ctx, tx, order, event); err != nil {
			return err
		}
	}
	return nil
}

func enqueueEvent(ctx context.Context, tx domain.Tx, order domain.Order, event domain.OrderEvent) error {
	event.CustomerID = order.CustomerID
	event.Status = string(order.Status)
	event.PaymentStatus = string(order.PaymentStatus)
	event.Currency = order.Currency
	event.GrandTotal = order.Totals.GrandTotal.StringFixed(domain.MoneyPlaces)
	event.DiscountAmount = order.Totals.DiscountAmount.StringFixed(domain.MoneyPlaces)
	event.DiscountCode = order.DiscountCode
	event.Version = order.Version

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.EventType, err)
	}

	_, err = tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   order.ID,
		EventType:     event.EventType,
		Payload:       payload,
		CreatedAt:     event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s event: %w", event.EventType, err)
	}
	return nil
}

func (s *Service) afterCommit(ctx context.Context, order domain.Order, ch *change) {
	for range ch.entries {
		s.metrics.RecordHistoryEntry()
	}
	for _, event := range ch.events {
		s.metrics.RecordOutboxEvent(event.EventType)
		switch event.EventType {
		case domain.EventOrderCreated, domain.EventOrderStatusChanged:
			s.metrics.RecordTransition(string(domain.StatusFieldOrder), event.OldValue, event.NewValue)
		case domain.EventOrderPaymentStatusChanged:
			s.metrics.RecordTransition(string(domain.StatusFieldPayment), event.OldValue, event.NewValue)
		}
	}

	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, domain.OrderCacheKey(order.ID), domain.TimelineCacheKey(order.ID)); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to invalidate order cache")
	}
}

func (s *Service) recordRejection(err error) {
	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		s.metrics.RecordRejectedTransition(string(trErr.Field), trErr.From, trErr.To)
	}
}

func (s *Service) cachedOrder(ctx context.Context, key domain.CacheKey) (domain.Order, bool) {
	if s.cache == nil {
		return domain.Order{}, false
	}

	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			s.logger.WithError(err).WithField("cache_key", key.String()).Warn("order cache read failed")
		}
		s.metrics.RecordCacheMiss(string(key.Entity))
		return domain.Order{}, false
	}

	var order domain.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		s.logger.WithError(err).WithField("cache_key", key.String()).Warn("corrupted order cache entry")
		s.metrics.RecordCacheMiss(string(key.Entity))
		return domain.Order{}, false
	}
	s.metrics.RecordCacheHit(string(key.Entity))
	return order, true
}

func (s *Service) cacheOrder(ctx context.Context, key domain.CacheKey, order domain.Order) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(order)
	if err != nil {
		s.logger.WithError(err).Warn("marshal order for cache")
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
		s.logger.WithError(err).WithField("cache_key", key.String()).Warn("order cache write failed")
	}
}

func cloneOrder(order domain.Order) domain.Order {
	if order.Items != nil {
		order.Items = append([]domain.LineItem(nil), order.Items...)
	}
	if order.Notes != nil {
		order.Notes = append([]domain.OrderNote(nil), order.Notes...)
	}
	return order
}
