package domain

import (
	"context"
	"time"
)

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderAlreadyExists, если запись с таким ID уже есть.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// ListByCustomer возвращает заказы клиента с опциональным ограничением на количество.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking:
	// order.Version должен совпадать с сохранённой версией, после записи версия увеличивается на 1.
	Save(ctx context.Context, order Order) error
}

// StatusHistoryRepository — append-only журнал изменений статусов.
type StatusHistoryRepository interface {
	Append(ctx context.Context, entry StatusHistoryEntry) error
	// ListByOrder возвращает записи заказа по возрастанию ChangedAt, при равенстве в порядке вставки.
	ListByOrder(ctx context.Context, orderID string) ([]StatusHistoryEntry, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// Tx даёт доступ к репозиториям внутри одной транзакции.
type Tx interface {
	Orders() OrderRepository
	History() StatusHistoryRepository
	Outbox() OutboxRepository
}

// TxManager выполняет fn атомарно: либо применяются все записи, либо ни одной.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Cache — кэш read-моделей (заказ, таймлайн).
type Cache interface {
	// Get возвращает ErrCacheMiss, если ключа нет или он устарел.
	Get(ctx context.Context, key CacheKey) ([]byte, error)
	Set(ctx context.Context, key CacheKey, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...CacheKey) error
}

// CacheEntity задаёт тип закэшированной сущности.
type CacheEntity string

const (
	CacheEntityOrder    CacheEntity = "order"
	CacheEntityTimeline CacheEntity = "timeline"
)

// CacheKey однозначно адресует запись кэша.
type CacheKey struct {
	Entity CacheEntity
	ID     string
}

func (k CacheKey) String() string {
	return "ordercore:" + string(k.Entity) + ":" + k.ID
}

// OrderCacheKey возвращает ключ кэша для заказа.
func OrderCacheKey(orderID string) CacheKey {
	return CacheKey{Entity: CacheEntityOrder, ID: orderID}
}

// TimelineCacheKey возвращает ключ кэша для таймлайна заказа.
func TimelineCacheKey(orderID string) CacheKey {
	return CacheKey{Entity: CacheEntityTimeline, ID: orderID}
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
