package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

type stagedOrder struct {
	order  domain.Order
	create bool
	// baseVersion — версия в хранилище на момент первого чтения в транзакции.
	baseVersion int64
}

// memoryTx хранит изменения до коммита. Не предназначен для использования из нескольких горутин.
type memoryTx struct {
	st      *state
	orders  map[string]*stagedOrder
	order   []string
	history []domain.StatusHistoryEntry
	outbox  []domain.OutboxMessage
}

func newMemoryTx(st *state) *memoryTx {
	return &memoryTx{
		st:     st,
		orders: make(map[string]*stagedOrder),
	}
}

func (t *memoryTx) Orders() domain.OrderRepository {
	return txOrderRepository{tx: t}
}

func (t *memoryTx) History() domain.StatusHistoryRepository {
	return txHistoryRepository{tx: t}
}

func (t *memoryTx) Outbox() domain.OutboxRepository {
	return txOutboxRepository{tx: t}
}

// lookup возвращает заказ с учётом staged-изменений.
func (t *memoryTx) lookup(id string) (domain.Order, bool) {
	if staged, ok := t.orders[id]; ok {
		return staged.order, true
	}
	t.st.mu.RLock()
	defer t.st.mu.RUnlock()
	order, ok := t.st.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	return cloneOrder(order), true
}

func (t *memoryTx) commit() error {
	t.st.mu.Lock()
	defer t.st.mu.Unlock()

	// Сначала проверяем все предусловия, затем применяем: коммит либо целиком, либо никак.
	for _, id := range t.order {
		staged := t.orders[id]
		current, exists := t.st.orders[id]
		if staged.create {
			if exists {
				return domain.ErrOrderAlreadyExists
			}
			continue
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		if current.Version != staged.baseVersion {
			return domain.ErrOrderVersionConflict
		}
	}
	for _, entry := range t.history {
		if _, staged := t.orders[entry.OrderID]; staged {
			continue
		}
		if _, exists := t.st.orders[entry.OrderID]; !exists {
			return domain.ErrOrderNotFound
		}
	}

	for _, id := range t.order {
		t.st.orders[id] = cloneOrder(t.orders[id].order)
	}
	for _, entry := range t.history {
		t.st.appendHistoryLocked(entry)
	}
	now := time.Now().UTC()
	for _, msg := range t.outbox {
		t.st.enqueueOutboxLocked(msg, now)
	}
	return nil
}

type txOrderRepository struct {
	tx *memoryTx
}

func (r txOrderRepository) Create(ctx context.Context, order domain.Order) error {
	if _, exists := r.tx.lookup(order.ID); exists {
		return domain.ErrOrderAlreadyExists
	}
	r.tx.orders[order.ID] = &stagedOrder{order: cloneOrder(order), create: true}
	r.tx.order = append(r.tx.order, order.ID)
	return nil
}

func (r txOrderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	order, ok := r.tx.lookup(id)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (r txOrderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	return (&orderRepositoryInMemory{st: r.tx.st}).ListByCustomer(ctx, customerID, limit)
}

func (r txOrderRepository) Save(ctx context.Context, order domain.Order) error {
	current, ok := r.tx.lookup(order.ID)
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}

	next := cloneOrder(order)
	next.Version++
	if staged, ok := r.tx.orders[order.ID]; ok {
		staged.order = next
		return nil
	}
	r.tx.orders[order.ID] = &stagedOrder{order: next, baseVersion: current.Version}
	r.tx.order = append(r.tx.order, order.ID)
	return nil
}

type txHistoryRepository struct {
	tx *memoryTx
}

func (r txHistoryRepository) Append(ctx context.Context, entry domain.StatusHistoryEntry) error {
	if _, ok := r.tx.lookup(entry.OrderID); !ok {
		return domain.ErrOrderNotFound
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	r.tx.history = append(r.tx.history, cloneEntry(entry))
	return nil
}

// ListByOrder возвращает зафиксированные записи и записи текущей транзакции.
func (r txHistoryRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error) {
	committed, err := (&historyRepositoryInMemory{st: r.tx.st}).ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for _, entry := range r.tx.history {
		if entry.OrderID == orderID {
			committed = append(committed, cloneEntry(entry))
		}
	}
	sortEntries(committed)
	return committed, nil
}

type txOutboxRepository struct {
	tx *memoryTx
}

func (r txOutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	r.tx.outbox = append(r.tx.outbox, msg)
	return msg, nil
}

func (r txOutboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	return (&outboxRepositoryInMemory{st: r.tx.st}).PullPending(ctx, limit)
}

func (r txOutboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	return (&outboxRepositoryInMemory{st: r.tx.st}).Stats(ctx)
}

func (r txOutboxRepository) MarkSent(ctx context.Context, id string) error {
	return (&outboxRepositoryInMemory{st: r.tx.st}).MarkSent(ctx, id)
}

func (r txOutboxRepository) MarkFailed(ctx context.Context, id string) error {
	return (&outboxRepositoryInMemory{st: r.tx.st}).MarkFailed(ctx, id)
}

var _ domain.Tx = (*memoryTx)(nil)
