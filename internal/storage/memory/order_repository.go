package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

// orderRepositoryInMemory — простая in-memory реализация OrderRepository.
type orderRepositoryInMemory struct {
	st *state
}

// NewOrderRepository возвращает отдельный in-memory репозиторий заказов (без транзакций).
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{st: newState()}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(_ context.Context, order domain.Order) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if _, exists := r.st.orders[order.ID]; exists {
		return domain.ErrOrderAlreadyExists
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.st.orders[order.ID] = cloneOrder(order)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()

	order, ok := r.st.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// ListByCustomer возвращает заказы клиента, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) ListByCustomer(_ context.Context, customerID string, limit int) ([]domain.Order, error) {
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()

	result := make([]domain.Order, 0, len(r.st.orders))
	for _, order := range r.st.orders {
		if order.CustomerID != customerID {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (r *orderRepositoryInMemory) Save(_ context.Context, order domain.Order) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	current, ok := r.st.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	// Инкрементируем версию перед сохранением.
	next := cloneOrder(order)
	next.Version++
	r.st.orders[order.ID] = next
	return nil
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

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
