// Package memory содержит in-memory реализацию хранилища для локальной разработки и тестов.
package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

// state — общее состояние всех in-memory репозиториев. Один RWMutex защищает все таблицы,
// поэтому коммит транзакции виден читателям целиком.
type state struct {
	mu      sync.RWMutex
	orders  map[string]domain.Order
	history map[string][]historyRecord
	outbox  map[string]*outboxRecord
	seq     int64
}

func newState() *state {
	return &state{
		orders:  make(map[string]domain.Order),
		history: make(map[string][]historyRecord),
		outbox:  make(map[string]*outboxRecord),
	}
}

func (s *state) nextSeq() int64 {
	s.seq++
	return s.seq
}

// Store объединяет in-memory репозитории и менеджер транзакций.
type Store struct {
	st      *state
	orders  *orderRepositoryInMemory
	history *historyRepositoryInMemory
	outbox  *outboxRepositoryInMemory
	idem    *idempotencyRepositoryInMemory
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	st := newState()
	return &Store{
		st:      st,
		orders:  &orderRepositoryInMemory{st: st},
		history: &historyRepositoryInMemory{st: st},
		outbox:  &outboxRepositoryInMemory{st: st},
		idem:    newIdempotencyRepository(),
	}
}

func (s *Store) Orders() domain.OrderRepository {
	return s.orders
}

func (s *Store) History() domain.StatusHistoryRepository {
	return s.history
}

func (s *Store) Outbox() domain.OutboxRepository {
	return s.outbox
}

// Idempotency возвращает хранилище ключей идемпотентности. Оно не участвует в RunInTx.
func (s *Store) Idempotency() domain.IdempotencyRepository {
	return s.idem
}

// OutboxRepository возвращает конкретный тип (нужен тестам для AllPending).
func (s *Store) OutboxRepository() *outboxRepositoryInMemory {
	return s.outbox
}

// RunInTx накапливает записи fn и применяет их одним коммитом.
// Конфликт версий проверяется при коммите: если заказ изменился после чтения,
// возвращается ErrOrderVersionConflict и ничего не применяется.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := newMemoryTx(s.st)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

var (
	_ domain.TxManager = (*Store)(nil)
	_ domain.Tx        = (*Store)(nil)
)
