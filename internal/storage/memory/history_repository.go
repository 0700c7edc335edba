package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

type historyRecord struct {
	entry domain.StatusHistoryEntry
	seq   int64
}

// historyRepositoryInMemory хранит журнал статусов в памяти. Записи только добавляются.
type historyRepositoryInMemory struct {
	st *state
}

// Append добавляет запись. Заказ должен существовать.
func (r *historyRepositoryInMemory) Append(_ context.Context, entry domain.StatusHistoryEntry) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if _, ok := r.st.orders[entry.OrderID]; !ok {
		return domain.ErrOrderNotFound
	}
	r.st.appendHistoryLocked(entry)
	return nil
}

// ListByOrder возвращает записи заказа в хронологическом порядке.
func (r *historyRepositoryInMemory) ListByOrder(_ context.Context, orderID string) ([]domain.StatusHistoryEntry, error) {
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()

	records := r.st.history[orderID]
	result := make([]domain.StatusHistoryEntry, 0, len(records))
	for _, rec := range records {
		result = append(result, cloneEntry(rec.entry))
	}
	return result, nil
}

// appendHistoryLocked вставляет запись, сохраняя порядок (changed_at, seq). Вызывается под st.mu.
func (s *state) appendHistoryLocked(entry domain.StatusHistoryEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	records := append(s.history[entry.OrderID], historyRecord{entry: cloneEntry(entry), seq: s.nextSeq()})
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].entry.ChangedAt.Equal(records[j].entry.ChangedAt) {
			return records[i].entry.ChangedAt.Before(records[j].entry.ChangedAt)
		}
		return records[i].seq < records[j].seq
	})
	s.history[entry.OrderID] = records
}

func sortEntries(entries []domain.StatusHistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ChangedAt.Before(entries[j].ChangedAt)
	})
}

func cloneEntry(entry domain.StatusHistoryEntry) domain.StatusHistoryEntry {
	if entry.Metadata != nil {
		meta := make(map[string]string, len(entry.Metadata))
		for k, v := range entry.Metadata {
			meta[k] = v
		}
		entry.Metadata = meta
	}
	return entry
}

var _ domain.StatusHistoryRepository = (*historyRepositoryInMemory)(nil)
