package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

type historyRepository struct {
	q sqlx.ExtContext
}

// NewHistoryRepository создаёт PostgreSQL-реализацию StatusHistoryRepository.
func NewHistoryRepository(store *Store) domain.StatusHistoryRepository {
	return store.History()
}

type historyRow struct {
	ID             string    `db:"id"`
	OrderID        string    `db:"order_id"`
	Field          string    `db:"field"`
	OldStatus      string    `db:"old_status"`
	NewStatus      string    `db:"new_status"`
	ChangedBy      string    `db:"changed_by"`
	ChangedAt      time.Time `db:"changed_at"`
	Note           string    `db:"note"`
	IsSystemChange bool      `db:"is_system_change"`
	Metadata       []byte    `db:"metadata"`
}

func (r *historyRepository) Append(ctx context.Context, entry domain.StatusHistoryEntry) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	if entry.Field == "" {
		entry.Field = domain.StatusFieldOrder
	}

	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	rawMetadata, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal history metadata: %w", err)
	}

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO order_status_history (
			id, order_id, field, old_status, new_status,
			changed_by, changed_at, note, is_system_change, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		entry.ID, entry.OrderID, string(entry.Field), entry.OldStatus, entry.NewStatus,
		entry.ChangedBy, entry.ChangedAt, entry.Note, entry.IsSystemChange, rawMetadata,
	); err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrOrderNotFound
		}
		return fmt.Errorf("append status history entry: %w", err)
	}

	return nil
}

func (r *historyRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var rows []historyRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, `
		SELECT id, order_id, field, old_status, new_status,
		       changed_by, changed_at, note, is_system_change, metadata
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY changed_at ASC, seq ASC
	`, orderID); err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}

	entries := make([]domain.StatusHistoryEntry, 0, len(rows))
	for _, row := range rows {
		entry := domain.StatusHistoryEntry{
			ID:             row.ID,
			OrderID:        row.OrderID,
			Field:          domain.StatusField(row.Field),
			OldStatus:      row.OldStatus,
			NewStatus:      row.NewStatus,
			ChangedBy:      row.ChangedBy,
			ChangedAt:      row.ChangedAt.UTC(),
			Note:           row.Note,
			IsSystemChange: row.IsSystemChange,
		}
		if len(row.Metadata) > 0 {
			var metadata map[string]string
			if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
				return nil, fmt.Errorf("decode history metadata: %w", err)
			}
			if len(metadata) > 0 {
				entry.Metadata = metadata
			}
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

var _ domain.StatusHistoryRepository = (*historyRepository)(nil)
