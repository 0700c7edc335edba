package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

func TestHistoryRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	order := sampleOrder("history-order", "customer-h", now)
	require.NoError(t, NewOrderRepository(store).Create(ctx, order))

	repo := NewHistoryRepository(store)
	created := sampleEntry(order.ID, "", "pending", now)
	paid := sampleEntry(order.ID, "pending", "paid", now.Add(time.Second))
	payment := sampleEntry(order.ID, "unpaid", "paid", now.Add(time.Second))
	payment.Field = domain.StatusFieldPayment
	payment.IsSystemChange = true
	payment.Metadata = map[string]string{"source": "payment-events"}

	// Вставляем не по порядку: выборка сортирует по времени, затем по порядку вставки.
	require.NoError(t, repo.Append(ctx, paid))
	require.NoError(t, repo.Append(ctx, payment))
	require.NoError(t, repo.Append(ctx, created))

	entries, err := repo.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "pending", entries[0].NewStatus)
	require.Empty(t, entries[0].OldStatus)
	require.Equal(t, domain.StatusFieldOrder, entries[1].Field)
	require.Equal(t, domain.StatusFieldPayment, entries[2].Field)
	require.True(t, entries[2].IsSystemChange)
	require.Equal(t, "payment-events", entries[2].Metadata["source"])
	require.Nil(t, entries[0].Metadata)

	empty, err := repo.ListByOrder(ctx, "unknown")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestHistoryRepository_PostgresRejectsUnknownOrder(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)

	err := NewHistoryRepository(store).Append(context.Background(), sampleEntry("missing", "", "pending", time.Now().UTC()))
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func sampleEntry(orderID, oldStatus, newStatus string, at time.Time) domain.StatusHistoryEntry {
	return domain.StatusHistoryEntry{
		OrderID:   orderID,
		Field:     domain.StatusFieldOrder,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		ChangedBy: "operator",
		ChangedAt: at,
	}
}
