package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

func TestOrderRepository_PostgresCreateGetListAndSave(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	order1 := sampleOrder("order-1", "customer-1", now.Add(-2*time.Minute))
	order2 := sampleOrder("order-2", "customer-1", now.Add(-time.Minute))

	require.NoError(t, repo.Create(ctx, order1))
	require.NoError(t, repo.Create(ctx, order2))

	got, err := repo.Get(ctx, order1.ID)
	require.NoError(t, err)
	require.Equal(t, order1.CustomerID, got.CustomerID)
	require.Equal(t, domain.OrderStatusPending, got.Status)
	require.Equal(t, domain.PaymentStatusUnpaid, got.PaymentStatus)
	require.Len(t, got.Items, 2)
	require.Equal(t, "SKU-1", got.Items[0].SKU)
	require.True(t, got.Items[0].UnitPrice.Equal(decimal.RequireFromString("1.50")))
	require.True(t, got.Totals.GrandTotal.Equal(order1.Totals.GrandTotal))
	require.Len(t, got.Notes, 1)

	listed, err := repo.ListByCustomer(ctx, "customer-1", 1)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, order2.ID, listed[0].ID)

	all, err := repo.ListByCustomer(ctx, "customer-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	got.Status = domain.OrderStatusPaid
	got.PaymentStatus = domain.PaymentStatusPaid
	got.TrackingNumber = "TRK-1"
	got.Notes = append(got.Notes, domain.OrderNote{Type: domain.NoteTypePayment, Text: "paid", Author: "op", CreatedAt: now})
	got.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, repo.Save(ctx, got))

	updated, err := repo.Get(ctx, order1.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPaid, updated.Status)
	require.Equal(t, domain.PaymentStatusPaid, updated.PaymentStatus)
	require.Equal(t, "TRK-1", updated.TrackingNumber)
	require.Equal(t, got.Version+1, updated.Version)
	require.Len(t, updated.Notes, 2)
	require.Len(t, updated.Items, 2)
}

func TestOrderRepository_PostgresErrors(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	base := sampleOrder("order-errors", "customer-2", now)

	_, err := repo.Get(ctx, "missing-order")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	require.ErrorIs(t, repo.Save(ctx, base), domain.ErrOrderNotFound)

	require.NoError(t, repo.Create(ctx, base))
	require.ErrorIs(t, repo.Create(ctx, base), domain.ErrOrderAlreadyExists)

	stale := base
	stale.Status = domain.OrderStatusCancelled
	stale.UpdatedAt = now.Add(time.Minute)
	stale.Version = 42
	require.ErrorIs(t, repo.Save(ctx, stale), domain.ErrOrderVersionConflict)
}

func TestPgErrorMapping(t *testing.T) {
	require.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: "22001"}))
	require.False(t, isUniqueViolation(errors.New("plain error")))
	require.True(t, isForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, isForeignKeyViolation(&pgconn.PgError{Code: "23505"}))
}

func sampleOrder(id, customerID string, createdAt time.Time) domain.Order {
	price := decimal.RequireFromString("1.50")
	items := []domain.LineItem{
		{ID: id + "-item-1", SKU: "SKU-1", UnitPrice: price, Quantity: 2, CreatedAt: createdAt},
		{ID: id + "-item-2", SKU: "SKU-2", UnitPrice: decimal.Zero, Quantity: 1, CreatedAt: createdAt},
	}
	subtotal := decimal.RequireFromString("3.00")
	tax := decimal.RequireFromString("0.30")
	shipping := decimal.RequireFromString("10.00")

	return domain.Order{
		ID:            id,
		CustomerID:    customerID,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusUnpaid,
		Currency:      "USD",
		Totals: domain.OrderTotals{
			Subtotal:       subtotal,
			TaxAmount:      tax,
			ShippingAmount: shipping,
			GrandTotal:     subtotal.Add(tax).Add(shipping),
		},
		Items:     items,
		Notes:     []domain.OrderNote{{Type: domain.NoteTypeGeneral, Text: "leave at door", Author: customerID, CreatedAt: createdAt}},
		PlacedAt:  createdAt,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}
