package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

type orderRepository struct {
	q sqlx.ExtContext
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return store.Orders()
}

type orderRow struct {
	ID             string          `db:"id"`
	CustomerID     string          `db:"customer_id"`
	Status         string          `db:"status"`
	PaymentStatus  string          `db:"payment_status"`
	Currency       string          `db:"currency"`
	Subtotal       decimal.Decimal `db:"subtotal"`
	TaxAmount      decimal.Decimal `db:"tax_amount"`
	ShippingAmount decimal.Decimal `db:"shipping_amount"`
	DiscountAmount decimal.Decimal `db:"discount_amount"`
	GrandTotal     decimal.Decimal `db:"grand_total"`
	DiscountCode   string          `db:"discount_code"`
	TrackingNumber string          `db:"tracking_number"`
	Version        int64           `db:"version"`
	PlacedAt       time.Time       `db:"placed_at"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (r orderRow) toDomain() domain.Order {
	return domain.Order{
		ID:            r.ID,
		CustomerID:    r.CustomerID,
		Status:        domain.OrderStatus(r.Status),
		PaymentStatus: domain.PaymentStatus(r.PaymentStatus),
		Currency:      r.Currency,
		Totals: domain.OrderTotals{
			Subtotal:       r.Subtotal,
			TaxAmount:      r.TaxAmount,
			ShippingAmount: r.ShippingAmount,
			DiscountAmount: r.DiscountAmount,
			GrandTotal:     r.GrandTotal,
		},
		DiscountCode:   r.DiscountCode,
		TrackingNumber: r.TrackingNumber,
		Version:        r.Version,
		PlacedAt:       r.PlacedAt.UTC(),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type itemRow struct {
	ID             string          `db:"id"`
	SKU            string          `db:"sku"`
	UnitPrice      decimal.Decimal `db:"unit_price"`
	Quantity       int32           `db:"quantity"`
	DiscountAmount decimal.Decimal `db:"discount_amount"`
	TaxAmount      decimal.Decimal `db:"tax_amount"`
	CreatedAt      time.Time       `db:"created_at"`
}

type noteRow struct {
	Type      string    `db:"note_type"`
	Text      string    `db:"text"`
	Author    string    `db:"author"`
	CreatedAt time.Time `db:"created_at"`
}

const selectOrderColumns = `
	SELECT id, customer_id, status, payment_status, currency,
	       subtotal, tax_amount, shipping_amount, discount_amount, grand_total,
	       discount_code, tracking_number, version, placed_at, created_at, updated_at
	FROM orders
`

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return inTx(ctx, r.q, func(q sqlx.ExtContext) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO orders (
				id, customer_id, status, payment_status, currency,
				subtotal, tax_amount, shipping_amount, discount_amount, grand_total,
				discount_code, tracking_number, version, placed_at, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		`,
			order.ID, order.CustomerID, string(order.Status), string(order.PaymentStatus), order.Currency,
			order.Totals.Subtotal, order.Totals.TaxAmount, order.Totals.ShippingAmount,
			order.Totals.DiscountAmount, order.Totals.GrandTotal,
			order.DiscountCode, order.TrackingNumber, order.Version,
			order.PlacedAt, order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrOrderAlreadyExists
			}
			return fmt.Errorf("insert order: %w", err)
		}

		return writeChildren(ctx, q, order)
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var row orderRow
	if err := sqlx.GetContext(ctx, r.q, &row, selectOrderColumns+` WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	order := row.toDomain()
	if err := loadChildren(ctx, r.q, &order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := selectOrderColumns + `
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows []orderRow
		err  error
	)
	if limit > 0 {
		err = sqlx.SelectContext(ctx, r.q, &rows, query+" LIMIT $2", customerID, limit)
	} else {
		err = sqlx.SelectContext(ctx, r.q, &rows, query, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		order := row.toDomain()
		if err := loadChildren(ctx, r.q, &order); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return inTx(ctx, r.q, func(q sqlx.ExtContext) error {
		res, err := q.ExecContext(ctx, `
			UPDATE orders
			SET status = $1,
			    payment_status = $2,
			    subtotal = $3,
			    tax_amount = $4,
			    shipping_amount = $5,
			    discount_amount = $6,
			    grand_total = $7,
			    discount_code = $8,
			    tracking_number = $9,
			    version = version + 1,
			    updated_at = $10
			WHERE id = $11
			  AND version = $12
		`,
			string(order.Status),
			string(order.PaymentStatus),
			order.Totals.Subtotal,
			order.Totals.TaxAmount,
			order.Totals.ShippingAmount,
			order.Totals.DiscountAmount,
			order.Totals.GrandTotal,
			order.DiscountCode,
			order.TrackingNumber,
			order.UpdatedAt,
			order.ID,
			order.Version,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			exists, err := orderExists(ctx, q, order.ID)
			if err != nil {
				return err
			}
			if !exists {
				return domain.ErrOrderNotFound
			}
			return domain.ErrOrderVersionConflict
		}

		for _, stmt := range []string{
			`DELETE FROM order_items WHERE order_id = $1`,
			`DELETE FROM order_notes WHERE order_id = $1`,
		} {
			if _, err := q.ExecContext(ctx, stmt, order.ID); err != nil {
				return fmt.Errorf("reset order children: %w", err)
			}
		}
		return writeChildren(ctx, q, order)
	})
}

func writeChildren(ctx context.Context, q sqlx.ExtContext, order domain.Order) error {
	for idx, item := range order.Items {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, position, sku, unit_price, quantity, discount_amount, tax_amount, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			item.ID, order.ID, idx, item.SKU, item.UnitPrice, item.Quantity,
			item.DiscountAmount, item.TaxAmount, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	for _, note := range order.Notes {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO order_notes (order_id, note_type, text, author, created_at)
			VALUES ($1,$2,$3,$4,$5)
		`, order.ID, string(note.Type), note.Text, note.Author, note.CreatedAt); err != nil {
			return fmt.Errorf("insert order note: %w", err)
		}
	}
	return nil
}

func loadChildren(ctx context.Context, q sqlx.QueryerContext, order *domain.Order) error {
	var items []itemRow
	if err := sqlx.SelectContext(ctx, q, &items, `
		SELECT id, sku, unit_price, quantity, discount_amount, tax_amount, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, order.ID); err != nil {
		return fmt.Errorf("load order items: %w", err)
	}

	order.Items = make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		order.Items = append(order.Items, domain.LineItem{
			ID:             item.ID,
			SKU:            item.SKU,
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			DiscountAmount: item.DiscountAmount,
			TaxAmount:      item.TaxAmount,
			CreatedAt:      item.CreatedAt.UTC(),
		})
	}

	var notes []noteRow
	if err := sqlx.SelectContext(ctx, q, &notes, `
		SELECT note_type, text, author, created_at
		FROM order_notes
		WHERE order_id = $1
		ORDER BY id ASC
	`, order.ID); err != nil {
		return fmt.Errorf("load order notes: %w", err)
	}
	for _, note := range notes {
		order.Notes = append(order.Notes, domain.OrderNote{
			Type:      domain.NoteType(note.Type),
			Text:      note.Text,
			Author:    note.Author,
			CreatedAt: note.CreatedAt.UTC(),
		})
	}
	return nil
}

func orderExists(ctx context.Context, q sqlx.QueryerContext, orderID string) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID); err != nil {
		return false, fmt.Errorf("check order exists: %w", err)
	}
	return exists, nil
}

// inTx выполняет fn в транзакции. Если q уже транзакция, fn работает в ней.
func inTx(ctx context.Context, q sqlx.ExtContext, fn func(q sqlx.ExtContext) error) (err error) {
	db, ok := q.(*sqlx.DB)
	if !ok {
		return fn(q)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
