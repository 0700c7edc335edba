package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
	"github.com/vladislavdragonenkov/ordercore/internal/service/history"
	"github.com/vladislavdragonenkov/ordercore/internal/service/pricing"
)

// CreateOrderInput — данные для создания заказа.
type CreateOrderInput struct {
	// ID можно не задавать: тогда он будет сгенерирован.
	ID         string
	CustomerID string
	Currency   string
	Items      []domain.ItemDraft
	// PlacedAt по умолчанию равен моменту создания.
	PlacedAt time.Time
	Note     string
	Actor    domain.Actor
}

// DiscountInput описывает применяемую скидку.
type DiscountInput struct {
	Amount decimal.Decimal
	Type   pricing.DiscountType
	Code   string
}

// CreateOrder строит позиции, считает итоги и сохраняет заказ в статусе pending/unpaid
// вместе с первой записью журнала и событием OrderCreated.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (order domain.Order, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordOperation("create", time.Since(start), err)
	}()

	if strings.TrimSpace(in.CustomerID) == "" {
		return domain.Order{}, domain.NewValidationError("customer_id", domain.ErrCustomerRequired)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		return domain.Order{}, domain.NewValidationError("currency", domain.ErrCurrencyRequired)
	}
	if in.Actor.ID == "" {
		return domain.Order{}, domain.NewValidationError("changed_by", domain.ErrActorRequired)
	}

	now := s.now().UTC()
	items, err := s.calc.BuildLineItems(in.Items, now)
	if err != nil {
		return domain.Order{}, err
	}

	order = domain.Order{
		ID:            in.ID,
		CustomerID:    in.CustomerID,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusUnpaid,
		Currency:      currency,
		Totals:        s.calc.CalculateOrderTotals(items),
		Items:         items,
		PlacedAt:      in.PlacedAt.UTC(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if in.PlacedAt.IsZero() {
		order.PlacedAt = now
	}

	ch := &change{actor: in.Actor, now: now}
	ch.addNote(&order, domain.NoteTypeGeneral, in.Note)

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, domain.NewValidationError("order", errors.Join(errs...))
	}

	entry, err := history.NewEntry(history.LogInput{
		OrderID:   order.ID,
		Field:     domain.StatusFieldOrder,
		NewStatus: string(domain.OrderStatusPending),
		Actor:     in.Actor,
		Note:      in.Note,
	}, now)
	if err != nil {
		return domain.Order{}, err
	}
	ch.entries = append(ch.entries, entry)
	ch.emit(&order, domain.EventOrderCreated, "", string(domain.OrderStatusPending), in.Note)

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}
		return s.persistSideEffects(ctx, tx, order, ch)
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("create order failed")
		return domain.Order{}, err
	}

	s.metrics.RecordOrderCreated()
	s.afterCommit(ctx, order, ch)
	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
		"grand_total": order.Totals.GrandTotal.StringFixed(domain.MoneyPlaces),
	}).Info("order created")

	return order, nil
}

// ApplyDiscount добавляет скидку к накопленной и пересчитывает итог. Только для pending заказов.
func (s *Service) ApplyDiscount(ctx context.Context, orderID string, actor domain.Actor, in DiscountInput) (domain.Order, error) {
	order, err := s.mutate(ctx, "apply_discount", orderID, actor, func(order *domain.Order, c *change) error {
		if order.Status != domain.OrderStatusPending {
			return domain.ErrOrderNotEditable
		}

		totals, err := s.calc.ApplyDiscount(order.Totals, in.Amount, in.Type)
		if err != nil {
			return err
		}
		order.Totals = totals
		if in.Code != "" {
			order.DiscountCode = in.Code
		}

		note := describeDiscount(in)
		c.addNote(order, domain.NoteTypeDiscount, note)
		c.emit(order, domain.EventOrderDiscountApplied, "", in.Amount.String(), note)
		return nil
	})
	if err == nil {
		s.metrics.RecordDiscount("apply", string(in.Type))
	}
	return order, err
}

// RemoveDiscount обнуляет скидку и код скидки. Заказ без скидки возвращается без изменений.
func (s *Service) RemoveDiscount(ctx context.Context, orderID string, actor domain.Actor) (domain.Order, error) {
	order, err := s.mutate(ctx, "remove_discount", orderID, actor, func(order *domain.Order, c *change) error {
		if order.Status != domain.OrderStatusPending {
			return domain.ErrOrderNotEditable
		}
		if order.Totals.DiscountAmount.IsZero() && order.DiscountCode == "" {
			return errNoop
		}

		previous := order.Totals.DiscountAmount.StringFixed(domain.MoneyPlaces)
		order.Totals = s.calc.RemoveDiscount(order.Totals)
		order.DiscountCode = ""

		c.addNote(order, domain.NoteTypeDiscount, "discount removed")
		c.emit(order, domain.EventOrderDiscountRemoved, previous, "0.00", "")
		return nil
	})
	if err == nil {
		s.metrics.RecordDiscount("remove", "")
	}
	return order, err
}

// AddItem добавляет позицию и полностью пересчитывает итоги. Только для pending заказов.
func (s *Service) AddItem(ctx context.Context, orderID string, actor domain.Actor, draft domain.ItemDraft) (domain.Order, error) {
	return s.mutate(ctx, "add_item", orderID, actor, func(order *domain.Order, c *change) error {
		if order.Status != domain.OrderStatusPending {
			return domain.ErrOrderNotEditable
		}

		item, err := s.calc.BuildLineItem(draft, c.now)
		if err != nil {
			return err
		}
		order.Items = append(order.Items, item)
		order.Totals = s.calc.Recalculate(order.Items, order.Totals.DiscountAmount)

		c.emit(order, domain.EventOrderItemsChanged, "", item.ID, "item added")
		return nil
	})
}

// UpdateItem заменяет количество, цену и корректировки позиции и пересчитывает итоги.
func (s *Service) UpdateItem(ctx context.Context, orderID string, actor domain.Actor, itemID string, draft domain.ItemDraft) (domain.Order, error) {
	return s.mutate(ctx, "update_item", orderID, actor, func(order *domain.Order, c *change) error {
		if order.Status != domain.OrderStatusPending {
			return domain.ErrOrderNotEditable
		}

		idx := order.FindItem(itemID)
		if idx < 0 {
			return domain.ErrItemNotFound
		}

		existing := order.Items[idx]
		if draft.SKU == "" {
			draft.SKU = existing.SKU
		}
		item, err := s.calc.BuildLineItem(draft, existing.CreatedAt)
		if err != nil {
			return err
		}
		item.ID = existing.ID
		order.Items[idx] = item
		order.Totals = s.calc.Recalculate(order.Items, order.Totals.DiscountAmount)

		c.emit(order, domain.EventOrderItemsChanged, "", item.ID, "item updated")
		return nil
	})
}

func describeDiscount(in DiscountInput) string {
	var b strings.Builder
	b.WriteString("discount ")
	b.WriteString(in.Amount.String())
	if in.Type == pricing.DiscountTypePercentage {
		b.WriteString("%")
	} else {
		b.WriteString(" fixed")
	}
	if in.Code != "" {
		b.WriteString(" code ")
		b.WriteString(in.Code)
	}
	return b.String()
}
