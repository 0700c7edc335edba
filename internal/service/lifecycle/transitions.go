package lifecycle

import (
	"context"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

// Cancel переводит заказ в cancelled. Оплаченный заказ одновременно получает payment_status=refunded.
// Причина сохраняется заметкой заказа и примечанием записи журнала.
func (s *Service) Cancel(ctx context.Context, orderID string, actor domain.Actor, reason string) (domain.Order, error) {
	return s.mutate(ctx, "cancel", orderID, actor, func(order *domain.Order, c *change) error {
		wasPaid := order.PaymentStatus == domain.PaymentStatusPaid

		if err := c.setStatus(order, domain.OrderStatusCancelled, reason); err != nil {
			return err
		}
		if wasPaid {
			if err := c.setPayment(order, domain.PaymentStatusRefunded, reason); err != nil {
				return err
			}
		}
		c.addNote(order, domain.NoteTypeCancellation, reason)
		return nil
	})
}

// MarkAsPaid одной операцией выставляет status=paid и payment_status=paid.
func (s *Service) MarkAsPaid(ctx context.Context, orderID string, actor domain.Actor) (domain.Order, error) {
	return s.mutate(ctx, "mark_paid", orderID, actor, func(order *domain.Order, c *change) error {
		if err := c.setStatus(order, domain.OrderStatusPaid, ""); err != nil {
			return err
		}
		return c.setPayment(order, domain.PaymentStatusPaid, "")
	})
}

// MarkAsShipped переводит заказ в shipped и, если передан, запоминает трек-номер.
func (s *Service) MarkAsShipped(ctx context.Context, orderID string, actor domain.Actor, trackingNumber string) (domain.Order, error) {
	return s.mutate(ctx, "mark_shipped", orderID, actor, func(order *domain.Order, c *change) error {
		note := ""
		if trackingNumber != "" {
			note = "tracking number: " + trackingNumber
		}
		if err := c.setStatus(order, domain.OrderStatusShipped, note); err != nil {
			return err
		}
		if trackingNumber != "" {
			order.TrackingNumber = trackingNumber
			c.addNote(order, domain.NoteTypeShipping, note)
		}
		return nil
	})
}

// MarkAsCompleted переводит отгруженный заказ в completed.
func (s *Service) MarkAsCompleted(ctx context.Context, orderID string, actor domain.Actor) (domain.Order, error) {
	return s.mutate(ctx, "mark_completed", orderID, actor, func(order *domain.Order, c *change) error {
		return c.setStatus(order, domain.OrderStatusCompleted, "")
	})
}

// RefundPayment переводит оплату paid → refunded. Допустимо только для completed/cancelled заказов.
func (s *Service) RefundPayment(ctx context.Context, orderID string, actor domain.Actor, reason string) (domain.Order, error) {
	return s.mutate(ctx, "refund_payment", orderID, actor, func(order *domain.Order, c *change) error {
		if err := c.setPayment(order, domain.PaymentStatusRefunded, reason); err != nil {
			return err
		}
		c.addNote(order, domain.NoteTypePayment, reason)
		return nil
	})
}
