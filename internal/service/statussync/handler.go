// Package statussync применяет события платёжного сервиса к заказам как системные изменения статуса.
package statussync

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
	"github.com/vladislavdragonenkov/ordercore/internal/messaging/kafka"
)

// SystemActorName — автор изменений, пришедших из платёжного сервиса.
const SystemActorName = "payment-service"

// Lifecycle — операции заказа, которые может вызвать синхронизация.
type Lifecycle interface {
	MarkAsPaid(ctx context.Context, orderID string, actor domain.Actor) (domain.Order, error)
	RefundPayment(ctx context.Context, orderID string, actor domain.Actor, reason string) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
}

// Handler переводит платёжные события в переходы статусов.
type Handler struct {
	lifecycle Lifecycle
	logger    *log.Entry
}

// NewHandler создаёт обработчик платёжных событий.
func NewHandler(lifecycle Lifecycle, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "payment-status-sync")
	}
	return &Handler{lifecycle: lifecycle, logger: logger}
}

// Apply применяет одно событие. Повторная доставка уже применённого события не считается ошибкой.
func (h *Handler) Apply(ctx context.Context, event kafka.PaymentEvent) error {
	actor := domain.SystemActor(SystemActorName)
	actor.Metadata = map[string]string{"event_id": event.EventID}
	if event.PaymentID != "" {
		actor.Metadata["payment_id"] = event.PaymentID
	}

	logger := h.logger.WithFields(log.Fields{
		"order_id":   event.OrderID,
		"event_id":   event.EventID,
		"event_type": event.EventType,
	})

	var err error
	switch event.EventType {
	case kafka.PaymentEventCaptured:
		_, err = h.lifecycle.MarkAsPaid(ctx, event.OrderID, actor)
		if domain.IsInvalidTransition(err) && h.paymentCaptured(ctx, event.OrderID) {
			err = domain.ErrStatusUnchanged
		}
	case kafka.PaymentEventRefunded:
		_, err = h.lifecycle.RefundPayment(ctx, event.OrderID, actor, event.Reason)
	default:
		logger.Debug("payment event ignored")
		return nil
	}

	switch {
	case err == nil:
		logger.Info("payment status synchronized")
		return nil
	case errors.Is(err, domain.ErrStatusUnchanged):
		logger.Debug("payment event already applied")
		return nil
	case domain.IsInvalidTransition(err),
		domain.IsValidation(err),
		errors.Is(err, domain.ErrInconsistentStatus),
		errors.Is(err, domain.ErrOrderNotFound):
		return fmt.Errorf("%w: %v", kafka.ErrNonRetryable, err)
	default:
		return err
	}
}

// paymentCaptured сообщает, что оплата заказа уже прошла: заказ мог уехать дальше paid,
// и повторный captured тогда ничего не меняет.
func (h *Handler) paymentCaptured(ctx context.Context, orderID string) bool {
	order, err := h.lifecycle.GetOrder(ctx, orderID)
	if err != nil {
		return false
	}
	return order.PaymentStatus == domain.PaymentStatusPaid || order.PaymentStatus == domain.PaymentStatusRefunded
}

// MessageHandler возвращает обработчик для kafka.Consumer.
func (h *Handler) MessageHandler() kafka.MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := kafka.ParsePaymentEvent(message)
		if err != nil {
			return fmt.Errorf("%w: %v", kafka.ErrNonRetryable, err)
		}
		return h.Apply(ctx, *event)
	}
}
