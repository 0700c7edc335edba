package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "ordercore.order.events"
	TopicPaymentEvents   = "ordercore.payment.events"
	TopicDeadLetterQueue = "ordercore.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderEventType     = "x-event-type"
	HeaderEventID       = "x-event-id"
)

// PaymentEventType — тип события платёжного сервиса.
type PaymentEventType string

const (
	PaymentEventCaptured PaymentEventType = "payment.captured"
	PaymentEventRefunded PaymentEventType = "payment.refunded"
	PaymentEventFailed   PaymentEventType = "payment.failed"
)

// PaymentEvent приходит из топика платёжного сервиса.
type PaymentEvent struct {
	EventID    string           `json:"event_id"`
	EventType  PaymentEventType `json:"event_type"`
	OrderID    string           `json:"order_id"`
	PaymentID  string           `json:"payment_id,omitempty"`
	Amount     string           `json:"amount,omitempty"`
	Currency   string           `json:"currency,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// OutboxEnvelope — формат сообщения в топике событий заказа.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// DeadLetter — сообщение, отправленное в DLQ после исчерпания попыток.
type DeadLetter struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int32     `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	OriginalKey       string    `json:"original_key"`
	OriginalValue     string    `json:"original_value"`
	ErrorMessage      string    `json:"error_message"`
	FailedAt          time.Time `json:"failed_at"`
	RetryCount        int       `json:"retry_count"`
}

// ParsePaymentEvent парсит PaymentEvent из сообщения
func ParsePaymentEvent(message *sarama.ConsumerMessage) (*PaymentEvent, error) {
	var event PaymentEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment event: %w", err)
	}
	if event.OrderID == "" {
		return nil, fmt.Errorf("payment event %q: %w", event.EventID, domain.ErrOrderIDRequired)
	}
	return &event, nil
}

// ParseOrderEvent достаёт событие заказа из outbox-конверта.
func ParseOrderEvent(message *sarama.ConsumerMessage) (*domain.OrderEvent, error) {
	var envelope OutboxEnvelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outbox envelope: %w", err)
	}

	var event domain.OrderEvent
	if err := json.Unmarshal(envelope.Payload, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order event: %w", err)
	}
	return &event, nil
}

// ParseDeadLetter парсит сообщение из DLQ.
func ParseDeadLetter(message *sarama.ConsumerMessage) (*DeadLetter, error) {
	var letter DeadLetter
	if err := json.Unmarshal(message.Value, &letter); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dead letter: %w", err)
	}
	return &letter, nil
}
