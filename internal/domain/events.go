package domain

import "time"

// Типы событий, которые сервис кладёт в transactional outbox.
const (
	EventOrderCreated              = "OrderCreated"
	EventOrderStatusChanged        = "OrderStatusChanged"
	EventOrderPaymentStatusChanged = "OrderPaymentStatusChanged"
	EventOrderDiscountApplied      = "OrderDiscountApplied"
	EventOrderDiscountRemoved      = "OrderDiscountRemoved"
	EventOrderItemsChanged         = "OrderItemsChanged"
)

// AggregateOrder — тип агрегата для outbox-сообщений заказа.
const AggregateOrder = "order"

// OrderEvent — полезная нагрузка outbox-события заказа.
type OrderEvent struct {
	EventType      string    `json:"event_type"`
	OrderID        string    `json:"order_id"`
	CustomerID     string    `json:"customer_id"`
	Status         string    `json:"status"`
	PaymentStatus  string    `json:"payment_status"`
	OldValue       string    `json:"old_value,omitempty"`
	NewValue       string    `json:"new_value,omitempty"`
	Currency       string    `json:"currency"`
	GrandTotal     string    `json:"grand_total"`
	DiscountAmount string    `json:"discount_amount"`
	DiscountCode   string    `json:"discount_code,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	ChangedBy      string    `json:"changed_by"`
	IsSystemChange bool      `json:"is_system_change"`
	Version        int64     `json:"version"`
	OccurredAt     time.Time `json:"occurred_at"`
}
