package grpcsvc

import "time"

// Денежные значения передаются строками с двумя знаками после запятой ("110.00").

// Totals — итоги заказа.
type Totals struct {
	Subtotal       string `json:"subtotal"`
	TaxAmount      string `json:"tax_amount"`
	ShippingAmount string `json:"shipping_amount"`
	DiscountAmount string `json:"discount_amount"`
	GrandTotal     string `json:"grand_total"`
}

// LineItem — позиция заказа в ответе.
type LineItem struct {
	ID             string `json:"id"`
	SKU            string `json:"sku"`
	UnitPrice      string `json:"unit_price"`
	Quantity       int32  `json:"quantity"`
	DiscountAmount string `json:"discount_amount"`
	TaxAmount      string `json:"tax_amount"`
	Subtotal       string `json:"subtotal"`
	Total          string `json:"total"`
}

// Note — заметка заказа.
type Note struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Order — представление заказа в API.
type Order struct {
	ID             string     `json:"id"`
	CustomerID     string     `json:"customer_id"`
	Status         string     `json:"status"`
	PaymentStatus  string     `json:"payment_status"`
	Currency       string     `json:"currency"`
	Totals         Totals     `json:"totals"`
	DiscountCode   string     `json:"discount_code,omitempty"`
	TrackingNumber string     `json:"tracking_number,omitempty"`
	Notes          []Note     `json:"notes,omitempty"`
	Items          []LineItem `json:"items"`
	Version        int64      `json:"version"`
	PlacedAt       time.Time  `json:"placed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// HistoryEntry — запись журнала статусов.
type HistoryEntry struct {
	ID             string            `json:"id"`
	OrderID        string            `json:"order_id"`
	Field          string            `json:"field"`
	OldStatus      string            `json:"old_status"`
	NewStatus      string            `json:"new_status"`
	ChangedBy      string            `json:"changed_by"`
	ChangedAt      time.Time         `json:"changed_at"`
	Note           string            `json:"note,omitempty"`
	IsSystemChange bool              `json:"is_system_change"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// ItemInput — позиция во входных данных. Пустые поля получают значения по умолчанию:
// количество 1, цена 0.
type ItemInput struct {
	SKU            string `json:"sku"`
	Quantity       *int32 `json:"quantity,omitempty"`
	UnitPrice      string `json:"unit_price,omitempty"`
	DiscountAmount string `json:"discount_amount,omitempty"`
	TaxAmount      string `json:"tax_amount,omitempty"`
}

type CreateOrderRequest struct {
	OrderID    string      `json:"order_id,omitempty"`
	CustomerID string      `json:"customer_id"`
	Currency   string      `json:"currency"`
	Items      []ItemInput `json:"items"`
	Note       string      `json:"note,omitempty"`
	ChangedBy  string      `json:"changed_by"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type CancelOrderRequest struct {
	OrderID   string `json:"order_id"`
	ChangedBy string `json:"changed_by"`
	Reason    string `json:"reason,omitempty"`
}

type MarkOrderPaidRequest struct {
	OrderID   string `json:"order_id"`
	ChangedBy string `json:"changed_by"`
}

type MarkOrderShippedRequest struct {
	OrderID        string `json:"order_id"`
	ChangedBy      string `json:"changed_by"`
	TrackingNumber string `json:"tracking_number,omitempty"`
}

type MarkOrderCompletedRequest struct {
	OrderID   string `json:"order_id"`
	ChangedBy string `json:"changed_by"`
}

type RefundOrderPaymentRequest struct {
	OrderID   string `json:"order_id"`
	ChangedBy string `json:"changed_by"`
	Reason    string `json:"reason,omitempty"`
}

type ApplyDiscountRequest struct {
	OrderID   string `json:"order_id"`
	ChangedBy string `json:"changed_by"`
	Amount    string `json:"amount"`
	// Type: fixed (по умолчанию) или percentage.
	Type string `json:"type,omitempty"`
	Code string `json:"code,omitempty"`
}

type RemoveDiscountRequest struct {
	OrderID   string `json:"order_id"`
	ChangedBy string `json:"changed_by"`
}

type AddItemRequest struct {
	OrderID   string    `json:"order_id"`
	ChangedBy string    `json:"changed_by"`
	Item      ItemInput `json:"item"`
}

type UpdateItemRequest struct {
	OrderID   string    `json:"order_id"`
	ChangedBy string    `json:"changed_by"`
	ItemID    string    `json:"item_id"`
	Item      ItemInput `json:"item"`
}

// OrderResponse возвращается всеми операциями, меняющими заказ.
type OrderResponse struct {
	Order *Order `json:"order"`
}

type LogStatusChangeRequest struct {
	OrderID        string `json:"order_id"`
	Field          string `json:"field,omitempty"`
	OldStatus      string `json:"old_status"`
	NewStatus      string `json:"new_status"`
	ChangedBy      string `json:"changed_by"`
	Note           string `json:"note,omitempty"`
	IsSystemChange bool   `json:"is_system_change"`
}

type LogStatusChangeResponse struct {
	Entry *HistoryEntry `json:"entry"`
}

type GetOrderTimelineRequest struct {
	OrderID string `json:"order_id"`
}

type GetOrderTimelineResponse struct {
	OrderID string          `json:"order_id"`
	Entries []*HistoryEntry `json:"entries"`
}

type CalculateTotalsRequest struct {
	Items          []ItemInput `json:"items"`
	DiscountAmount string      `json:"discount_amount,omitempty"`
	DiscountType   string      `json:"discount_type,omitempty"`
}

type CalculateTotalsResponse struct {
	Totals *Totals `json:"totals"`
}
