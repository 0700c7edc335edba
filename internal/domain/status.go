package domain

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, оплата ещё не получена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid — оплата подтверждена.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusCompleted — заказ доставлен и закрыт.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled — заказ отменён до завершения цикла.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	// PaymentStatusUnpaid — деньги ещё не получены.
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	// PaymentStatusPaid — деньги получены.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusRefunded — деньги возвращены клиенту.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// StatusField указывает, какой из двух статусов заказа изменился.
type StatusField string

const (
	StatusFieldOrder   StatusField = "status"
	StatusFieldPayment StatusField = "payment_status"
)

var orderTransitions = map[OrderStatus]map[OrderStatus]struct{}{
	OrderStatusPending: {
		OrderStatusPaid:      {},
		OrderStatusCancelled: {},
	},
	OrderStatusPaid: {
		OrderStatusShipped:   {},
		OrderStatusCancelled: {},
	},
	OrderStatusShipped: {
		OrderStatusCompleted: {},
		OrderStatusCancelled: {},
	},
	OrderStatusCompleted: {},
	OrderStatusCancelled: {},
}

var paymentTransitions = map[PaymentStatus]map[PaymentStatus]struct{}{
	PaymentStatusUnpaid: {
		PaymentStatusPaid: {},
	},
	PaymentStatusPaid: {
		PaymentStatusRefunded: {},
	},
	PaymentStatusRefunded: {},
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// IsTerminal сообщает, что из статуса нет переходов.
func (s OrderStatus) IsTerminal() bool {
	next, ok := orderTransitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo проверяет переход по таблице допустимых переходов.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	allowed, ok := orderTransitions[s]
	if !ok {
		return false
	}
	_, ok = allowed[next]
	return ok
}

// Valid проверяет, что статус оплаты относится к поддерживаемым значениям.
func (s PaymentStatus) Valid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

// CanTransitionTo проверяет переход статуса оплаты.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	allowed, ok := paymentTransitions[s]
	if !ok {
		return false
	}
	_, ok = allowed[next]
	return ok
}

// CheckOrderTransition возвращает nil, если переход from → to разрешён.
func CheckOrderTransition(from, to OrderStatus) error {
	if from == to {
		return ErrStatusUnchanged
	}
	if !from.CanTransitionTo(to) {
		return &TransitionError{Field: StatusFieldOrder, From: string(from), To: string(to)}
	}
	return nil
}

// CheckPaymentTransition возвращает nil, если переход статуса оплаты разрешён.
func CheckPaymentTransition(from, to PaymentStatus) error {
	if from == to {
		return ErrStatusUnchanged
	}
	if !from.CanTransitionTo(to) {
		return &TransitionError{Field: StatusFieldPayment, From: string(from), To: string(to)}
	}
	return nil
}

// CheckStatusConsistency проверяет согласованность статуса заказа и статуса оплаты:
// paid допускается только для paid/shipped/completed, unpaid — только для pending/cancelled.
func CheckStatusConsistency(status OrderStatus, payment PaymentStatus) error {
	switch payment {
	case PaymentStatusPaid:
		switch status {
		case OrderStatusPaid, OrderStatusShipped, OrderStatusCompleted:
			return nil
		}
	case PaymentStatusUnpaid:
		switch status {
		case OrderStatusPending, OrderStatusCancelled:
			return nil
		}
	case PaymentStatusRefunded:
		switch status {
		case OrderStatusCancelled, OrderStatusCompleted:
			return nil
		}
	}
	return &InconsistentStatusError{Status: status, PaymentStatus: payment}
}
