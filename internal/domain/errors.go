package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка при некорректном количестве товара (< 0).
	ErrItemQtyInvalid = errors.New("item quantity must be non-negative")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка отрицательной скидки или налога позиции.
	ErrItemAdjustmentInvalid = errors.New("item discount and tax must be non-negative")
	// Ошибка несоответствия subtotal заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order subtotal does not match items sum")
	// Ошибка нарушения формулы grand_total.
	ErrTotalsUnbalanced = errors.New("grand_total does not match subtotal + tax + shipping - discount")
	// Ошибка отрицательной скидки.
	ErrDiscountNegative = errors.New("discount amount must be non-negative")
	// Ошибка неизвестного типа скидки.
	ErrDiscountTypeInvalid = errors.New("discount type must be fixed or percentage")
	// Ошибка процентной скидки больше 100%.
	ErrDiscountPercentTooLarge = errors.New("percentage discount must not exceed 100")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствующего статуса в записи истории.
	ErrStatusRequired = errors.New("old and new status are required")
	// Ошибка отсутствующего автора изменения.
	ErrActorRequired = errors.New("changed_by is required")
	// Ошибка неизвестного статуса заказа.
	ErrUnknownStatus = errors.New("unknown order status")
	// Ошибка неизвестного статуса оплаты.
	ErrUnknownPaymentStatus = errors.New("unknown payment status")
	// ErrItemNotFound возвращается, если позиции нет в заказе.
	ErrItemNotFound = errors.New("order item not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists возвращается при повторном создании заказа с тем же ID.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderNotEditable — заказ можно менять только в статусе pending.
	ErrOrderNotEditable = errors.New("order can only be changed while pending")
	// ErrInvalidTransition — запрошенный переход статуса запрещён таблицей переходов.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStatusUnchanged — заказ уже находится в запрошенном статусе, изменений нет.
	ErrStatusUnchanged = errors.New("status is already set")
	// ErrInconsistentStatus — статус заказа и статус оплаты противоречат друг другу.
	ErrInconsistentStatus = errors.New("order status and payment status are inconsistent")
	// ErrValidation — базовая ошибка некорректных входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrCacheMiss — ключ отсутствует в кэше.
	ErrCacheMiss = errors.New("cache miss")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyKeyExists — ключ уже использовался с тем же запросом.
	ErrIdempotencyKeyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ уже использовался с другим запросом.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with a different request")
	// ErrIdempotencyKeyNotFound — записи для ключа нет.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// ValidationError описывает некорректное поле входных данных.
type ValidationError struct {
	Field string
	Cause error
}

// NewValidationError создаёт ошибку валидации поля.
func NewValidationError(field string, cause error) *ValidationError {
	return &ValidationError{Field: field, Cause: cause}
}

func (e *ValidationError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Field)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Cause)
}

// Unwrap позволяет сопоставлять ошибку и с ErrValidation, и с причиной.
func (e *ValidationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Cause}
}

// TransitionError описывает запрещённый переход статуса.
type TransitionError struct {
	Field StatusField
	From  string
	To    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s %s -> %s", ErrInvalidTransition, e.Field, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// InconsistentStatusError описывает недопустимую пару статус заказа / статус оплаты.
type InconsistentStatusError struct {
	Status        OrderStatus
	PaymentStatus PaymentStatus
}

func (e *InconsistentStatusError) Error() string {
	return fmt.Sprintf("%s: status=%s payment_status=%s", ErrInconsistentStatus, e.Status, e.PaymentStatus)
}

func (e *InconsistentStatusError) Unwrap() error {
	return ErrInconsistentStatus
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsInvalidTransition проверяет, является ли ошибка запрещённым переходом статуса.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsValidation проверяет, является ли ошибка ошибкой входных данных.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
