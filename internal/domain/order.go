package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces — количество знаков после запятой для всех денежных полей.
const MoneyPlaces = 2

// LineItem представляет одну позицию заказа.
type LineItem struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID string
	// SKU — внешний идентификатор товара.
	SKU string
	// UnitPrice — цена за единицу.
	UnitPrice decimal.Decimal
	// Quantity — количество единиц товара (>= 0).
	Quantity int32
	// DiscountAmount — скидка на позицию.
	DiscountAmount decimal.Decimal
	// TaxAmount — налог, начисленный на позицию.
	TaxAmount decimal.Decimal
	// CreatedAt фиксирует момент добавления позиции в заказ.
	CreatedAt time.Time
}

// Subtotal возвращает UnitPrice × Quantity.
func (i LineItem) Subtotal() decimal.Decimal {
	return RoundMoney(i.UnitPrice.Mul(decimal.NewFromInt32(i.Quantity)))
}

// Total возвращает Subtotal − DiscountAmount + TaxAmount.
func (i LineItem) Total() decimal.Decimal {
	return RoundMoney(i.Subtotal().Sub(i.DiscountAmount).Add(i.TaxAmount))
}

// ItemDraft — входные данные позиции, где количество и цена могут отсутствовать.
type ItemDraft struct {
	SKU string
	// Quantity == nil означает значение по умолчанию (1).
	Quantity *int32
	// UnitPrice.Valid == false означает значение по умолчанию (0).
	UnitPrice      decimal.NullDecimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
}

// OrderTotals — производные суммы заказа. Никогда не редактируются напрямую.
type OrderTotals struct {
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	ShippingAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	GrandTotal     decimal.Decimal
}

// Balanced проверяет, что GrandTotal = max(0, Subtotal + Tax + Shipping − Discount).
func (t OrderTotals) Balanced() bool {
	want := t.Subtotal.Add(t.TaxAmount).Add(t.ShippingAmount).Sub(t.DiscountAmount)
	if want.IsNegative() {
		want = decimal.Zero
	}
	return RoundMoney(want).Equal(t.GrandTotal)
}

// Order агрегирует состояние заказа, его суммы и позиции.
type Order struct {
	ID             string
	CustomerID     string
	Status         OrderStatus
	PaymentStatus  PaymentStatus
	Currency       string
	Totals         OrderTotals
	DiscountCode   string
	TrackingNumber string
	Notes          []OrderNote
	Items          []LineItem
	Version        int64
	PlacedAt       time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FindItem возвращает индекс позиции по ID или -1.
func (o *Order) FindItem(itemID string) int {
	for idx := range o.Items {
		if o.Items[idx].ID == itemID {
			return idx
		}
	}
	return -1
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrUnknownStatus)
	}
	if !o.PaymentStatus.Valid() {
		errs = append(errs, ErrUnknownPaymentStatus)
	}
	if err := CheckStatusConsistency(o.Status, o.PaymentStatus); err != nil {
		errs = append(errs, err)
	}

	// Сверяем subtotal заказа с суммой позиций: qty * price.
	calc := decimal.Zero
	for _, item := range o.Items {
		if item.Quantity < 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc = calc.Add(item.Subtotal())
	}
	if !calc.Equal(o.Totals.Subtotal) {
		errs = append(errs, ErrAmountMismatch)
	}
	if o.Totals.DiscountAmount.IsNegative() {
		errs = append(errs, ErrDiscountNegative)
	}
	if !o.Totals.Balanced() {
		errs = append(errs, ErrTotalsUnbalanced)
	}

	return errs
}

// RoundMoney округляет сумму до копеек.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}
