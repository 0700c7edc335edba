// Package pricing рассчитывает денежные поля заказа: subtotal, налог, доставку, скидку и итог.
package pricing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

// DiscountType задаёт способ расчёта скидки.
type DiscountType string

const (
	// DiscountTypeFixed — скидка задана абсолютной суммой.
	DiscountTypeFixed DiscountType = "fixed"
	// DiscountTypePercentage — скидка задана процентом от subtotal.
	DiscountTypePercentage DiscountType = "percentage"
)

var hundred = decimal.NewFromInt(100)

// Valid проверяет, что тип скидки поддерживается.
func (t DiscountType) Valid() bool {
	return t == DiscountTypeFixed || t == DiscountTypePercentage
}

// Rules описывает бизнес-правила расчёта.
type Rules struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	FlatShipping          decimal.Decimal
}

// DefaultRules возвращает правила по умолчанию: налог 10%, бесплатная доставка от 100.00, иначе 10.00.
func DefaultRules() Rules {
	return Rules{
		TaxRate:               decimal.RequireFromString("0.10"),
		FreeShippingThreshold: decimal.RequireFromString("100.00"),
		FlatShipping:          decimal.RequireFromString("10.00"),
	}
}

// Calculator — чистый калькулятор сумм заказа, безопасен для конкурентного использования.
type Calculator struct {
	rules Rules
}

// NewCalculator создаёт калькулятор с указанными правилами.
func NewCalculator(rules Rules) *Calculator {
	return &Calculator{rules: rules}
}

// Rules возвращает действующие правила.
func (c *Calculator) Rules() Rules {
	return c.rules
}

// BuildLineItem применяет значения по умолчанию к черновику позиции и валидирует его.
// Отсутствующее количество превращается в 1, отсутствующая цена в 0.
func (c *Calculator) BuildLineItem(draft domain.ItemDraft, now time.Time) (domain.LineItem, error) {
	if draft.SKU == "" {
		return domain.LineItem{}, domain.NewValidationError("sku", nil)
	}

	qty := int32(1)
	if draft.Quantity != nil {
		qty = *draft.Quantity
	}
	if qty < 0 {
		return domain.LineItem{}, domain.NewValidationError("quantity", domain.ErrItemQtyInvalid)
	}

	price := decimal.Zero
	if draft.UnitPrice.Valid {
		price = draft.UnitPrice.Decimal
	}
	if price.IsNegative() {
		return domain.LineItem{}, domain.NewValidationError("unit_price", domain.ErrItemPriceInvalid)
	}
	if draft.DiscountAmount.IsNegative() {
		return domain.LineItem{}, domain.NewValidationError("discount_amount", domain.ErrItemAdjustmentInvalid)
	}
	if draft.TaxAmount.IsNegative() {
		return domain.LineItem{}, domain.NewValidationError("tax_amount", domain.ErrItemAdjustmentInvalid)
	}

	return domain.LineItem{
		ID:             uuid.NewString(),
		SKU:            draft.SKU,
		UnitPrice:      domain.RoundMoney(price),
		Quantity:       qty,
		DiscountAmount: domain.RoundMoney(draft.DiscountAmount),
		TaxAmount:      domain.RoundMoney(draft.TaxAmount),
		CreatedAt:      now,
	}, nil
}

// BuildLineItems строит позиции заказа из черновиков.
func (c *Calculator) BuildLineItems(drafts []domain.ItemDraft, now time.Time) ([]domain.LineItem, error) {
	if len(drafts) == 0 {
		return nil, domain.NewValidationError("items", domain.ErrItemsRequired)
	}

	items := make([]domain.LineItem, 0, len(drafts))
	for idx, draft := range drafts {
		item, err := c.BuildLineItem(draft, now)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", idx, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// CalculateOrderTotals считает итоги заказа без скидки.
func (c *Calculator) CalculateOrderTotals(items []domain.LineItem) domain.OrderTotals {
	return c.Recalculate(items, decimal.Zero)
}

// Recalculate полностью пересчитывает итоги по позициям, сохраняя накопленную скидку.
func (c *Calculator) Recalculate(items []domain.LineItem, discount decimal.Decimal) domain.OrderTotals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Subtotal())
	}

	totals := domain.OrderTotals{
		Subtotal:       domain.RoundMoney(subtotal),
		TaxAmount:      c.tax(subtotal),
		ShippingAmount: c.shipping(subtotal),
		DiscountAmount: domain.RoundMoney(discount),
	}
	totals.GrandTotal = grandTotal(totals)
	return totals
}

// ApplyDiscount добавляет скидку к уже накопленной и пересчитывает итог.
// Процентная скидка считается от subtotal.
func (c *Calculator) ApplyDiscount(totals domain.OrderTotals, amount decimal.Decimal, kind DiscountType) (domain.OrderTotals, error) {
	discount, err := c.ComputeDiscount(totals.Subtotal, amount, kind)
	if err != nil {
		return domain.OrderTotals{}, err
	}

	totals.DiscountAmount = domain.RoundMoney(totals.DiscountAmount.Add(discount))
	totals.GrandTotal = grandTotal(totals)
	return totals, nil
}

// ComputeDiscount возвращает сумму скидки для subtotal без применения к итогам.
func (c *Calculator) ComputeDiscount(subtotal, amount decimal.Decimal, kind DiscountType) (decimal.Decimal, error) {
	if !kind.Valid() {
		return decimal.Zero, domain.NewValidationError("discount_type", domain.ErrDiscountTypeInvalid)
	}
	if amount.IsNegative() {
		return decimal.Zero, domain.NewValidationError("discount_amount", domain.ErrDiscountNegative)
	}

	if kind == DiscountTypePercentage {
		if amount.GreaterThan(hundred) {
			return decimal.Zero, domain.NewValidationError("discount_amount", domain.ErrDiscountPercentTooLarge)
		}
		return domain.RoundMoney(subtotal.Mul(amount).Div(hundred)), nil
	}
	return domain.RoundMoney(amount), nil
}

// RemoveDiscount обнуляет скидку и пересчитывает итог.
func (c *Calculator) RemoveDiscount(totals domain.OrderTotals) domain.OrderTotals {
	totals.DiscountAmount = decimal.Zero
	totals.GrandTotal = grandTotal(totals)
	return totals
}

func (c *Calculator) tax(subtotal decimal.Decimal) decimal.Decimal {
	return domain.RoundMoney(subtotal.Mul(c.rules.TaxRate))
}

func (c *Calculator) shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(c.rules.FreeShippingThreshold) {
		return decimal.Zero
	}
	return domain.RoundMoney(c.rules.FlatShipping)
}

// grandTotal = subtotal + tax + shipping − discount, не меньше нуля.
func grandTotal(t domain.OrderTotals) decimal.Decimal {
	total := t.Subtotal.Add(t.TaxAmount).Add(t.ShippingAmount).Sub(t.DiscountAmount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return domain.RoundMoney(total)
}
