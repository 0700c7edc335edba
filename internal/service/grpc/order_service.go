// Package grpcsvc публикует жизненный цикл заказа как gRPC-сервис ordercore.v1.OrderLifecycleService.
package grpcsvc

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
	"github.com/vladislavdragonenkov/ordercore/internal/service/history"
	"github.com/vladislavdragonenkov/ordercore/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/ordercore/internal/service/pricing"
)

// Lifecycle — операции над заказом, доступные через API.
type Lifecycle interface {
	CreateOrder(ctx context.Context, in lifecycle.CreateOrderInput) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	Cancel(ctx context.Context, orderID string, actor domain.Actor, reason string) (domain.Order, error)
	MarkAsPaid(ctx context.Context, orderID string, actor domain.Actor) (domain.Order, error)
	MarkAsShipped(ctx context.Context, orderID string, actor domain.Actor, trackingNumber string) (domain.Order, error)
	MarkAsCompleted(ctx context.Context, orderID string, actor domain.Actor) (domain.Order, error)
	RefundPayment(ctx context.Context, orderID string, actor domain.Actor, reason string) (domain.Order, error)
	ApplyDiscount(ctx context.Context, orderID string, actor domain.Actor, in lifecycle.DiscountInput) (domain.Order, error)
	RemoveDiscount(ctx context.Context, orderID string, actor domain.Actor) (domain.Order, error)
	AddItem(ctx context.Context, orderID string, actor domain.Actor, draft domain.ItemDraft) (domain.Order, error)
	UpdateItem(ctx context.Context, orderID string, actor domain.Actor, itemID string, draft domain.ItemDraft) (domain.Order, error)
}

// Timeline — журнал статусов.
type Timeline interface {
	LogStatusChange(ctx context.Context, in history.LogInput) (domain.StatusHistoryEntry, error)
	GetOrderTimeline(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error)
}

const (
	metadataKeyIP        = "ip"
	metadataKeyUserAgent = "user_agent"
	headerForwardedFor   = "x-forwarded-for"
	headerUserAgent      = "user-agent"
)

// OrderService реализует OrderLifecycleServer поверх сервисов жизненного цикла и журнала.
type OrderService struct {
	lifecycle Lifecycle
	timeline  Timeline
	calc      *pricing.Calculator
	logger    *log.Entry
}

var _ OrderLifecycleServer = (*OrderService)(nil)

// NewOrderService конструирует сервис с зависимостями.
func NewOrderService(lc Lifecycle, timeline Timeline, calc *pricing.Calculator, logger *log.Entry) *OrderService {
	if logger == nil {
		logger = log.New().WithField("component", "order-service")
	}
	if calc == nil {
		calc = pricing.NewCalculator(pricing.DefaultRules())
	}
	return &OrderService{
		lifecycle: lc,
		timeline:  timeline,
		calc:      calc,
		logger:    logger,
	}
}

// CreateOrder создаёт заказ в статусе pending/unpaid.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	drafts, err := toItemDrafts(req.Items)
	if err != nil {
		return nil, s.toStatus(err, "CreateOrder", req.OrderID)
	}

	order, err := s.lifecycle.CreateOrder(ctx, lifecycle.CreateOrderInput{
		ID:         req.OrderID,
		CustomerID: req.CustomerID,
		Currency:   req.Currency,
		Items:      drafts,
		Note:       req.Note,
		Actor:      actorFromContext(ctx, req.ChangedBy, false),
	})
	if err != nil {
		return nil, s.toStatus(err, "CreateOrder", req.OrderID)
	}
	return &OrderResponse{Order: toOrderMessage(order)}, nil
}

// GetOrder возвращает текущее состояние заказа.
func (s *OrderService) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderResponse, error) {
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	order, err := s.lifecycle.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, s.toStatus(err, "GetOrder", req.OrderID)
	}
	return &OrderResponse{Order: toOrderMessage(order)}, nil
}

// CancelOrder отменяет заказ; оплаченный заказ получает возврат оплаты.
func (s *OrderService) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*OrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	order, err := s.lifecycle.Cancel(ctx, req.OrderID, actorFromContext(ctx, req.ChangedBy, false), req.Reason)
	return s.orderResult(order, err, "CancelOrder", req.OrderID)
}

func (s *OrderService) MarkOrderPaid(ctx context.Context, req *MarkOrderPaidRequest) (*OrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	order, err := s.lifecycle.MarkAsPaid(ctx, req.OrderID, actorFromContext(ctx, req.ChangedBy, false))
	return s.orderResult(order, err, "MarkOrderPaid", req.OrderID)
}

func (s *OrderService) MarkOrderShipped(ctx context.Context, req *MarkOrderShippedRequest) (*OrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	order, err := s.lifecycle.MarkAsShipped(ctx, req.OrderID, actorFromContext(ctx, req.ChangedBy, false), req.TrackingNumber)
	return s.orderResult(order, err, "MarkOrderShipped", req.OrderID)
}

func (s *OrderService) MarkOrderCompleted(ctx context.Context, req *MarkOrderCompletedRequest) (*OrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	order, err := s.lifecycle.MarkAsCompleted(ctx, req.OrderID, actorFromContext(ctx, req.ChangedBy, false))
	return s.orderResult(order, err, "MarkOrderCompleted", req.OrderID)
}

func (s *OrderService) RefundOrderPayment(ctx context.Context, req *RefundOrderPaymentRequest) (*OrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	order, err := s.lifecycle.RefundPayment(ctx, req.OrderID, actorFromContext(ctx, req.ChangedBy, false), req.Reason)
	return s.orderResult(order, err, "RefundOrderPayment", req.OrderID)
}

// ApplyDiscount добавляет скидку к заказу. Тип по умолчанию fixed.
func (s *OrderService) ApplyDiscount(ctx context.Context, req *ApplyDiscountRequest) (*OrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	in, err := toDiscountInput(req.Amount, req.Type)
	if err != nil {
		return nil, s.toStatus(err, "ApplyDiscount", req.OrderID)
	}
	in.Code = req.Code

	order, err := s.lifecycle.ApplyDiscount(ctx, req.OrderID, actorFromContext(ctx, req.ChangedBy, false), in)
	return s.orderResult(order, err, "ApplyDiscount", req.OrderID)
}

func (s *OrderService) RemoveDiscount(ctx context.Context, req *RemoveDiscountRequest) (*OrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	order, err := s.lifecycle.RemoveDiscount(ctx, req.OrderID, actorFromContext(ctx, req.ChangedBy, false))
	return s.orderResult(order, err, "RemoveDiscount", req.OrderID)
}

func (s *OrderService) AddItem(ctx context.Context, req *AddItemRequest) (*OrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	draft, err := toItemDraft(req.Item)
	if err != nil {
		return nil, s.toStatus(err, "AddItem", req.OrderID)
	}
	order, err := s.lifecycle.AddItem(ctx, req.OrderID, actorFromContext(ctx, req.ChangedBy, false), draft)
	return s.orderResult(order, err, "AddItem", req.OrderID)
}

func (s *OrderService) UpdateItem(ctx context.Context, req *UpdateItemRequest) (*OrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if req.ItemID == "" {
		return nil, status.Error(codes.InvalidArgument, "item_id is required")
	}
	draft, err := toItemDraft(req.Item)
	if err != nil {
		return nil, s.toStatus(err, "UpdateItem", req.OrderID)
	}
	order, err := s.lifecycle.UpdateItem(ctx, req.OrderID, actorFromContext(ctx, req.ChangedBy, false), req.ItemID, draft)
	return s.orderResult(order, err, "UpdateItem", req.OrderID)
}

// LogStatusChange добавляет запись в журнал без изменения самого заказа.
func (s *OrderService) LogStatusChange(ctx context.Context, req *LogStatusChangeRequest) (*LogStatusChangeResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	entry, err := s.timeline.LogStatusChange(ctx, history.LogInput{
		OrderID:   req.OrderID,
		Field:     domain.StatusField(req.Field),
		OldStatus: req.OldStatus,
		NewStatus: req.NewStatus,
		Actor:     actorFromContext(ctx, req.ChangedBy, req.IsSystemChange),
		Note:      req.Note,
	})
	if err != nil {
		return nil, s.toStatus(err, "LogStatusChange", req.OrderID)
	}
	return &LogStatusChangeResponse{Entry: toHistoryMessage(entry)}, nil
}

// GetOrderTimeline возвращает журнал статусов по возрастанию времени.
func (s *OrderService) GetOrderTimeline(ctx context.Context, req *GetOrderTimelineRequest) (*GetOrderTimelineResponse, error) {
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	entries, err := s.timeline.GetOrderTimeline(ctx, req.OrderID)
	if err != nil {
		return nil, s.toStatus(err, "GetOrderTimeline", req.OrderID)
	}

	result := make([]*HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		result = append(result, toHistoryMessage(entry))
	}
	return &GetOrderTimelineResponse{OrderID: req.OrderID, Entries: result}, nil
}

// CalculateTotals считает итоги для набора позиций без сохранения заказа.
func (s *OrderService) CalculateTotals(_ context.Context, req *CalculateTotalsRequest) (*CalculateTotalsResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	drafts, err := toItemDrafts(req.Items)
	if err != nil {
		return nil, s.toStatus(err, "CalculateTotals", "")
	}
	items, err := s.calc.BuildLineItems(drafts, time.Now().UTC())
	if err != nil {
		return nil, s.toStatus(err, "CalculateTotals", "")
	}

	totals := s.calc.CalculateOrderTotals(items)
	if strings.TrimSpace(req.DiscountAmount) != "" {
		in, err := toDiscountInput(req.DiscountAmount, req.DiscountType)
		if err != nil {
			return nil, s.toStatus(err, "CalculateTotals", "")
		}
		totals, err = s.calc.ApplyDiscount(totals, in.Amount, in.Type)
		if err != nil {
			return nil, s.toStatus(err, "CalculateTotals", "")
		}
	}

	msg := toTotalsMessage(totals)
	return &CalculateTotalsResponse{Totals: &msg}, nil
}

func (s *OrderService) orderResult(order domain.Order, err error, operation, orderID string) (*OrderResponse, error) {
	if err != nil {
		return nil, s.toStatus(err, operation, orderID)
	}
	return &OrderResponse{Order: toOrderMessage(order)}, nil
}

// actorFromContext собирает автора изменения и контекст вызова: адрес клиента и user-agent.
func actorFromContext(ctx context.Context, changedBy string, system bool) domain.Actor {
	actor := domain.Actor{ID: strings.TrimSpace(changedBy), System: system}
	meta := make(map[string]string, 2)

	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr := p.Addr.String()
		if host, _, err := net.SplitHostPort(addr); err == nil {
			addr = host
		}
		meta[metadataKeyIP] = addr
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(headerForwardedFor); len(values) > 0 {
			if ip := strings.TrimSpace(strings.Split(values[0], ",")[0]); ip != "" {
				meta[metadataKeyIP] = ip
			}
		}
		if values := md.Get(headerUserAgent); len(values) > 0 && values[0] != "" {
			meta[metadataKeyUserAgent] = values[0]
		}
	}

	if len(meta) > 0 {
		actor.Metadata = meta
	}
	return actor
}

func parseMoney(field, value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, domain.NewValidationError(field, err)
	}
	return amount, nil
}

func toItemDraft(in ItemInput) (domain.ItemDraft, error) {
	draft := domain.ItemDraft{SKU: in.SKU, Quantity: in.Quantity}

	if strings.TrimSpace(in.UnitPrice) != "" {
		price, err := parseMoney("unit_price", in.UnitPrice)
		if err != nil {
			return domain.ItemDraft{}, err
		}
		draft.UnitPrice = decimal.NewNullDecimal(price)
	}

	var err error
	if draft.DiscountAmount, err = parseMoney("discount_amount", in.DiscountAmount); err != nil {
		return domain.ItemDraft{}, err
	}
	if draft.TaxAmount, err = parseMoney("tax_amount", in.TaxAmount); err != nil {
		return domain.ItemDraft{}, err
	}
	return draft, nil
}

func toItemDrafts(items []ItemInput) ([]domain.ItemDraft, error) {
	drafts := make([]domain.ItemDraft, 0, len(items))
	for idx, item := range items {
		draft, err := toItemDraft(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", idx, err)
		}
		drafts = append(drafts, draft)
	}
	return drafts, nil
}

func toDiscountInput(amount, kind string) (lifecycle.DiscountInput, error) {
	if strings.TrimSpace(amount) == "" {
		return lifecycle.DiscountInput{}, domain.NewValidationError("amount", nil)
	}
	value, err := parseMoney("amount", amount)
	if err != nil {
		return lifecycle.DiscountInput{}, err
	}

	discountType := pricing.DiscountType(strings.ToLower(strings.TrimSpace(kind)))
	if discountType == "" {
		discountType = pricing.DiscountTypeFixed
	}
	return lifecycle.DiscountInput{Amount: value, Type: discountType}, nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(domain.MoneyPlaces)
}

func toTotalsMessage(t domain.OrderTotals) Totals {
	return Totals{
		Subtotal:       money(t.Subtotal),
		TaxAmount:      money(t.TaxAmount),
		ShippingAmount: money(t.ShippingAmount),
		DiscountAmount: money(t.DiscountAmount),
		GrandTotal:     money(t.GrandTotal),
	}
}

func toOrderMessage(order domain.Order) *Order {
	items := make([]LineItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, LineItem{
			ID:             item.ID,
			SKU:            item.SKU,
			UnitPrice:      money(item.UnitPrice),
			Quantity:       item.Quantity,
			DiscountAmount: money(item.DiscountAmount),
			TaxAmount:      money(item.TaxAmount),
			Subtotal:       money(item.Subtotal()),
			Total:          money(item.Total()),
		})
	}

	var notes []Note
	for _, note := range order.Notes {
		notes = append(notes, Note{
			Type:      string(note.Type),
			Text:      note.Text,
			Author:    note.Author,
			CreatedAt: note.CreatedAt,
		})
	}

	return &Order{
		ID:             order.ID,
		CustomerID:     order.CustomerID,
		Status:         string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		Currency:       order.Currency,
		Totals:         toTotalsMessage(order.Totals),
		DiscountCode:   order.DiscountCode,
		TrackingNumber: order.TrackingNumber,
		Notes:          notes,
		Items:          items,
		Version:        order.Version,
		PlacedAt:       order.PlacedAt,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}
}

func toHistoryMessage(entry domain.StatusHistoryEntry) *HistoryEntry {
	return &HistoryEntry{
		ID:             entry.ID,
		OrderID:        entry.OrderID,
		Field:          string(entry.Field),
		OldStatus:      entry.OldStatus,
		NewStatus:      entry.NewStatus,
		ChangedBy:      entry.ChangedBy,
		ChangedAt:      entry.ChangedAt,
		Note:           entry.Note,
		IsSystemChange: entry.IsSystemChange,
		Metadata:       entry.Metadata,
	}
}
