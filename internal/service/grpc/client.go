package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
)

// Client — типизированный клиент ordercore.v1.OrderLifecycleService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient создаёт клиента поверх соединения. Кодек JSON выбирается автоматически.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	callOpts := append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, callOpts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c, "CreateOrder", in, opts)
}

func (c *Client) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c, "GetOrder", in, opts)
}

func (c *Client) CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c, "CancelOrder", in, opts)
}

func (c *Client) MarkOrderPaid(ctx context.Context, in *MarkOrderPaidRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c, "MarkOrderPaid", in, opts)
}

func (c *Client) MarkOrderShipped(ctx context.Context, in *MarkOrderShippedRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c, "MarkOrderShipped", in, opts)
}

func (c *Client) MarkOrderCompleted(ctx context.Context, in *MarkOrderCompletedRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c, "MarkOrderCompleted", in, opts)
}

func (c *Client) RefundOrderPayment(ctx context.Context, in *RefundOrderPaymentRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c, "RefundOrderPayment", in, opts)
}

func (c *Client) ApplyDiscount(ctx context.Context, in *ApplyDiscountRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c, "ApplyDiscount", in, opts)
}

func (c *Client) RemoveDiscount(ctx context.Context, in *RemoveDiscountRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c, "RemoveDiscount", in, opts)
}

func (c *Client) AddItem(ctx context.Context, in *AddItemRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c, "AddItem", in, opts)
}

func (c *Client) UpdateItem(ctx context.Context, in *UpdateItemRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c, "UpdateItem", in, opts)
}

func (c *Client) LogStatusChange(ctx context.Context, in *LogStatusChangeRequest, opts ...grpc.CallOption) (*LogStatusChangeResponse, error) {
	return invoke[LogStatusChangeResponse](ctx, c, "LogStatusChange", in, opts)
}

func (c *Client) GetOrderTimeline(ctx context.Context, in *GetOrderTimelineRequest, opts ...grpc.CallOption) (*GetOrderTimelineResponse, error) {
	return invoke[GetOrderTimelineResponse](ctx, c, "GetOrderTimeline", in, opts)
}

func (c *Client) CalculateTotals(ctx context.Context, in *CalculateTotalsRequest, opts ...grpc.CallOption) (*CalculateTotalsResponse, error) {
	return invoke[CalculateTotalsResponse](ctx, c, "CalculateTotals", in, opts)
}
