package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName — полное имя gRPC-сервиса.
const ServiceName = "ordercore.v1.OrderLifecycleService"

// OrderLifecycleServer — серверная сторона ordercore.v1.OrderLifecycleService.
type OrderLifecycleServer interface {
	CreateOrder(context.Context, *CreateOrderRequest) (*OrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*OrderResponse, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*OrderResponse, error)
	MarkOrderPaid(context.Context, *MarkOrderPaidRequest) (*OrderResponse, error)
	MarkOrderShipped(context.Context, *MarkOrderShippedRequest) (*OrderResponse, error)
	MarkOrderCompleted(context.Context, *MarkOrderCompletedRequest) (*OrderResponse, error)
	RefundOrderPayment(context.Context, *RefundOrderPaymentRequest) (*OrderResponse, error)
	ApplyDiscount(context.Context, *ApplyDiscountRequest) (*OrderResponse, error)
	RemoveDiscount(context.Context, *RemoveDiscountRequest) (*OrderResponse, error)
	AddItem(context.Context, *AddItemRequest) (*OrderResponse, error)
	UpdateItem(context.Context, *UpdateItemRequest) (*OrderResponse, error)
	LogStatusChange(context.Context, *LogStatusChangeRequest) (*LogStatusChangeResponse, error)
	GetOrderTimeline(context.Context, *GetOrderTimelineRequest) (*GetOrderTimelineResponse, error)
	CalculateTotals(context.Context, *CalculateTotalsRequest) (*CalculateTotalsResponse, error)
}

// OrderLifecycleServiceDesc описывает методы сервиса для grpc.Server.
var OrderLifecycleServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderLifecycleServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateOrder", OrderLifecycleServer.CreateOrder),
		unaryMethod("GetOrder", OrderLifecycleServer.GetOrder),
		unaryMethod("CancelOrder", OrderLifecycleServer.CancelOrder),
		unaryMethod("MarkOrderPaid", OrderLifecycleServer.MarkOrderPaid),
		unaryMethod("MarkOrderShipped", OrderLifecycleServer.MarkOrderShipped),
		unaryMethod("MarkOrderCompleted", OrderLifecycleServer.MarkOrderCompleted),
		unaryMethod("RefundOrderPayment", OrderLifecycleServer.RefundOrderPayment),
		unaryMethod("ApplyDiscount", OrderLifecycleServer.ApplyDiscount),
		unaryMethod("RemoveDiscount", OrderLifecycleServer.RemoveDiscount),
		unaryMethod("AddItem", OrderLifecycleServer.AddItem),
		unaryMethod("UpdateItem", OrderLifecycleServer.UpdateItem),
		unaryMethod("LogStatusChange", OrderLifecycleServer.LogStatusChange),
		unaryMethod("GetOrderTimeline", OrderLifecycleServer.GetOrderTimeline),
		unaryMethod("CalculateTotals", OrderLifecycleServer.CalculateTotals),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ordercore/v1/order_lifecycle",
}

// RegisterOrderLifecycleServer регистрирует реализацию сервиса.
func RegisterOrderLifecycleServer(registrar grpc.ServiceRegistrar, srv OrderLifecycleServer) {
	registrar.RegisterService(&OrderLifecycleServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unaryMethod строит обработчик так же, как это делает protoc-gen-go-grpc.
func unaryMethod[Req, Resp any](
	name string,
	call func(OrderLifecycleServer, context.Context, *Req) (*Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(OrderLifecycleServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(name),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
