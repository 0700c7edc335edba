// Команда loadtest нагружает gRPC API жизненного цикла заказов и печатает сводку латентностей.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	grpcsvc "github.com/vladislavdragonenkov/ordercore/internal/service/grpc"
)

const loadActor = "loadtest"

type scenario string

const (
	scenarioCreate   scenario = "create"
	scenarioFulfil   scenario = "fulfil"
	scenarioDiscount scenario = "discount"
	scenarioCancel   scenario = "cancel"
	scenarioRefund   scenario = "refund"
)

// steps — вызовы после CreateOrder для каждого сценария.
var steps = map[scenario][]string{
	scenarioCreate:   nil,
	scenarioFulfil:   {"MarkOrderPaid", "MarkOrderShipped", "MarkOrderCompleted"},
	scenarioDiscount: {"ApplyDiscount", "MarkOrderPaid"},
	scenarioCancel:   {"MarkOrderPaid", "CancelOrder"},
	scenarioRefund:   {"MarkOrderPaid", "MarkOrderShipped", "MarkOrderCompleted", "RefundOrderPayment"},
}

type config struct {
	addr        string
	total       int
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	scenario    scenario
	currency    string
	sku         string
	unitPrice   string
	discount    string
	outputPath  string
}

func (cfg config) validate() error {
	if _, ok := steps[cfg.scenario]; !ok {
		return fmt.Errorf("unsupported scenario: %s", cfg.scenario)
	}
	switch {
	case cfg.duration < 0:
		return errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return errors.New("total must be > 0 when duration is not set")
	case cfg.concurrency <= 0:
		return errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return errors.New("timeout must be > 0")
	case cfg.currency == "":
		return errors.New("currency is required")
	case cfg.sku == "":
		return errors.New("sku is required")
	}
	return nil
}

// orderClient — часть grpcsvc.Client, которую использует нагрузка.
type orderClient interface {
	CreateOrder(ctx context.Context, in *grpcsvc.CreateOrderRequest, opts ...grpc.CallOption) (*grpcsvc.OrderResponse, error)
	MarkOrderPaid(ctx context.Context, in *grpcsvc.MarkOrderPaidRequest, opts ...grpc.CallOption) (*grpcsvc.OrderResponse, error)
	MarkOrderShipped(ctx context.Context, in *grpcsvc.MarkOrderShippedRequest, opts ...grpc.CallOption) (*grpcsvc.OrderResponse, error)
	MarkOrderCompleted(ctx context.Context, in *grpcsvc.MarkOrderCompletedRequest, opts ...grpc.CallOption) (*grpcsvc.OrderResponse, error)
	CancelOrder(ctx context.Context, in *grpcsvc.CancelOrderRequest, opts ...grpc.CallOption) (*grpcsvc.OrderResponse, error)
	RefundOrderPayment(ctx context.Context, in *grpcsvc.RefundOrderPaymentRequest, opts ...grpc.CallOption) (*grpcsvc.OrderResponse, error)
	ApplyDiscount(ctx context.Context, in *grpcsvc.ApplyDiscountRequest, opts ...grpc.CallOption) (*grpcsvc.OrderResponse, error)
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "loadtest",
		Usage: "drive order lifecycle scenarios against the gRPC API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "localhost:50051", EnvVars: []string{"ORDERCORE_GRPC_ADDR"}},
			&cli.IntFlag{Name: "total", Value: 400, Usage: "scenarios to run; with --duration acts as an upper bound"},
			&cli.DurationFlag{Name: "duration", Usage: "time-based run duration"},
			&cli.IntFlag{Name: "concurrency", Value: 40},
			&cli.IntFlag{Name: "connections", Value: 20},
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Second, Usage: "per-RPC timeout"},
			&cli.StringFlag{Name: "scenario", Value: string(scenarioCreate), Usage: "create | fulfil | discount | cancel | refund"},
			&cli.StringFlag{Name: "currency", Value: "EUR"},
			&cli.StringFlag{Name: "sku", Value: "SKU-LOAD"},
			&cli.StringFlag{Name: "unit-price", Value: "25.00"},
			&cli.StringFlag{Name: "discount", Value: "10", Usage: "percentage used by the discount scenario"},
			&cli.StringFlag{Name: "output", Usage: "optional JSON report path"},
		},
		Action: func(c *cli.Context) error {
			cfg := config{
				addr:        c.String("addr"),
				total:       c.Int("total"),
				duration:    c.Duration("duration"),
				concurrency: c.Int("concurrency"),
				connections: c.Int("connections"),
				timeout:     c.Duration("timeout"),
				scenario:    scenario(c.String("scenario")),
				currency:    c.String("currency"),
				sku:         c.String("sku"),
				unitPrice:   c.String("unit-price"),
				discount:    c.String("discount"),
				outputPath:  c.String("output"),
			}
			if !c.IsSet("total") && cfg.duration > 0 {
				cfg.total = 0
			}
			if err := cfg.validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return run(c.Context, cfg)
		},
	}
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := newApp().RunContext(context.Background(), os.Args); err != nil {
		log.WithError(err).Fatal("load test failed")
	}
}

func run(ctx context.Context, cfg config) error {
	clients := make([]orderClient, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, err := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("create grpc client connection: %w", err)
		}
		defer conn.Close()
		clients = append(clients, grpcsvc.NewClient(conn))
	}

	startedAt := time.Now()
	col := execute(ctx, cfg, clients, fmt.Sprintf("%d", startedAt.UnixNano()))
	result := col.buildReport(startedAt, time.Since(startedAt))

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if result.FailedScenarios > 0 {
		return fmt.Errorf("%d of %d scenarios failed", result.FailedScenarios, result.TotalScenarios)
	}
	return nil
}

func execute(ctx context.Context, cfg config, clients []orderClient, runID string) *collector {
	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)

	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(client orderClient) {
			defer wg.Done()
			for index := range jobs {
				_ = runScenario(ctx, client, cfg, fmt.Sprintf("%s-%d", runID, index), col)
			}
		}(clients[workerID%len(clients)])
	}

	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()
	return col
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for i := 0; cfg.total <= 0 || i < cfg.total; i++ {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}

func runScenario(ctx context.Context, client orderClient, cfg config, key string, col *collector) (err error) {
	started := time.Now()
	defer func() {
		col.record(scenarioMethod, time.Since(started), grpcCode(err))
	}()

	var orderID string
	err = timed(withIdempotencyKey(ctx, key, "CreateOrder"), cfg.timeout, col, "CreateOrder", func(ctx context.Context) error {
		resp, err := client.CreateOrder(ctx, &grpcsvc.CreateOrderRequest{
			CustomerID: "load-" + key,
			Currency:   cfg.currency,
			Items:      []grpcsvc.ItemInput{{SKU: cfg.sku, UnitPrice: cfg.unitPrice}},
			ChangedBy:  loadActor,
		})
		if err == nil {
			orderID = resp.Order.ID
		}
		return err
	})
	if err != nil {
		return err
	}

	for _, method := range steps[cfg.scenario] {
		if err = timed(withIdempotencyKey(ctx, key, method), cfg.timeout, col, method, func(ctx context.Context) error {
			return callStep(ctx, client, cfg, method, orderID)
		}); err != nil {
			return err
		}
	}
	return nil
}

func callStep(ctx context.Context, client orderClient, cfg config, method, orderID string) error {
	var err error
	switch method {
	case "MarkOrderPaid":
		_, err = client.MarkOrderPaid(ctx, &grpcsvc.MarkOrderPaidRequest{OrderID: orderID, ChangedBy: loadActor})
	case "MarkOrderShipped":
		_, err = client.MarkOrderShipped(ctx, &grpcsvc.MarkOrderShippedRequest{OrderID: orderID, ChangedBy: loadActor, TrackingNumber: "TRK-" + orderID})
	case "MarkOrderCompleted":
		_, err = client.MarkOrderCompleted(ctx, &grpcsvc.MarkOrderCompletedRequest{OrderID: orderID, ChangedBy: loadActor})
	case "CancelOrder":
		_, err = client.CancelOrder(ctx, &grpcsvc.CancelOrderRequest{OrderID: orderID, ChangedBy: loadActor, Reason: "load-cancel"})
	case "RefundOrderPayment":
		_, err = client.RefundOrderPayment(ctx, &grpcsvc.RefundOrderPaymentRequest{OrderID: orderID, ChangedBy: loadActor, Reason: "load-refund"})
	case "ApplyDiscount":
		_, err = client.ApplyDiscount(ctx, &grpcsvc.ApplyDiscountRequest{OrderID: orderID, ChangedBy: loadActor, Amount: cfg.discount, Type: "percentage", Code: "LOAD"})
	default:
		err = status.Errorf(codes.Unimplemented, "unknown step %s", method)
	}
	return err
}

// withIdempotencyKey помечает вызов ключом: повтор того же шага сервер отдаст из кэша.
func withIdempotencyKey(ctx context.Context, key, method string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, grpcsvc.IdempotencyKeyHeader, key+":"+method)
}

func timed(ctx context.Context, timeout time.Duration, col *collector, method string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	col.record(method, time.Since(start), grpcCode(err))
	return err
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}
