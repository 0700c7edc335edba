// Команда dlq-reprocess возвращает сообщения из DLQ в исходные топики.
// По умолчанию работает в режиме dry-run и только печатает кандидатов.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vladislavdragonenkov/ordercore/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ordercore/internal/version"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers     []string
	sourceTopic string
	orderTopic  string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replayPublisher interface {
	PublishRaw(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	return a.consumer.Close()
}

type replayDeps struct {
	client    offsetClient
	consumer  partitionConsumerSource
	publisher replayPublisher
	closers   []func() error
}

func (d *replayDeps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}

var newReplayDeps = func(cfg config) (*replayDeps, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	deps := &replayDeps{client: client, closers: []func() error{client.Close}}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	deps.consumer = saramaConsumerAdapter{consumer: rawConsumer}
	deps.closers = append(deps.closers, rawConsumer.Close)

	if !cfg.execute {
		return deps, nil
	}

	producer, err := kafka.NewProducer(cfg.brokers)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	deps.publisher = producer
	deps.closers = append(deps.closers, producer.Close)
	return deps, nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "dlq-reprocess",
		Usage:   "replay dead-lettered ordercore messages",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "brokers",
				Usage:    "Kafka brokers",
				EnvVars:  []string{"ORDERCORE_KAFKA_BROKERS"},
				Required: true,
			},
			&cli.StringFlag{Name: "source-topic", Value: kafka.TopicDeadLetterQueue, Usage: "DLQ topic to scan"},
			&cli.StringFlag{Name: "order-topic", Value: kafka.TopicOrderEvents, Usage: "target topic for outbox events"},
			&cli.IntFlag{Name: "limit", Value: defaultReplayLimit, Usage: "max number of messages to scan"},
			&cli.BoolFlag{Name: "execute", Usage: "publish messages; default is dry-run"},
			&cli.BoolFlag{Name: "from-newest", Usage: "scan the latest messages first"},
			&cli.DurationFlag{Name: "idle-timeout", Value: defaultIdleTimeout, Usage: "idle timeout per partition"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := configFromContext(c)
			if err != nil {
				return err
			}
			return run(c.Context, cfg)
		},
	}
}

func configFromContext(c *cli.Context) (config, error) {
	cfg := config{
		brokers:     parseBrokers(c.StringSlice("brokers")),
		sourceTopic: c.String("source-topic"),
		orderTopic:  c.String("order-topic"),
		limit:       c.Int("limit"),
		execute:     c.Bool("execute"),
		fromNewest:  c.Bool("from-newest"),
		idleTimeout: c.Duration("idle-timeout"),
	}
	return cfg, cfg.validate()
}

func (cfg config) validate() error {
	switch {
	case len(cfg.brokers) == 0:
		return errors.New("kafka brokers are required")
	case cfg.sourceTopic == "":
		return errors.New("source-topic is required")
	case cfg.orderTopic == "":
		return errors.New("order-topic is required")
	case cfg.limit <= 0:
		return errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return errors.New("idle-timeout must be > 0")
	}
	return nil
}

func parseBrokers(raw []string) []string {
	brokers := make([]string, 0, len(raw))
	for _, broker := range raw {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := newApp().RunContext(context.Background(), os.Args); err != nil {
		log.WithError(err).Fatal("dlq replay failed")
	}
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
	}).Info("starting dlq replay")

	deps, err := newReplayDeps(cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	_, err = runReplay(ctx, cfg, deps)
	return err
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

func runReplay(ctx context.Context, cfg config, deps *replayDeps) (replayStats, error) {
	var total replayStats
	if cfg.execute && deps.publisher == nil {
		return total, errors.New("publisher is required in execute mode")
	}

	partitions, err := deps.client.Partitions(cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.processed >= cfg.limit {
			break
		}
		stats, err := processPartition(ctx, cfg, deps, partition, cfg.limit-total.processed)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.processed,
		"replayed":  total.replayed,
		"skipped":   total.skipped,
	}).Info("dlq replay finished")
	return total, nil
}

func processPartition(ctx context.Context, cfg config, deps *replayDeps, partition int32, limit int) (replayStats, error) {
	var stats replayStats

	oldest, err := deps.client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := deps.client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if cfg.fromNewest {
		start = max(newest-int64(limit), oldest)
	}

	pc, err := deps.consumer.ConsumePartition(cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	for stats.processed < limit {
		idle := time.NewTimer(cfg.idleTimeout)
		select {
		case <-ctx.Done():
			idle.Stop()
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case consumerErr := <-pc.Errors():
			idle.Stop()
			if consumerErr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, consumerErr)
			}
		case msg, ok := <-pc.Messages():
			idle.Stop()
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			stats.processed++

			if err := replayMessage(ctx, cfg, deps.publisher, msg); err != nil {
				if errors.Is(err, errPublish) {
					return stats, err
				}
				stats.skipped++
				log.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip dlq message")
			} else {
				stats.replayed++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

var errPublish = errors.New("publish replay")

func replayMessage(ctx context.Context, cfg config, publisher replayPublisher, msg *sarama.ConsumerMessage) error {
	replay, err := kafka.ReplayFromDLQ(msg, cfg.orderTopic)
	if err != nil {
		return err
	}

	fields := log.Fields{
		"partition":    msg.Partition,
		"offset":       msg.Offset,
		"target_topic": replay.Topic,
		"key":          replay.Key,
	}
	if !cfg.execute {
		log.WithFields(fields).Info("dlq replay candidate")
		return nil
	}

	headers := map[string]string{kafka.HeaderOriginalTopic: msg.Topic}
	if err := publisher.PublishRaw(ctx, replay.Topic, replay.Key, replay.Value, headers); err != nil {
		return fmt.Errorf("%w: %v", errPublish, err)
	}
	log.WithFields(fields).Debug("dlq message replayed")
	return nil
}
