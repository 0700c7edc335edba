package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix — префикс переменных окружения сервиса (ORDERCORE_GRPC_ADDR и т.д.).
const EnvPrefix = "ORDERCORE"

// StorageDriver выбирает хранилище заказов.
type StorageDriver = string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// CacheDriver выбирает кэш read-моделей.
type CacheDriver = string

const (
	CacheDriverMemory CacheDriver = "memory"
	CacheDriverRedis  CacheDriver = "redis"
	CacheDriverNone   CacheDriver = "none"
)

// Config описывает настройки запуска приложения.
type Config struct {
	GRPCAddr    string `envconfig:"GRPC_ADDR"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	StorageDriver       StorageDriver `envconfig:"STORAGE_DRIVER"`
	PostgresDSN         string        `envconfig:"POSTGRES_DSN"`
	PostgresAutoMigrate bool          `envconfig:"POSTGRES_AUTO_MIGRATE"`

	CacheDriver CacheDriver   `envconfig:"CACHE_DRIVER"`
	RedisAddr   string        `envconfig:"REDIS_ADDR"`
	CacheTTL    time.Duration `envconfig:"CACHE_TTL"`

	// KafkaBrokers — список через запятую; пустое значение отключает Kafka.
	KafkaBrokers      string        `envconfig:"KAFKA_BROKERS"`
	KafkaGroupID      string        `envconfig:"KAFKA_GROUP_ID"`
	KafkaMaxRetries   int           `envconfig:"KAFKA_MAX_RETRIES"`
	KafkaRetryBackoff time.Duration `envconfig:"KAFKA_RETRY_BACKOFF"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `envconfig:"OUTBOX_MAX_ATTEMPTS"`
	OutboxRetryDelay   time.Duration `envconfig:"OUTBOX_RETRY_DELAY"`
	// OutboxStaleAfter — возраст неотправленного события, после которого /healthz сообщает degraded.
	OutboxStaleAfter time.Duration `envconfig:"OUTBOX_STALE_AFTER"`

	// Повторы операции при конфликте версий заказа.
	MutationMaxAttempts int           `envconfig:"MUTATION_MAX_ATTEMPTS"`
	MutationRetryDelay  time.Duration `envconfig:"MUTATION_RETRY_DELAY"`

	IdempotencyTTL              time.Duration `envconfig:"IDEMPOTENCY_TTL"`
	IdempotencyCleanupInterval  time.Duration `envconfig:"IDEMPOTENCY_CLEANUP_INTERVAL"`
	IdempotencyCleanupBatchSize int           `envconfig:"IDEMPOTENCY_CLEANUP_BATCH_SIZE"`
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		LogLevel:            "info",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		CacheDriver:         CacheDriverMemory,
		RedisAddr:           "localhost:6379",
		CacheTTL:            5 * time.Minute,
		KafkaGroupID:        "ordercore",
		KafkaMaxRetries:     3,
		KafkaRetryBackoff:   100 * time.Millisecond,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		OutboxStaleAfter:    5 * time.Minute,
		MutationMaxAttempts: 3,
		MutationRetryDelay:  10 * time.Millisecond,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
	}
}

// LoadConfig накладывает переменные окружения ORDERCORE_* на DefaultConfig.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.CacheDriver = strings.ToLower(strings.TrimSpace(c.CacheDriver))
	c.PostgresDSN = strings.TrimSpace(c.PostgresDSN)
	c.KafkaBrokers = strings.TrimSpace(c.KafkaBrokers)
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	switch c.CacheDriver {
	case CacheDriverMemory, CacheDriverNone, "":
	case CacheDriverRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported cache driver %q", c.CacheDriver))
	}

	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("OUTBOX_BATCH_SIZE must be > 0"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("OUTBOX_MAX_ATTEMPTS must be > 0"))
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("OUTBOX_POLL_INTERVAL must be > 0"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_TTL must be > 0"))
	}
	if c.IdempotencyCleanupInterval <= 0 || c.IdempotencyCleanupBatchSize <= 0 {
		errs = append(errs, errors.New("idempotency cleanup interval and batch size must be > 0"))
	}
	if c.OutboxRetryDelay < 0 || c.KafkaRetryBackoff < 0 || c.MutationRetryDelay < 0 {
		errs = append(errs, errors.New("retry delays must be >= 0"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Brokers возвращает адреса брокеров Kafka.
func (c Config) Brokers() []string {
	if c.KafkaBrokers == "" {
		return nil
	}
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}
