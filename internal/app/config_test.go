package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, ":50051", cfg.GRPCAddr)
	require.Equal(t, ":9090", cfg.MetricsAddr)
	require.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	require.Equal(t, CacheDriverMemory, cfg.CacheDriver)
	require.True(t, cfg.PostgresAutoMigrate)
	require.Empty(t, cfg.KafkaBrokers)
	require.Equal(t, 5*time.Minute, cfg.CacheTTL)
	require.Equal(t, 3, cfg.MutationMaxAttempts)
	require.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	require.Equal(t, 500, cfg.IdempotencyCleanupBatchSize)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("ORDERCORE_GRPC_ADDR", "127.0.0.1:7000")
	t.Setenv("ORDERCORE_STORAGE_DRIVER", " Postgres ")
	t.Setenv("ORDERCORE_POSTGRES_DSN", "postgres://u:p@localhost:5432/orders")
	t.Setenv("ORDERCORE_CACHE_DRIVER", "none")
	t.Setenv("ORDERCORE_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("ORDERCORE_OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("ORDERCORE_MUTATION_MAX_ATTEMPTS", "5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:7000", cfg.GRPCAddr)
	require.Equal(t, StorageDriverPostgres, cfg.StorageDriver)
	require.Equal(t, "postgres://u:p@localhost:5432/orders", cfg.PostgresDSN)
	require.Equal(t, CacheDriverNone, cfg.CacheDriver)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers())
	require.Equal(t, 250*time.Millisecond, cfg.OutboxPollInterval)
	require.Equal(t, 5, cfg.MutationMaxAttempts)
	// не заданные переменные берутся из DefaultConfig
	require.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	t.Setenv("ORDERCORE_OUTBOX_BATCH_SIZE", "many")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfig_PostgresWithoutDSN(t *testing.T) {
	t.Setenv("ORDERCORE_STORAGE_DRIVER", "postgres")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "POSTGRES_DSN")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unsupported storage",
			mutate:  func(c *Config) { c.StorageDriver = "sqlite" },
			wantErr: "unsupported storage driver",
		},
		{
			name:    "unsupported cache",
			mutate:  func(c *Config) { c.CacheDriver = "memcached" },
			wantErr: "unsupported cache driver",
		},
		{
			name: "redis without address",
			mutate: func(c *Config) {
				c.CacheDriver = CacheDriverRedis
				c.RedisAddr = ""
			},
			wantErr: "REDIS_ADDR",
		},
		{
			name:    "zero batch",
			mutate:  func(c *Config) { c.OutboxBatchSize = 0 },
			wantErr: "OUTBOX_BATCH_SIZE",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.OutboxMaxAttempts = 0 },
			wantErr: "OUTBOX_MAX_ATTEMPTS",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.OutboxPollInterval = 0 },
			wantErr: "OUTBOX_POLL_INTERVAL",
		},
		{
			name:    "negative delay",
			mutate:  func(c *Config) { c.MutationRetryDelay = -time.Second },
			wantErr: "retry delays",
		},
		{
			name:    "zero idempotency ttl",
			mutate:  func(c *Config) { c.IdempotencyTTL = 0 },
			wantErr: "IDEMPOTENCY_TTL",
		},
		{
			name:    "zero cleanup batch",
			mutate:  func(c *Config) { c.IdempotencyCleanupBatchSize = 0 },
			wantErr: "idempotency cleanup",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestConfig_Brokers(t *testing.T) {
	cfg := DefaultConfig()
	require.Nil(t, cfg.Brokers())

	cfg.KafkaBrokers = " , "
	require.Empty(t, cfg.Brokers())

	cfg.KafkaBrokers = "localhost:9092"
	require.Equal(t, []string{"localhost:9092"}, cfg.Brokers())
}
