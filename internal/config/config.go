package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Telemetry struct {
	OTLPEndpoint   string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	ServiceVersion string `envconfig:"SERVICE_VERSION" default:"0.1.0"`
}

type Orders struct {
	Telemetry

	Port               string        `envconfig:"PORT" default:"8081"`
	PostgresURL        string        `envconfig:"POSTGRES_URL" required:"true"`
	KafkaBrokers       []string      `envconfig:"KAFKA_BROKERS"`
	RedisAddr          string        `envconfig:"REDIS_ADDR"`
	CartCacheTTL       time.Duration `envconfig:"CART_CACHE_TTL" default:"15m"`
	StripeAPIKey       string        `envconfig:"STRIPE_API_KEY"`
	StripeAPIURL       string        `envconfig:"STRIPE_API_URL"`
	BreakerTimeout     time.Duration `envconfig:"PAYMENT_BREAKER_TIMEOUT" default:"30s"`
	BreakerFailures    uint32        `envconfig:"PAYMENT_BREAKER_FAILURES" default:"5"`
	OrderTransitions   string        `envconfig:"ORDER_TRANSITIONS"`
	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
}

type Catalog struct {
	Telemetry

	Port        string `envconfig:"PORT" default:"8082"`
	PostgresURL string `envconfig:"POSTGRES_URL" required:"true"`
}

type Worker struct {
	Telemetry

	KafkaBrokers    []string `envconfig:"KAFKA_BROKERS" required:"true"`
	EmailServiceURL string   `envconfig:"EMAIL_SERVICE_URL" required:"true"`
	GroupID         string   `envconfig:"CONSUMER_GROUP_ID" default:"notification-worker"`
}

type Email struct {
	Port string `envconfig:"PORT" default:"8084"`
}

type Gateway struct {
	Telemetry

	Port              string `envconfig:"PORT" default:"8080"`
	OrdersServiceURL  string `envconfig:"ORDERS_SERVICE_URL" required:"true"`
	CatalogServiceURL string `envconfig:"CATALOG_SERVICE_URL" required:"true"`
	// TrustIdentityHeader forwards X-User-Email from clients. Enable only behind an
	// authenticating proxy that owns the header.
	TrustIdentityHeader bool `envconfig:"TRUST_IDENTITY_HEADER" default:"false"`
}

type Migrate struct {
	PostgresURL    string `envconfig:"POSTGRES_URL" required:"true"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"file://migrations"`
}

// Load reads an optional .env file into the environment and then fills cfg from it.
// Variables already set in the environment win over the file.
func Load[T any]() (*T, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	var cfg T
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
