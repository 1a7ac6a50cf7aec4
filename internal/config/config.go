package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
)

// -----------------------------------------------------------------------------
// Environment variable configuration guidelines:
// - required: table names and queue URLs differ per stage
// - default: everything with a sensible local value
// -----------------------------------------------------------------------------

type Config struct {
	Server      ServerConfig
	Log         LogConfig
	AWS         AWSConfig
	Tables      TablesConfig
	Queue       QueueConfig
	Reservation ReservationConfig
	Loyalty     LoyaltyConfig
	Idempotency IdempotencyConfig
}

type ServerConfig struct {
	Port     string `envconfig:"PORT" default:"8080"`
	RunLocal bool   `envconfig:"RUN_LOCAL" default:"false"`
}

type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

type AWSConfig struct {
	Region           string `envconfig:"AWS_REGION" default:"us-east-1"`
	EndpointOverride string `envconfig:"AWS_ENDPOINT_OVERRIDE"`
	MetricsNamespace string `envconfig:"METRICS_NAMESPACE" default:"OrderFlow"`
}

type TablesConfig struct {
	Orders        string `envconfig:"ORDERS_TABLE" required:"true"`
	OrderTimeouts string `envconfig:"ORDER_TIMEOUTS_TABLE" required:"true"`
	Idempotency   string `envconfig:"IDEMPOTENCY_TABLE" required:"true"`
	PointLedger   string `envconfig:"POINT_LEDGER_TABLE" required:"true"`
	Customers     string `envconfig:"CUSTOMERS_TABLE" required:"true"`
}

type QueueConfig struct {
	// Empty disables the outbound order-event notifier.
	OrderEventsURL string `envconfig:"ORDER_EVENTS_QUEUE_URL"`
}

// Reservation backends.
const (
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
	BackendNone     = "none"
)

// Reservation failure policies.
const (
	PolicyFailOpen   = "fail-open"
	PolicyFailClosed = "fail-closed"
)

type ReservationConfig struct {
	Backend       string        `envconfig:"RESERVATION_BACKEND" default:"redis"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	Table         string        `envconfig:"RESERVATION_TABLE" default:"inventory-reservations"`
	TTL           time.Duration `envconfig:"RESERVATION_TTL" default:"15m"`
	FailurePolicy string        `envconfig:"RESERVATION_FAILURE_POLICY" default:"fail-open"`
	MaxFanOut     int           `envconfig:"RESERVATION_MAX_FANOUT" default:"16"`
}

type LoyaltyConfig struct {
	SettingsFile  string `envconfig:"LOYALTY_CONFIG_FILE"`
	TriggerStatus string `envconfig:"LOYALTY_TRIGGER_STATUS" default:"paid"`
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"48h"`
}

// LoadConfig reads a local .env when present, then the process environment.
func LoadConfig() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, errs.Wrap(err, "failed to load .env")
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, errs.Wrap(err, "failed to process env config")
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Reservation.Backend {
	case BackendRedis, BackendDynamoDB, BackendNone:
	default:
		return errs.Newf("unknown reservation backend %q", c.Reservation.Backend)
	}
	switch c.Reservation.FailurePolicy {
	case PolicyFailOpen, PolicyFailClosed:
	default:
		return errs.Newf("unknown reservation failure policy %q", c.Reservation.FailurePolicy)
	}
	if c.Reservation.TTL <= 0 {
		return errs.New("RESERVATION_TTL must be positive")
	}
	return nil
}

func NewTestConfig() Config {
	return Config{
		Server: ServerConfig{Port: "8889"},
		Log:    LogConfig{Level: "error"},
		AWS:    AWSConfig{Region: "us-east-1", MetricsNamespace: "OrderFlowTest"},
		Tables: TablesConfig{
			Orders:        "orders",
			OrderTimeouts: "order-timeouts",
			Idempotency:   "idempotency",
			PointLedger:   "point-ledger",
			Customers:     "customers",
		},
		Reservation: ReservationConfig{
			Backend:       BackendNone,
			Table:         "inventory-reservations",
			TTL:           15 * time.Minute,
			FailurePolicy: PolicyFailOpen,
			MaxFanOut:     16,
		},
		Loyalty:     LoyaltyConfig{TriggerStatus: "paid"},
		Idempotency: IdempotencyConfig{TTL: 48 * time.Hour},
	}
}
