package app

import (
	"os"
	"slices"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/giftkart/internal/domain/order"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	NotifyLog   = "log"
	NotifyKafka = "kafka"
	NotifyAMQP  = "amqp"
)

// Config holds the complete application configuration, loadable from
// environment variables (KART_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage      string `default:"postgres" usage:"Storage backend: postgres or memory"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (KART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	SeedFile     string `default:"" usage:"JSON catalog loaded at startup (memory storage) or by seed-db" flag:"seed-file"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (KART_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Checkout     CheckoutConfig
	Redis        RedisConfig
	Notify       NotifyConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// CheckoutConfig holds the pricing policy and order creation limits.
// Amounts are decimal strings.
type CheckoutConfig struct {
	TaxRate               string        `default:"0.18" usage:"Tax rate as a fraction of the discounted subtotal"`
	FreeShippingThreshold string        `default:"500" usage:"Subtotal from which shipping is free"`
	ShippingFee           string        `default:"25" usage:"Flat shipping fee below the threshold"`
	Timeout               time.Duration `default:"5s" usage:"Upper bound for a single order creation"`
	AutoConfirm           bool          `default:"false" usage:"Confirm non-corporate orders right after creation"`
	Location              string        `default:"UTC" usage:"Time zone of the order number day"`
}

// RedisConfig enables Idempotency-Key support when Addr is set.
type RedisConfig struct {
	Addr           string        `default:"" usage:"Redis address for idempotency keys; empty disables them"`
	Password       string        `default:"" usage:"Redis password"`
	DB             int           `default:"0" usage:"Redis database"`
	IdempotencyTTL time.Duration `default:"24h" usage:"How long a completed checkout is replayed"`
}

// NotifyConfig selects where order events are published.
type NotifyConfig struct {
	Driver    string   `default:"log" usage:"Event sink: log, kafka or amqp"`
	Brokers   []string `usage:"Kafka brokers"`
	Topic     string   `default:"giftkart.orders" usage:"Kafka topic"`
	AMQPURL   string   `default:"" usage:"AMQP broker URL" flag:"amqp-url"`
	Queue     string   `default:"giftkart.orders" usage:"AMQP queue"`
	QueueSize int      `default:"256" usage:"Events buffered before new ones are dropped"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "KART",
		Files:     []string{"config.yaml", "/etc/kart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's KART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	// Trailing commas in KART_NOTIFY_BROKERS leave empty entries.
	c.Notify.Brokers = slices.DeleteFunc(c.Notify.Brokers, func(s string) bool { return s == "" })
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set KART_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage %q: use %s or %s", c.Storage, StoragePostgres, StorageMemory)
	}

	switch c.Notify.Driver {
	case NotifyLog:
	case NotifyKafka:
		if len(c.Notify.Brokers) == 0 || c.Notify.Topic == "" {
			return errors.New("kafka notifications need brokers and a topic")
		}
	case NotifyAMQP:
		if c.Notify.AMQPURL == "" || c.Notify.Queue == "" {
			return errors.New("amqp notifications need a URL and a queue")
		}
	default:
		return errors.Errorf("unknown notify driver %q", c.Notify.Driver)
	}

	if _, err := c.Checkout.Policy(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Checkout.Location); err != nil {
		return errors.Wrap(err, "checkout location")
	}
	return nil
}

// Policy parses the configured pricing policy.
func (c CheckoutConfig) Policy() (order.Policy, error) {
	var (
		p   order.Policy
		err error
	)
	if p.TaxRate, err = decimal.NewFromString(c.TaxRate); err != nil {
		return p, errors.Wrap(err, "tax rate")
	}
	if p.FreeShippingThreshold, err = decimal.NewFromString(c.FreeShippingThreshold); err != nil {
		return p, errors.Wrap(err, "free shipping threshold")
	}
	if p.ShippingFee, err = decimal.NewFromString(c.ShippingFee); err != nil {
		return p, errors.Wrap(err, "shipping fee")
	}
	if p.TaxRate.IsNegative() || p.FreeShippingThreshold.IsNegative() || p.ShippingFee.IsNegative() {
		return p, errors.New("checkout amounts must not be negative")
	}
	return p, nil
}
