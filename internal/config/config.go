// Package config loads the shop configuration: the reusable core sections plus
// storage, session, order, shop, metrics and Kafka settings.
package config

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/flowerbot/core/config"
	coredatabase "github.com/m3rciful/flowerbot/core/database"
)

const (
	EnginePostgres = "postgres"
	EngineMemory   = "memory"
)

// StorageConfig selects the persistence engine.
type StorageConfig struct {
	Engine string `yaml:"engine" envconfig:"STORAGE_ENGINE"`
}

// SessionConfig controls session expiry.
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl" envconfig:"SESSION_TTL"`
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"SESSION_SWEEP_INTERVAL"`
}

// OrdersConfig tunes checkout.
type OrdersConfig struct {
	RequirePhone bool `yaml:"require_phone" envconfig:"ORDERS_REQUIRE_PHONE"`
	RequireArea  bool `yaml:"require_area" envconfig:"ORDERS_REQUIRE_AREA"`
	// RetryAttempts and RetryBackoff apply to events rejected with STORAGE_FAILURE.
	RetryAttempts int           `yaml:"retry_attempts" envconfig:"ORDERS_RETRY_ATTEMPTS"`
	RetryBackoff  time.Duration `yaml:"retry_backoff" envconfig:"ORDERS_RETRY_BACKOFF"`
	MaxQuantity   int           `yaml:"max_quantity" envconfig:"ORDERS_MAX_QUANTITY"`
	MaxLineQty    int           `yaml:"max_line_quantity" envconfig:"ORDERS_MAX_LINE_QUANTITY"`
}

// ShopConfig holds presentation and seed data.
type ShopConfig struct {
	Currency      string   `yaml:"currency" envconfig:"SHOP_CURRENCY"`
	DefaultCities []string `yaml:"default_cities" envconfig:"SHOP_DEFAULT_CITIES"`
	Terms         string   `yaml:"terms"`
}

// MetricsConfig configures the ops HTTP server; an empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
}

// KafkaConfig configures the order event publisher; no brokers disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" envconfig:"KAFKA_BROKERS"`
	Topic   string   `yaml:"topic" envconfig:"KAFKA_TOPIC"`
}

// Enabled reports whether events should be published.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Storage  StorageConfig       `yaml:"storage"`
	Session  SessionConfig       `yaml:"session"`
	Orders   OrdersConfig        `yaml:"orders"`
	Shop     ShopConfig          `yaml:"shop"`
	Metrics  MetricsConfig       `yaml:"metrics"`
	Kafka    KafkaConfig         `yaml:"kafka"`
}

// CoreConfig exposes the embedded core configuration to the runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Load reads path, overlays the environment and normalizes the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.LoadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the configuration and applies defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	cfg.Storage.Engine = strings.ToLower(strings.TrimSpace(cfg.Storage.Engine))
	switch cfg.Storage.Engine {
	case "":
		cfg.Storage.Engine = EnginePostgres
	case EnginePostgres, EngineMemory:
	default:
		return fmt.Errorf("invalid storage.engine %q; allowed: postgres, memory", cfg.Storage.Engine)
	}
	if cfg.Storage.Engine == EnginePostgres {
		if err := normalizeDatabase(&cfg.Database); err != nil {
			return err
		}
	}

	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 24 * time.Hour
	}
	if cfg.Session.TTL < 0 {
		return fmt.Errorf("session.ttl must be >= 0")
	}
	if cfg.Session.SweepInterval <= 0 {
		cfg.Session.SweepInterval = 10 * time.Minute
	}

	if cfg.Orders.RetryAttempts <= 0 {
		cfg.Orders.RetryAttempts = 3
	}
	if cfg.Orders.RetryBackoff <= 0 {
		cfg.Orders.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.Orders.MaxQuantity <= 0 {
		cfg.Orders.MaxQuantity = 10
	}
	if cfg.Orders.MaxLineQty <= 0 {
		cfg.Orders.MaxLineQty = 99
	}
	if cfg.Orders.MaxLineQty < cfg.Orders.MaxQuantity {
		return fmt.Errorf("orders.max_line_quantity (%d) must be >= orders.max_quantity (%d)",
			cfg.Orders.MaxLineQty, cfg.Orders.MaxQuantity)
	}

	cfg.Shop.Currency = strings.ToUpper(strings.TrimSpace(cfg.Shop.Currency))
	if cfg.Shop.Currency == "" {
		cfg.Shop.Currency = "UAH"
	}
	cities := cfg.Shop.DefaultCities[:0]
	for _, c := range cfg.Shop.DefaultCities {
		if c = strings.TrimSpace(c); c != "" {
			cities = append(cities, c)
		}
	}
	cfg.Shop.DefaultCities = cities

	if cfg.Kafka.Enabled() && strings.TrimSpace(cfg.Kafka.Topic) == "" {
		cfg.Kafka.Topic = "flowerbot.orders"
	}
	return nil
}

func normalizeDatabase(db *coredatabase.Config) error {
	if strings.TrimSpace(db.Host) == "" {
		return fmt.Errorf("database.host is required for the postgres engine")
	}
	if strings.TrimSpace(db.Name) == "" {
		return fmt.Errorf("database.name is required for the postgres engine")
	}
	if db.Port == "" {
		db.Port = "5432"
	}
	if db.SSLMode == "" {
		db.SSLMode = "disable"
	}
	if db.MaxConnections <= 0 {
		db.MaxConnections = 10
	}
	return nil
}
