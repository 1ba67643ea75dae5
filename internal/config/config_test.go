package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
telegram:
  token: abc
  admin_ids: [42]
storage:
  engine: memory
session:
  ttl: 30m
shop:
  default_cities: ["Kyiv", " ", "Lviv"]
kafka:
  brokers: ["localhost:9092"]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CoreConfig().Telegram.Token != "abc" {
		t.Fatalf("core config not embedded: %+v", cfg.CoreConfig())
	}
	if cfg.Storage.Engine != EngineMemory || cfg.Session.TTL != 30*time.Minute {
		t.Fatalf("storage/session = %+v %+v", cfg.Storage, cfg.Session)
	}
	if cfg.Session.SweepInterval != 10*time.Minute || cfg.Orders.RetryAttempts != 3 || cfg.Orders.MaxQuantity != 10 {
		t.Fatalf("defaults not applied: %+v %+v", cfg.Session, cfg.Orders)
	}
	if cfg.Shop.Currency != "UAH" || len(cfg.Shop.DefaultCities) != 2 {
		t.Fatalf("shop = %+v", cfg.Shop)
	}
	if cfg.Kafka.Topic != "flowerbot.orders" {
		t.Fatalf("kafka topic default = %q", cfg.Kafka.Topic)
	}
}

func TestEnvOverridesNestedSections(t *testing.T) {
	t.Setenv("BOT_TOKEN", "tok")
	t.Setenv("STORAGE_ENGINE", "postgres")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "shop")
	t.Setenv("ORDERS_REQUIRE_PHONE", "true")
	t.Setenv("ORDERS_REQUIRE_AREA", "true")
	t.Setenv("ORDERS_RETRY_BACKOFF", "1s")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Host != "db" || cfg.Database.Port != "5432" || cfg.Database.SSLMode != "disable" {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if !cfg.Orders.RequirePhone || !cfg.Orders.RequireArea || cfg.Orders.RetryBackoff != time.Second {
		t.Fatalf("orders = %+v", cfg.Orders)
	}
}

func TestNormalizeRejects(t *testing.T) {
	base := func() Config {
		var c Config
		c.Telegram.Token = "t"
		c.Storage.Engine = EngineMemory
		return c
	}

	c := base()
	c.Storage.Engine = "sqlite"
	if err := Normalize(&c); err == nil {
		t.Fatalf("unknown engine accepted")
	}

	c = base()
	c.Storage.Engine = EnginePostgres
	if err := Normalize(&c); err == nil {
		t.Fatalf("postgres without host accepted")
	}

	c = base()
	c.Orders.MaxQuantity = 20
	c.Orders.MaxLineQty = 5
	if err := Normalize(&c); err == nil {
		t.Fatalf("line limit below per-add limit accepted")
	}
}
