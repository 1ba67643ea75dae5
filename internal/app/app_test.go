package app

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"

	coreconfig "github.com/m3rciful/flowerbot/core/config"
	tg "github.com/m3rciful/flowerbot/core/telegram"
	"github.com/m3rciful/flowerbot/internal/config"
	"github.com/m3rciful/flowerbot/internal/storage/memory"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Telegram.Token = "test-token"
	cfg.Telegram.AdminIDs = []int64{99}
	cfg.Storage.Engine = config.EngineMemory
	cfg.Shop.DefaultCities = []string{"Kyiv", " Lviv "}
	cfg.Shop.Terms = "Flowers are delivered within two hours."
	if err := config.Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return cfg
}

func testOptions() Options {
	return Options{LoggerInit: func(*coreconfig.Config) error { return nil }}
}

func TestNewSeedsMemoryStore(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), testOptions())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close(ctx)

	cities, err := a.Store().Catalog().ListCities(ctx)
	if err != nil {
		t.Fatalf("list cities: %v", err)
	}
	if len(cities) != 2 {
		t.Fatalf("expected 2 seeded cities, got %d", len(cities))
	}
	terms, err := a.Store().Terms().CurrentTerms(ctx)
	if err != nil {
		t.Fatalf("terms: %v", err)
	}
	if terms != "Flowers are delivered within two hours." {
		t.Fatalf("unexpected terms %q", terms)
	}
	if a.kafka != nil {
		t.Fatalf("kafka should stay disabled without brokers")
	}
	if a.ops != nil {
		t.Fatalf("ops server should stay disabled without metrics.listen")
	}
}

func TestNewRejectsNilConfig(t *testing.T) {
	if _, err := New(context.Background(), nil, testOptions()); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestSeedersAreIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	seed := CitySeeder(store.Catalog(), []string{"Kyiv", "", "Odesa"})
	for i := 0; i < 2; i++ {
		if err := seed.Seed(ctx); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
	cities, err := store.Catalog().ListCities(ctx)
	if err != nil {
		t.Fatalf("list cities: %v", err)
	}
	if len(cities) != 2 {
		t.Fatalf("expected 2 cities after two runs, got %d", len(cities))
	}

	if err := store.Terms().SetTerms(ctx, "edited by admin"); err != nil {
		t.Fatalf("set terms: %v", err)
	}
	if err := TermsSeeder(store.Terms(), "from config").Seed(ctx); err != nil {
		t.Fatalf("terms seed: %v", err)
	}
	got, err := store.Terms().CurrentTerms(ctx)
	if err != nil {
		t.Fatalf("terms: %v", err)
	}
	if got != "edited by admin" {
		t.Fatalf("seeder overwrote stored terms: %q", got)
	}
}

func TestTermsSeederSkipsEmptyText(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	if err := TermsSeeder(store.Terms(), "  ").Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Terms().CurrentTerms(ctx); err == nil {
		t.Fatalf("expected no terms to be stored")
	}
}

func TestRunOptionsLifecycle(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Metrics.Listen = "127.0.0.1:0"
	w := &fakeWriter{}
	opts := testOptions()
	opts.KafkaWriter = w

	a, err := New(ctx, cfg, opts)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	run, err := a.TelegramRunOptions()
	if err != nil {
		t.Fatalf("run options: %v", err)
	}
	if run.Registry == nil || run.Config == nil {
		t.Fatalf("run options miss registry or config")
	}
	if len(run.Routes) == 0 {
		t.Fatalf("expected routes")
	}
	if len(run.Middlewares) == 0 {
		t.Fatalf("expected middlewares")
	}
	if run.DispatcherOptions.OnResult == nil {
		t.Fatalf("expected send results to be observed")
	}

	if err := run.OnStart(ctx, tg.Runtime{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	resp, err := http.Get("http://" + a.ops.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}

	if err := run.OnStop(ctx, tg.Runtime{}); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !w.closed {
		t.Fatalf("kafka writer was not closed")
	}
	if err := a.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
