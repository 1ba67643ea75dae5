// Package app assembles the shop: storage, state machine, notifiers, metrics
// and the Telegram routes, and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/flowerbot/core/bootstrap"
	coreconfig "github.com/m3rciful/flowerbot/core/config"
	coredatabase "github.com/m3rciful/flowerbot/core/database"
	"github.com/m3rciful/flowerbot/core/logger"
	tg "github.com/m3rciful/flowerbot/core/telegram"
	"github.com/m3rciful/flowerbot/core/telegram/helpers"
	tgsender "github.com/m3rciful/flowerbot/core/telegram/sender"
	"github.com/m3rciful/flowerbot/core/telegram/state"
	"github.com/m3rciful/flowerbot/internal/admin"
	"github.com/m3rciful/flowerbot/internal/bot"
	"github.com/m3rciful/flowerbot/internal/config"
	"github.com/m3rciful/flowerbot/internal/fsm"
	"github.com/m3rciful/flowerbot/internal/metrics"
	"github.com/m3rciful/flowerbot/internal/notify"
	"github.com/m3rciful/flowerbot/internal/storage"
	"github.com/m3rciful/flowerbot/internal/storage/memory"
	"github.com/m3rciful/flowerbot/internal/storage/postgres"
	"github.com/m3rciful/flowerbot/migrations"

	tele "gopkg.in/telebot.v4"
)

const componentApp = "app"

// Options replaces infrastructure in tests.
type Options struct {
	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(context.Context, coredatabase.Config, fs.FS) error
	// KafkaWriter overrides the writer built from kafka.brokers.
	KafkaWriter notify.MessageWriter
}

// App is a bootstrapped shop ready to be run by core/telegram.
type App struct {
	cfg      *config.Config
	store    storage.Store
	registry *tg.Registry
	bot      *bot.Bot
	machine  *fsm.Machine
	sweeper  *fsm.Sweeper
	metrics  *metrics.Collectors
	ops      *metrics.Server
	telegram *notify.Telegram
	kafka    *notify.Kafka

	closeOnce sync.Once
	closeErr  error
}

// Bootstrap builds the App with the real infrastructure.
func Bootstrap(ctx context.Context, cfg *config.Config) (*App, error) {
	return New(ctx, cfg, Options{})
}

// New runs the bootstrap pipeline and wires every component.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	memoryEngine := cfg.Storage.Engine == config.EngineMemory
	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:       cfg.CoreConfig(),
		Database:     cfg.Database,
		SkipDatabase: memoryEngine,
		Migrations:   migrations.FS,
		LoggerInit:   opts.LoggerInit,
		Connect:      opts.Connect,
		Migrate:      opts.Migrate,
	})
	if err != nil {
		return nil, err
	}

	var store storage.Store
	if memoryEngine {
		store = memory.New()
	} else {
		store = postgres.New(res.DB)
	}

	if err := bootstrap.RunSeeders(ctx,
		bootstrap.NamedSeeder{Name: "cities", Seeder: CitySeeder(store.Catalog(), cfg.Shop.DefaultCities)},
		bootstrap.NamedSeeder{Name: "terms", Seeder: TermsSeeder(store.Terms(), cfg.Shop.Terms)},
	); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	a := &App{cfg: cfg, store: store, metrics: metrics.New()}
	a.metrics.TrackSessions(func() (int, error) {
		return store.Sessions().Count(context.Background())
	})

	presenter := fsm.NewPresenter(fsm.PresenterOptions{
		Currency:     cfg.Shop.Currency,
		RequirePhone: cfg.Orders.RequirePhone,
		RequireArea:  cfg.Orders.RequireArea,
		MaxQuantity:  cfg.Orders.MaxQuantity,
	})
	a.machine = fsm.New(fsm.Deps{
		Catalog:   store.Catalog(),
		Sessions:  store.Sessions(),
		Orders:    store.Orders(),
		Committer: store,
		Presenter: presenter,
		Observer:  a.metrics,
	}, fsm.Options{
		MaxQuantity:     cfg.Orders.MaxQuantity,
		MaxLineQuantity: cfg.Orders.MaxLineQty,
		RequirePhone:    cfg.Orders.RequirePhone,
		RequireArea:     cfg.Orders.RequireArea,
	})
	a.sweeper = fsm.NewSweeper(store.Sessions(), cfg.Session.TTL, cfg.Session.SweepInterval, a.metrics.SessionsSwept)

	a.telegram = notify.NewTelegram(notify.TelegramOptions{
		ManagerChatID: cfg.Telegram.ManagerChatID,
		AdminIDs:      cfg.Telegram.AdminIDs,
		Currency:      cfg.Shop.Currency,
	})
	notifiers := notify.Multi{a.telegram}
	if w := opts.KafkaWriter; w != nil || cfg.Kafka.Enabled() {
		if w == nil {
			w = notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		}
		a.kafka = notify.NewKafka(w)
		notifiers = append(notifiers, a.kafka)
		logger.Info(ctx, componentApp, "kafka.enabled",
			slog.String("topic", cfg.Kafka.Topic),
			slog.Int("count", len(cfg.Kafka.Brokers)),
		)
	}

	a.bot, err = bot.New(bot.Options{
		Machine:       a.machine,
		Presenter:     presenter,
		Users:         store.Users(),
		Terms:         store.Terms(),
		Admin:         admin.New(store.Catalog(), store.Orders(), store.Terms(), notifiers),
		Notifier:      notifiers,
		Dialogs:       state.NewMemoryManager(state.Options{TTL: cfg.Session.TTL}),
		IsAdmin:       cfg.Telegram.IsAdmin,
		RequirePhone:  cfg.Orders.RequirePhone,
		RetryAttempts: cfg.Orders.RetryAttempts,
		RetryBackoff:  cfg.Orders.RetryBackoff,
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.registry = tg.NewRegistry()
	if err := a.bot.Register(a.registry); err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("app: register handlers: %w", err)
	}

	if cfg.Metrics.Listen != "" {
		a.ops = metrics.NewServer(cfg.Metrics.Listen, metrics.NewRouter(a.metrics.Registry, store))
	}

	logger.Info(ctx, componentApp, "bootstrap.complete",
		slog.String("mode", cfg.Storage.Engine),
		slog.Bool("require_phone", cfg.Orders.RequirePhone),
		slog.Bool("require_area", cfg.Orders.RequireArea),
		slog.Bool("ops", a.ops != nil),
	)
	return a, nil
}

// Store exposes the storage engine, mainly for tests.
func (a *App) Store() storage.Store { return a.store }

// TelegramRunOptions implements core/cmd.TelegramApp.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	core := a.cfg.CoreConfig()
	return tg.RunOptions{
		Config:   core,
		Registry: a.registry,
		DispatcherOptions: tgsender.Options{
			OnResult: a.metrics.SendResult,
		},
		Middlewares: tg.DefaultMiddlewares(core, tg.MiddlewareOptions{
			OnLimited: func(c tele.Context) error {
				return helpers.SendText(c, "Too many requests, please slow down.")
			},
			OnUpdate: a.metrics.UpdateHandled,
		}),
		Routes:  a.bot.Routes(a.registry),
		OnStart: a.start,
		OnStop:  a.stop,
	}, nil
}

func (a *App) start(ctx context.Context, rt tg.Runtime) error {
	switch {
	case rt.Bot != nil && rt.Dispatcher != nil:
		a.telegram.Bind(rt.Bot, rt.Dispatcher)
	case rt.Bot != nil:
		a.telegram.Bind(rt.Bot, nil)
	}
	a.sweeper.Start(ctx)
	if a.ops != nil {
		if err := a.ops.Start(ctx); err != nil {
			_ = a.Close(ctx)
			return fmt.Errorf("app: ops server: %w", err)
		}
	}
	return nil
}

func (a *App) stop(ctx context.Context, _ tg.Runtime) error {
	return a.Close(ctx)
}

// Close stops background work and releases the storage. Safe to call twice.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.sweeper != nil {
			a.sweeper.Stop()
		}
		if a.ops != nil {
			errs = append(errs, a.ops.Shutdown(ctx))
		}
		if a.kafka != nil {
			errs = append(errs, a.kafka.Close())
		}
		errs = append(errs, a.store.Close())
		a.closeErr = errors.Join(errs...)
		if a.closeErr != nil {
			logger.Warn(ctx, componentApp, "close", slog.String("err", a.closeErr.Error()))
		}
	})
	return a.closeErr
}
