// Package cmd is the shared entry point of the bot binaries: it loads the
// config, bootstraps the app and runs Telegram until a signal arrives.
package cmd

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/flowerbot/core/config"
	"github.com/m3rciful/flowerbot/core/logger"
	coretelegram "github.com/m3rciful/flowerbot/core/telegram"
)

// ConfigCarrier is an application config that embeds the core settings.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp is a bootstrapped application ready to run.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options wire one binary. C is the application's own config type, so
// Bootstrap receives it without a type assertion.
type Options[C ConfigCarrier] struct {
	// ConfigEnvVar names the variable holding the config path; CONFIG_PATH
	// when empty.
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (C, error)
	Bootstrap  func(ctx context.Context, cfg C) (TelegramApp, error)

	// Test seams.
	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
	Context        context.Context
}

var errNoCoreConfig = errors.New("cmd: config has no core section")

// Run blocks until the bot stops or the process gets SIGINT or SIGTERM.
func Run[C ConfigCarrier](opts Options[C]) error {
	if opts.LoadConfig == nil || opts.Bootstrap == nil {
		return errors.New("cmd: LoadConfig and Bootstrap are required")
	}
	env := cmp.Or(opts.ConfigEnvVar, "CONFIG_PATH")
	path := cmp.Or(os.Getenv(env), opts.DefaultConfigPath)
	if path == "" {
		return fmt.Errorf("cmd: set %s or a default config path", env)
	}

	log.Printf("loading config: %s", path)
	cfg, err := opts.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("cmd: load config: %w", err)
	}
	if cfg.CoreConfig() == nil {
		return errNoCoreConfig
	}

	ctx, stop := signal.NotifyContext(cmp.Or(opts.Context, context.Background()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := opts.ShutdownLogger
	if shutdown == nil {
		shutdown = logger.Shutdown
	}
	defer func() {
		if err := shutdown(); err != nil {
			log.Printf("logger shutdown: %v", err)
		}
	}()

	began := time.Now()
	application, err := opts.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap: %w", err)
	}
	runOpts, err := application.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options: %w", err)
	}
	announce(&runOpts, began)

	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return run(ctx, runOpts)
}

// announce logs readiness after the app's own start hook and the shutdown
// before its stop hook.
func announce(o *coretelegram.RunOptions, began time.Time) {
	onStart, onStop := o.OnStart, o.OnStop
	o.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if onStart != nil {
			if err := onStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.Info(ctx, "app", "ready", slog.Duration("startup", time.Since(began)))
		return nil
	}
	o.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.Info(ctx, "app", "shutdown")
		if onStop != nil {
			return onStop(ctx, rt)
		}
		return nil
	}
}
