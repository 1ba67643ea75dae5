package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"

	coreconfig "github.com/m3rciful/flowerbot/core/config"
	coretelegram "github.com/m3rciful/flowerbot/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type app struct {
	started, stopped *bool
}

func (a app) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error { *a.started = true; return nil },
		OnStop:  func(context.Context, coretelegram.Runtime) error { *a.stopped = true; return nil },
	}, nil
}

func TestRunWiresLifecycleHooks(t *testing.T) {
	t.Setenv("FLOWERBOT_TEST_CONFIG", "custom.yaml")
	var (
		loadedPath       string
		started, stopped bool
		loggerShutdown   bool
	)
	err := Run(Options[carrier]{
		ConfigEnvVar:      "FLOWERBOT_TEST_CONFIG",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (carrier, error) {
			loadedPath = path
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap: func(context.Context, carrier) (TelegramApp, error) {
			return app{started: &started, stopped: &stopped}, nil
		},
		ShutdownLogger: func() error { loggerShutdown = true; return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			if err := opts.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if loadedPath != "custom.yaml" {
		t.Fatalf("config path = %q", loadedPath)
	}
	if !started || !stopped || !loggerShutdown {
		t.Fatalf("started=%v stopped=%v logger=%v", started, stopped, loggerShutdown)
	}
}

func TestRunPropagatesBootstrapError(t *testing.T) {
	want := errors.New("db down")
	err := Run(Options[carrier]{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(string) (carrier, error) {
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap:      func(context.Context, carrier) (TelegramApp, error) { return nil, want },
		ShutdownLogger: func() error { return nil },
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunRejectsMissingCoreConfig(t *testing.T) {
	err := Run(Options[carrier]{
		DefaultConfigPath: "config.yaml",
		LoadConfig:        func(string) (carrier, error) { return carrier{}, nil },
		Bootstrap:         func(context.Context, carrier) (TelegramApp, error) { return nil, nil },
	})
	if !errors.Is(err, errNoCoreConfig) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunNeedsConfigPath(t *testing.T) {
	t.Setenv("FLOWERBOT_EMPTY_CONFIG", "")
	err := Run(Options[carrier]{
		ConfigEnvVar: "FLOWERBOT_EMPTY_CONFIG",
		LoadConfig:   func(string) (carrier, error) { t.Fatal("config loaded"); return carrier{}, nil },
		Bootstrap:    func(context.Context, carrier) (TelegramApp, error) { return nil, nil },
	})
	if err == nil || !strings.Contains(err.Error(), "FLOWERBOT_EMPTY_CONFIG") {
		t.Fatalf("err = %v", err)
	}
}
