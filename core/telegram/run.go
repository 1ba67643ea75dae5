package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/flowerbot/core/config"
	"github.com/m3rciful/flowerbot/core/logger"
	tghelpers "github.com/m3rciful/flowerbot/core/telegram/helpers"
	tgsender "github.com/m3rciful/flowerbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const componentTG = "tg"

// stopTimeout bounds OnStop once the run context is already cancelled.
const stopTimeout = 10 * time.Second

// Middleware is a named global middleware installed with bot.Use.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route binds a handler to a telebot endpoint such as tele.OnText or "/start".
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions describe one bot process.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	// DispatcherOptions configure the outbound queue shared by the reply
	// helpers and the lifecycle hooks.
	DispatcherOptions tgsender.Options

	Middlewares []Middleware
	Routes      []Route

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime is what the lifecycle hooks get to work with.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram builds the bot, runs it until ctx is done and then calls
// OnStop. A cancelled ctx is a clean exit.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	cfg := opts.Config
	if cfg == nil {
		return errors.New("telegram: nil config")
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	began := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  BuildPoller(cfg),
		Client:  BuildHTTPClient(),
		OnError: onHandlerError,
	})
	if err != nil {
		return fmt.Errorf("telegram: new bot: %w", err)
	}
	announceMode(ctx, bot, cfg, time.Since(began))

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, r := range opts.Routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
	SetupCommands(bot, reg, cfg.Telegram.AdminIDs)

	out := tgsender.NewDispatcher(opts.DispatcherOptions)
	tghelpers.SetDispatcher(out)
	defer func() {
		out.Close()
		tghelpers.SetDispatcher(nil)
	}()

	rt := Runtime{Bot: bot, Dispatcher: out, Registry: reg}
	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	runErr := serve(ctx, bot)
	if opts.OnStop != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
		if err := opts.OnStop(stopCtx, rt); err != nil {
			return err
		}
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// serve polls until ctx ends or the poller gives up on its own.
func serve(ctx context.Context, bot *tele.Bot) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
		return ctx.Err()
	case <-done:
		return nil
	}
}

// announceMode logs how updates arrive. Long polling first drops a webhook
// left by an earlier deployment, otherwise getUpdates is refused.
func announceMode(ctx context.Context, bot *tele.Bot, cfg *coreconfig.Config, took time.Duration) {
	if wh, ok := bot.Poller.(*tele.Webhook); ok {
		logger.Info(ctx, componentTG, "mode",
			slog.String("mode", "webhook"),
			slog.String("listen", wh.Listen),
			slog.String("public_url", wh.Endpoint.PublicURL),
			slog.Duration("duration", took),
		)
		return
	}
	logger.Info(ctx, componentTG, "mode",
		slog.String("mode", "polling"),
		slog.Int("timeout_seconds", cfg.Telegram.LongPollTimeoutSeconds),
		slog.Duration("duration", took),
	)
	if err := bot.RemoveWebhook(false); err != nil {
		logger.Warn(ctx, componentTG, "webhook.remove",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
}

// onHandlerError logs errors that reached telebot. Errors carrying a Code are
// expected rejections the router already summarised.
func onHandlerError(err error, c tele.Context) {
	if err == nil {
		return
	}
	ctx := context.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		logger.Debug(ctx, componentTG, "handler.rejected",
			slog.String("err_code", coded.Code()),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.Error(ctx, componentTG, "handler.error", slog.String("err", err.Error()))
}
