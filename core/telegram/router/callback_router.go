package router

import (
	"log/slog"
	"time"

	tg "github.com/m3rciful/flowerbot/core/telegram"
	"github.com/m3rciful/flowerbot/core/telegram/callbacks"
	"github.com/m3rciful/flowerbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions configures CallbackRoute.
type CallbackOptions struct {
	// Admin guards the callback keys listed in AdminKeys.
	Admin     middleware.AdminOptions
	AdminKeys []string
}

// CallbackRoute dispatches inline button presses by callback key. Unknown
// keys go to the registry's fallback.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	guard := middleware.AdminOnly(opts.Admin)
	restricted := make(map[string]bool, len(opts.AdminKeys))
	for _, k := range opts.AdminKeys {
		restricted[k] = true
	}

	resolve := func(key string) (tele.HandlerFunc, bool) {
		h, ok := reg.GetCallback(key)
		if !ok || h == nil {
			return reg.CallbackNotFound(), false
		}
		if restricted[key] {
			h = guard(h)
		}
		return h, true
	}

	handler := func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		start := time.Now()
		key, _ := callbacks.ParseCallbackData(cb)
		// Stops the button spinner whatever the handler does next.
		_ = c.Respond()

		h, found := resolve(key)
		status := ""
		extras := []slog.Attr{slog.String("cb_key", key)}
		if !found {
			status = "skip"
			extras = append(extras, slog.String("reason", "not_found"))
		}
		return handleWithSummary(c, "callback."+normalizeHandlerName(key), start, status, "", func() error {
			if h == nil {
				return nil
			}
			return h(c)
		}, extras...)
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.LoggerMiddleware(middleware.RecoverMiddleware(handler)),
	}
}
