package router

import (
	"time"

	tg "github.com/m3rciful/flowerbot/core/telegram"
	"github.com/m3rciful/flowerbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Dialogs is the minimal interface for a multi-step conversation manager.
type Dialogs interface {
	InProgress(userID int64) bool
	Dispatch(c tele.Context) error
}

// TextOptions controls routing of free text and shared contacts.
type TextOptions struct {
	// Input receives text that is neither a dialog step nor a command,
	// e.g. a phone number typed during checkout. It returns false when it
	// did not consume the message.
	Input       func(c tele.Context) (bool, error)
	Contact     tele.HandlerFunc
	UnknownText tele.HandlerFunc
}

// TextRoutes builds handlers for text and contact routing.
func TextRoutes(dialogs Dialogs, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if dialogs != nil && c.Sender() != nil && dialogs.InProgress(c.Sender().ID) {
			return handleWithSummary(c, "dialog", start, "", "", func() error {
				return dialogs.Dispatch(c)
			})
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil && !cmd.AdminOnly {
				return handleWithSummary(c, normalizeHandlerName(key), start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
		}

		if opts.Input != nil {
			var consumed bool
			err := handleWithSummary(c, "input", start, "", "", func() error {
				var err error
				consumed, err = opts.Input(c)
				return err
			})
			if consumed || err != nil {
				return err
			}
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, "", "", func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, "", "", func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
		return nil
	}

	contactHandler := func(c tele.Context) error {
		start := time.Now()
		if opts.Contact == nil {
			logHandlerSummary(c, "contact", start, "skip", "ok", nil)
			return nil
		}
		return handleWithSummary(c, "contact", start, "", "", func() error {
			return opts.Contact(c)
		})
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.LoggerMiddleware(middleware.RecoverMiddleware(handler)),
		},
		{
			Endpoint: tele.OnContact,
			Handler:  middleware.LoggerMiddleware(middleware.RecoverMiddleware(contactHandler)),
		},
	}
}
