package helpers

import (
	"context"

	"github.com/m3rciful/flowerbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// ctxStoreKey is where the per-update context lives in tele.Context.
const ctxStoreKey = "flowerbot.ctx"

// ridKey is set by the logging middleware.
const ridKey = "rid"

// BuildContext returns the context of the current update, creating it on
// first use with the rid and update, user and chat ids needed by the logs.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := c.Get(ctxStoreKey).(context.Context); ok {
		return ctx
	}
	return storeContext(c, newUpdateContext(c))
}

func newUpdateContext(c tele.Context) context.Context {
	var chatID, userID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	updateID := c.Update().ID
	rid, _ := c.Get(ridKey).(string)
	if rid == "" {
		rid = logger.BuildRID(updateID, chatID, userID)
		c.Set(ridKey, rid)
	}
	ctx := logger.WithRID(context.Background(), rid)
	return logger.WithUpdateMeta(ctx, updateID, userID, chatID)
}

func storeContext(c tele.Context, ctx context.Context) context.Context {
	c.Set(ctxStoreKey, ctx)
	return ctx
}

// WithHandler names the handler in the update context for later log lines.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" {
		return ctx
	}
	return storeContext(c, logger.WithHandler(ctx, handler))
}
