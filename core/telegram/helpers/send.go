package helpers

import (
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/m3rciful/flowerbot/core/logger"
	"github.com/m3rciful/flowerbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// outbox queues replies so a slow Bot API does not hold up the update loop.
var outbox atomic.Pointer[sender.Dispatcher]

// SetDispatcher installs d for SendText and EditOrSendText; nil sends inline.
func SetDispatcher(d *sender.Dispatcher) {
	outbox.Store(d)
}

// reply hands send to the dispatcher, or runs it inline when there is none
// or its queue refuses the job.
func reply(c tele.Context, action, endpoint string, send func() error) error {
	d := outbox.Load()
	if d == nil {
		return send()
	}
	ctx := BuildContext(c)
	err := d.Enqueue(ctx, action, endpoint, send)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sender.ErrQueueFull), errors.Is(err, sender.ErrQueueClosed):
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", action),
			slog.String("err", err.Error()),
		)
		return send()
	}
	return err
}

func sendArgs(opts []*tele.SendOptions) []interface{} {
	if len(opts) == 0 || opts[0] == nil {
		return nil
	}
	return []interface{}{opts[0]}
}

// SendText sends text without a parse mode to the current chat.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	args := sendArgs(opts)
	return reply(c, "send.text", "sendMessage", func() error {
		return c.Send(text, args...)
	})
}

// EditOrSendText replaces the message behind a callback, or sends a new one
// when the update has no editable message. An edit that changes nothing is
// not an error.
func EditOrSendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	args := sendArgs(opts)
	return reply(c, "edit.text", "editMessageText", func() error {
		if err := c.EditOrSend(text, args...); !IsNotModified(err) {
			return err
		}
		return nil
	})
}

// IsNotModified matches the Bot API answer to an edit with identical content.
func IsNotModified(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, tele.ErrMessageNotModified) ||
		errors.Is(err, tele.ErrSameMessageContent) ||
		strings.Contains(err.Error(), "message is not modified")
}
