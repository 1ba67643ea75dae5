package bot

import (
	"errors"
	"log/slog"

	"github.com/m3rciful/flowerbot/core/logger"
	"github.com/m3rciful/flowerbot/core/telegram/helpers"
	"github.com/m3rciful/flowerbot/core/telegram/keyboard"
	"github.com/m3rciful/flowerbot/internal/fsm"

	tele "gopkg.in/telebot.v4"
)

// inlineMarkup converts presenter options to an inline keyboard; nil when empty.
func inlineMarkup(opts [][]fsm.Option) *tele.ReplyMarkup {
	if len(opts) == 0 {
		return nil
	}
	rows := make([][]keyboard.InlineBtn, 0, len(opts))
	for _, row := range opts {
		r := make([]keyboard.InlineBtn, 0, len(row))
		for _, o := range row {
			r = append(r, keyboard.InlineBtn{Text: o.Label, Unique: o.Unique, Data: o.Payload})
		}
		rows = append(rows, r)
	}
	return keyboard.InlineButtonsRows(rows...)
}

// deliver sends the actions in order. The first action of a callback update
// replaces the message that carried the button.
func (b *Bot) deliver(c tele.Context, actions []fsm.Action) error {
	var errs []error
	for i, a := range actions {
		if a.Text == "" {
			continue
		}
		opts := &tele.SendOptions{}
		if rm := inlineMarkup(a.Options); rm != nil {
			opts.ReplyMarkup = rm
		}
		var err error
		if i == 0 && c.Callback() != nil && c.Callback().Message != nil {
			err = helpers.EditOrSendText(c, a.Text, opts)
		} else {
			err = helpers.SendText(c, a.Text, opts)
		}
		if err != nil {
			logger.Warn(helpers.BuildContext(c), componentTG, "deliver",
				slog.String("status", "fail"),
				slog.Int("index", i),
				slog.String("err", err.Error()),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// say sends a plain text reply with an optional markup.
func (b *Bot) say(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	if len(markup) > 0 && markup[0] != nil {
		return helpers.SendText(c, text, &tele.SendOptions{ReplyMarkup: markup[0]})
	}
	return helpers.SendText(c, text)
}
