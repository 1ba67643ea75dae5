// Package keyboard builds the reply and inline markups the bot sends.
package keyboard

import (
	"slices"

	tele "gopkg.in/telebot.v4"
)

// InlineBtn is one inline button: its label, callback unique and payload.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
}

func (b InlineBtn) inline() tele.InlineButton {
	return tele.InlineButton{Text: b.Text, Unique: b.Unique, Data: b.Data}
}

// InlineButtonsRows lays rows out as given.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	kb := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		line := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			line = append(line, b.inline())
		}
		kb = append(kb, line)
	}
	return &tele.ReplyMarkup{InlineKeyboard: kb}
}

// InlineButtons puts every button on its own row.
func InlineButtons(buttons []InlineBtn) *tele.ReplyMarkup {
	return InlineButtonsNPerRow(buttons, 1)
}

// InlineButtonsNPerRow fills rows of n buttons; the last row may be shorter.
func InlineButtonsNPerRow(buttons []InlineBtn, n int) *tele.ReplyMarkup {
	return InlineButtonsRows(slices.Collect(slices.Chunk(buttons, max(n, 1)))...)
}

// SingleCancelMarkup is a one-button keyboard that fires action with the
// payload "cancel".
func SingleCancelMarkup(action string) *tele.ReplyMarkup {
	return InlineButtonsRows([]InlineBtn{{Text: "❌ Cancel", Unique: action, Data: "cancel"}})
}

// RequestContact asks for the user's phone number with a one-time keyboard.
func RequestContact(label string) *tele.ReplyMarkup {
	return &tele.ReplyMarkup{
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
		ReplyKeyboard:   [][]tele.ReplyButton{{{Text: label, Contact: true}}},
	}
}

// RemoveKeyboard hides a reply keyboard left by RequestContact.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}
