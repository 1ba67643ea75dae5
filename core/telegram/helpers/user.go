package helpers

import (
	"context"
	"errors"

	tele "gopkg.in/telebot.v4"
)

// ErrNoSender is returned for updates that carry no user, such as channel posts.
var ErrNoSender = errors.New("telegram: update has no sender")

// UserLookup loads a stored profile by Telegram user id.
type UserLookup[T any] interface {
	GetUserByTelegramID(ctx context.Context, id int64) (T, error)
}

// CurrentUser loads the stored profile of the update's sender.
func CurrentUser[T any](c tele.Context, users UserLookup[T]) (T, error) {
	var zero T
	sender := c.Sender()
	if sender == nil {
		return zero, ErrNoSender
	}
	return users.GetUserByTelegramID(BuildContext(c), sender.ID)
}
