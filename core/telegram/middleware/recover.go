package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/flowerbot/core/logger"
	tghelpers "github.com/m3rciful/flowerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// ErrPanic wraps the value recovered from a handler panic.
type ErrPanic struct {
	Value any
}

func (e ErrPanic) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// RecoverMiddleware reports a handler panic as an ErrPanic so the update is
// logged as failed and polling continues.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			logger.Error(tghelpers.BuildContext(c), "tg", "handler.panic",
				slog.String("panic", logger.SanitizeLimit(fmt.Sprint(v), 256)),
				slog.String("stack", string(debug.Stack())),
			)
			err = ErrPanic{Value: v}
		}()
		return next(c)
	}
}
