package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/flowerbot/core/logger"
	"github.com/m3rciful/flowerbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/flowerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// receipts remembers recently logged update ids; the middleware can sit on
// more than one route, and each update should be logged once.
type receipts struct {
	mu   sync.Mutex
	seen map[int]time.Time
	ttl  time.Duration
}

func (r *receipts) first(updateID int, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, at := range r.seen {
		if now.Sub(at) > r.ttl {
			delete(r.seen, id)
		}
	}
	if _, ok := r.seen[updateID]; ok {
		return false
	}
	r.seen[updateID] = now
	return true
}

var logged = &receipts{seen: make(map[int]time.Time), ttl: 10 * time.Second}

// LoggerMiddleware creates the update context with its rid and writes a
// sampled debug line describing the update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		if logger.ShouldSampleDebug() && logged.first(c.Update().ID, time.Now()) {
			logger.Debug(ctx, "tg", "update.received", receiptAttrs(c)...)
		}
		return next(c)
	}
}

// receiptAttrs describes who sent the update and what it carries. Phone
// numbers are masked by the log handler.
func receiptAttrs(c tele.Context) []slog.Attr {
	attrs := []slog.Attr{slog.String("status", "ok")}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}

	upd := c.Update()
	switch {
	case upd.Callback != nil:
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		attrs = append(attrs,
			slog.String("cb_key", logger.SanitizeLimit(key, 128)),
			slog.String("payload", logger.SanitizeLimit(payload, 256)),
		)
	case upd.Message != nil && upd.Message.Contact != nil:
		attrs = append(attrs, slog.String("phone", upd.Message.Contact.PhoneNumber))
	case upd.Message != nil && upd.Message.Photo != nil:
		attrs = append(attrs, slog.String("payload", "photo"))
	case upd.Message != nil:
		attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(c.Text(), 256)))
	}
	return attrs
}
