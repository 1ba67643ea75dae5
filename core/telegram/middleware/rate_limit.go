package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/flowerbot/core/logger"
	tghelpers "github.com/m3rciful/flowerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// Now overrides the clock in tests.
	Now func() time.Time
}

// UpdateKind classifies an update for exclusion lists and metrics labels.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil && upd.Message.Contact != nil:
		return "contact"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}

type lastSeen struct {
	mu      sync.Mutex
	byUser  map[int64]time.Time
	swept   time.Time
	horizon time.Duration
}

// allow records now for userID and reports whether the interval has passed.
// Entries older than the horizon are dropped at most once per horizon.
func (l *lastSeen) allow(userID int64, now time.Time, interval time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.swept) > l.horizon {
		for id, ts := range l.byUser {
			if now.Sub(ts) > l.horizon {
				delete(l.byUser, id)
			}
		}
		l.swept = now
	}
	if last, ok := l.byUser[userID]; ok && now.Sub(last) < interval {
		return false
	}
	l.byUser[userID] = now
	return true
}

// RateLimitMiddleware returns a middleware that enforces a minimum interval
// between updates from the same user.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	seen := &lastSeen{byUser: make(map[int64]time.Time), horizon: time.Minute}
	if opts.Interval > seen.horizon {
		seen.horizon = opts.Interval
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			if _, skip := opts.Exclude[UpdateKind(c.Update())]; skip {
				return next(c)
			}
			if seen.allow(user.ID, now(), opts.Interval) {
				return next(c)
			}

			logger.Warn(tghelpers.BuildContext(c), "tg", "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.Int64("user_id", user.ID),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
