package middleware

import tele "gopkg.in/telebot.v4"

// AdminOptions configures AdminOnly.
type AdminOptions struct {
	// IsAdmin reports whether the sender may run admin handlers. A nil
	// IsAdmin denies everyone.
	IsAdmin func(userID int64) bool
	// OnReject answers denied updates; nil drops them silently.
	OnReject tele.HandlerFunc
}

// AdminOnly lets an update through only when its sender is an admin.
func AdminOnly(opts AdminOptions) tele.MiddlewareFunc {
	reject := opts.OnReject
	if reject == nil {
		reject = func(tele.Context) error { return nil }
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if u := c.Sender(); u != nil && opts.IsAdmin != nil && opts.IsAdmin(u.ID) {
				return next(c)
			}
			return reject(c)
		}
	}
}
