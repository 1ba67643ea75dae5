package middleware

import (
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"
)

const repliesKey = "replies"

// replies counts what a handler sent back for one update. Queued sends land
// from dispatcher workers, so the fields are atomic.
type replies struct {
	sent     atomic.Int32
	keyboard atomic.Bool
}

func (r *replies) add(opts []interface{}) {
	r.sent.Add(1)
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.ReplyMarkup:
			if v != nil {
				r.keyboard.Store(true)
			}
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				r.keyboard.Store(true)
			}
		}
	}
}

// countingContext counts successful outgoing messages.
type countingContext struct {
	tele.Context
	r *replies
}

func (c countingContext) count(err error, opts []interface{}) error {
	if err == nil {
		c.r.add(opts)
	}
	return err
}

func (c countingContext) Send(what interface{}, opts ...interface{}) error {
	return c.count(c.Context.Send(what, opts...), opts)
}

func (c countingContext) Reply(what interface{}, opts ...interface{}) error {
	return c.count(c.Context.Reply(what, opts...), opts)
}

func (c countingContext) Edit(what interface{}, opts ...interface{}) error {
	return c.count(c.Context.Edit(what, opts...), opts)
}

func (c countingContext) EditOrSend(what interface{}, opts ...interface{}) error {
	return c.count(c.Context.EditOrSend(what, opts...), opts)
}

func (c countingContext) EditOrReply(what interface{}, opts ...interface{}) error {
	return c.count(c.Context.EditOrReply(what, opts...), opts)
}

// UpdateHook receives one call per processed update.
type UpdateHook func(kind string, messages int, took time.Duration, err error)

// CountReplies wraps the context so handlers' outgoing messages are counted
// for the handler summary line. hook, when set, sees every finished update.
func CountReplies(hook UpdateHook) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			r := &replies{}
			c.Set(repliesKey, r)
			start := time.Now()
			err := next(countingContext{Context: c, r: r})
			if hook != nil {
				hook(UpdateKind(c.Update()), int(r.sent.Load()), time.Since(start), err)
			}
			return err
		}
	}
}

// Counters reports how many messages went out for the current update and
// whether any of them carried a keyboard.
func Counters(c tele.Context) (int, bool) {
	r, ok := c.Get(repliesKey).(*replies)
	if !ok {
		return 0, false
	}
	return int(r.sent.Load()), r.keyboard.Load()
}
