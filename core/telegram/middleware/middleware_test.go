package middleware

import (
	"errors"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func textUpdate(userID int64, text string) tele.Context {
	return tele.NewContext(nil, tele.Update{
		ID: int(userID),
		Message: &tele.Message{
			Sender: &tele.User{ID: userID},
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
			Text:   text,
		},
	})
}

func callbackUpdate(userID int64, data string) tele.Context {
	return tele.NewContext(nil, tele.Update{
		ID: int(userID),
		Callback: &tele.Callback{
			Sender: &tele.User{ID: userID},
			Data:   data,
		},
	})
}

func TestRateLimitBlocksBurstPerUser(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		Now:       func() time.Time { return clock },
		OnLimited: func(tele.Context) error { limited++; return nil },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	_ = h(textUpdate(1, "a"))
	_ = h(textUpdate(1, "b"))
	_ = h(textUpdate(2, "c"))
	clock = clock.Add(1500 * time.Millisecond)
	_ = h(textUpdate(1, "d"))

	if calls != 3 || limited != 1 {
		t.Fatalf("calls=%d limited=%d, want 3 and 1", calls, limited)
	}
}

func TestRateLimitHonorsExclusions(t *testing.T) {
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Hour,
		Exclude:  map[string]struct{}{"callback": {}},
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })
	for i := 0; i < 3; i++ {
		_ = h(callbackUpdate(5, "\fcart"))
	}
	if calls != 3 {
		t.Fatalf("callbacks were limited: calls=%d", calls)
	}
}

func TestRateLimitForgetsIdleUsers(t *testing.T) {
	seen := &lastSeen{byUser: make(map[int64]time.Time), horizon: time.Minute}
	base := time.Unix(0, 0)
	seen.allow(1, base, time.Second)
	seen.allow(2, base.Add(2*time.Minute), time.Second)
	if _, ok := seen.byUser[1]; ok {
		t.Fatal("stale entry kept")
	}
}

func TestAdminOnly(t *testing.T) {
	rejected := 0
	mw := AdminOnly(AdminOptions{
		IsAdmin:  func(id int64) bool { return id == 42 },
		OnReject: func(tele.Context) error { rejected++; return nil },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	_ = h(textUpdate(42, "/admin"))
	_ = h(textUpdate(7, "/admin"))
	if calls != 1 || rejected != 1 {
		t.Fatalf("calls=%d rejected=%d", calls, rejected)
	}

	deny := AdminOnly(AdminOptions{})(func(tele.Context) error { calls++; return nil })
	_ = deny(textUpdate(42, "/admin"))
	if calls != 1 {
		t.Fatal("nil IsAdmin must deny")
	}
}

func TestRecoverTurnsPanicIntoError(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	var p ErrPanic
	if err := h(textUpdate(1, "x")); !errors.As(err, &p) || p.Value != "boom" {
		t.Fatalf("err = %v", err)
	}
}

func TestCountRepliesHook(t *testing.T) {
	var (
		gotKind string
		gotErr  error
	)
	want := errors.New("handler failed")
	h := CountReplies(func(kind string, _ int, _ time.Duration, err error) {
		gotKind, gotErr = kind, err
	})(func(c tele.Context) error {
		if _, ok := c.(countingContext); !ok {
			t.Fatalf("context not wrapped: %T", c)
		}
		return want
	})

	if err := h(callbackUpdate(3, "\fcart")); !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
	if gotKind != "callback" || !errors.Is(gotErr, want) {
		t.Fatalf("hook got kind=%q err=%v", gotKind, gotErr)
	}
}

func TestUpdateKind(t *testing.T) {
	contact := tele.Update{Message: &tele.Message{Contact: &tele.Contact{PhoneNumber: "+380501234567"}}}
	if got := UpdateKind(contact); got != "contact" {
		t.Fatalf("kind = %q", got)
	}
	if got := UpdateKind(tele.Update{}); got != "other" {
		t.Fatalf("kind = %q", got)
	}
}

type sendContext struct {
	tele.Context
	err error
}

func (c sendContext) Send(interface{}, ...interface{}) error { return c.err }

func TestCountRepliesCountsSuccessfulSends(t *testing.T) {
	var sent int
	base := textUpdate(4, "hi")
	h := CountReplies(func(_ string, n int, _ time.Duration, _ error) { sent = n })(func(c tele.Context) error {
		_ = c.Send("plain")
		_ = c.Send("menu", &tele.ReplyMarkup{})
		return nil
	})
	if err := h(sendContext{Context: base}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if n, kb := Counters(base); n != 2 || !kb || sent != 2 {
		t.Fatalf("counters = %d %v, hook = %d", n, kb, sent)
	}

	failing := textUpdate(5, "hi")
	h = CountReplies(nil)(func(c tele.Context) error { return c.Send("lost") })
	_ = h(sendContext{Context: failing, err: errors.New("network down")})
	if n, kb := Counters(failing); n != 0 || kb {
		t.Fatalf("failed send counted: %d %v", n, kb)
	}
}
