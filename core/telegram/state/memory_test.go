package state

import (
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

const stateAwaitName State = "await_name"

func message(userID int64, text string) tele.Context {
	return tele.NewContext(nil, tele.Update{Message: &tele.Message{
		Sender: &tele.User{ID: userID},
		Chat:   &tele.Chat{ID: userID},
		Text:   text,
	}})
}

func TestDispatchRoutesByState(t *testing.T) {
	m := NewMemoryManager(Options{})
	var got string
	m.Handle(stateAwaitName, func(c tele.Context) error {
		got = c.Text()
		m.Clear(c.Sender().ID)
		return nil
	})

	if m.InProgress(1) {
		t.Fatal("idle user reported in progress")
	}
	m.SetState(1, stateAwaitName)
	m.SetTemp(1, "city_id", int64(9))
	if !m.InProgress(1) {
		t.Fatal("dialog not in progress")
	}
	if id, ok := m.GetTempInt64(1, "city_id"); !ok || id != 9 {
		t.Fatalf("temp = %d %v", id, ok)
	}

	if err := m.Dispatch(message(1, "Peonies")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got != "Peonies" {
		t.Fatalf("handler saw %q", got)
	}
	if m.GetState(1) != StateIdle {
		t.Fatal("dialog not cleared")
	}
}

func TestUnhandledStateIsNotInProgress(t *testing.T) {
	m := NewMemoryManager(Options{})
	m.SetState(2, "orphan")
	if m.InProgress(2) {
		t.Fatal("state without handler must not capture text")
	}
}

func TestDialogsExpire(t *testing.T) {
	now := time.Unix(1_000, 0)
	m := NewMemoryManager(Options{TTL: time.Minute, Now: func() time.Time { return now }})
	m.Handle(stateAwaitName, func(tele.Context) error { return nil })
	m.SetState(3, stateAwaitName)

	now = now.Add(2 * time.Minute)
	if m.InProgress(3) || m.GetState(3) != StateIdle {
		t.Fatal("expired dialog still active")
	}
	if _, ok := m.GetTemp(3, "x"); ok {
		t.Fatal("expired temp data visible")
	}
	m.SetTemp(3, "x", 1)
	if m.GetState(3) != StateIdle {
		t.Fatal("expired state resurrected by SetTemp")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	m := NewMemoryManager(Options{})
	m.SetTemp(4, "k", "v")
	s := m.Get(4)
	s.TempData["k"] = "mutated"
	if v, _ := m.GetTemp(4, "k"); v != "v" {
		t.Fatalf("internal data mutated: %v", v)
	}
}
