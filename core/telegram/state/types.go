package state

import (
	"time"

	tele "gopkg.in/telebot.v4"
)

// State identifies a dialog step.
type State string

const (
	// StateIdle indicates there is no active dialog with the user.
	StateIdle State = "idle"
)

// Session stores the dialog step and scratch data for a user.
type Session struct {
	State    State
	TempData map[string]interface{}
	Touched  time.Time
}

// Manager orchestrates user dialogs and dispatches text to the handler of the current step.
type Manager interface {
	Get(userID int64) Session
	SetState(userID int64, st State)
	GetState(userID int64) State
	SetTemp(userID int64, key string, value interface{})
	GetTemp(userID int64, key string) (interface{}, bool)
	GetTempInt64(userID int64, key string) (int64, bool)
	ClearTemp(userID int64, key string)
	Clear(userID int64)

	// Handle registers the handler invoked for updates arriving in st.
	Handle(st State, h tele.HandlerFunc)
	InProgress(userID int64) bool
	Dispatch(c tele.Context) error
}
