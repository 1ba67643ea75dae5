package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/flowerbot/core/logger"
	tghelpers "github.com/m3rciful/flowerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Options configures the in-memory manager.
type Options struct {
	// TTL abandons dialogs idle for longer than this; zero keeps them forever.
	TTL time.Duration
	Now func() time.Time
}

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	handlers map[State]tele.HandlerFunc
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryManager constructs an in-memory Manager.
func NewMemoryManager(opts Options) Manager {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &memoryManager{
		sessions: make(map[int64]*Session),
		handlers: make(map[State]tele.HandlerFunc),
		ttl:      opts.TTL,
		now:      now,
	}
}

// live returns the session if present and not expired. Caller holds mu.
func (m *memoryManager) live(userID int64) (*Session, bool) {
	sess, ok := m.sessions[userID]
	if !ok {
		return nil, false
	}
	if m.ttl > 0 && m.now().Sub(sess.Touched) > m.ttl {
		return nil, false
	}
	return sess, true
}

// ensure returns a live session, replacing an expired one. Caller holds mu for writing.
func (m *memoryManager) ensure(userID int64) *Session {
	sess, ok := m.live(userID)
	if !ok {
		sess = &Session{State: StateIdle, TempData: make(map[string]interface{})}
		m.sessions[userID] = sess
	}
	sess.Touched = m.now()
	return sess
}

// Get returns a copy of the user's session or an idle one.
func (m *memoryManager) Get(userID int64) Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.live(userID)
	if !ok {
		return Session{State: StateIdle, TempData: map[string]interface{}{}}
	}
	out := *sess
	out.TempData = make(map[string]interface{}, len(sess.TempData))
	for k, v := range sess.TempData {
		out.TempData[k] = v
	}
	return out
}

func (m *memoryManager) SetState(userID int64, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(userID).State = st
}

func (m *memoryManager) GetState(userID int64) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sess, ok := m.live(userID); ok {
		return sess.State
	}
	return StateIdle
}

func (m *memoryManager) SetTemp(userID int64, key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(userID).TempData[key] = value
}

func (m *memoryManager) GetTemp(userID int64, key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.live(userID)
	if !ok {
		return nil, false
	}
	val, ok := sess.TempData[key]
	return val, ok
}

func (m *memoryManager) GetTempInt64(userID int64, key string) (int64, bool) {
	val, found := m.GetTemp(userID, key)
	if !found {
		return 0, false
	}
	v, ok := val.(int64)
	return v, ok
}

func (m *memoryManager) ClearTemp(userID int64, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[userID]; ok {
		delete(sess.TempData, key)
	}
}

// Clear ends the dialog and drops its data.
func (m *memoryManager) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

func (m *memoryManager) Handle(st State, h tele.HandlerFunc) {
	if h == nil || st == StateIdle {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[st] = h
}

// InProgress reports whether the user is in a non-idle step that has a handler.
func (m *memoryManager) InProgress(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.live(userID)
	if !ok || sess.State == StateIdle {
		return false
	}
	_, handled := m.handlers[sess.State]
	return handled
}

// Dispatch runs the handler registered for the sender's current step.
func (m *memoryManager) Dispatch(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	userID := c.Sender().ID
	current := m.GetState(userID)

	m.mu.RLock()
	handler, ok := m.handlers[current]
	m.mu.RUnlock()

	logger.Debug(tghelpers.BuildContext(c), "tg", "dialog.dispatch",
		slog.Int64("user_id", userID),
		slog.String("state", string(current)),
		slog.Bool("handled", ok),
	)
	if !ok {
		return nil
	}
	return handler(c)
}
