// Package memory is an in-process storage engine. Catalog reads share an
// RWMutex; sessions, orders and feedback share one mutex so that a Commit is
// applied as a single step.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/flowerbot/internal/model"
	"github.com/m3rciful/flowerbot/internal/storage"
)

// Store implements storage.Store in memory.
type Store struct {
	catalogMu   sync.RWMutex
	cities      map[int64]model.City
	products    map[int64]model.Product
	nextCity    int64
	nextProduct int64

	mu         sync.Mutex
	sessions   map[int64]model.Session
	orders     map[int64]model.Order
	byKey      map[string]int64
	feedback   []model.Feedback
	users      map[int64]model.User
	terms      string
	nextOrder  int64
	nextReview int64

	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		cities:   make(map[int64]model.City),
		products: make(map[int64]model.Product),
		sessions: make(map[int64]model.Session),
		orders:   make(map[int64]model.Order),
		byKey:    make(map[string]int64),
		users:    make(map[int64]model.User),
		now:      time.Now,
	}
}

// SetClock overrides the time source, used by tests.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Store) Catalog() storage.Catalog   { return catalogView{s} }
func (s *Store) Sessions() storage.Sessions { return sessionView{s} }
func (s *Store) Orders() storage.Orders     { return orderView{s} }
func (s *Store) Users() storage.Users       { return userView{s} }
func (s *Store) Terms() storage.Terms       { return termsView{s} }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Feedback returns a copy of every stored feedback entry.
func (s *Store) Feedback() []model.Feedback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Feedback(nil), s.feedback...)
}

// Commit applies the session write, order insert and feedback insert together.
func (s *Store) Commit(ctx context.Context, c storage.Commit) (storage.CommitResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.CommitResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var res storage.CommitResult
	if c.Order != nil {
		if id, ok := s.byKey[c.Order.CheckoutKey]; ok && c.Order.CheckoutKey != "" {
			existing := s.orders[id].Clone()
			res.Order = &existing
			res.Replayed = true
		} else {
			s.nextOrder++
			o := c.Order.Clone()
			o.ID = s.nextOrder
			if o.CreatedAt.IsZero() {
				o.CreatedAt = s.now()
			}
			o.UpdatedAt = o.CreatedAt
			s.orders[o.ID] = o
			if o.CheckoutKey != "" {
				s.byKey[o.CheckoutKey] = o.ID
			}
			stored := o.Clone()
			res.Order = &stored
		}
	}
	if c.Feedback != nil {
		s.nextReview++
		fb := *c.Feedback
		fb.ID = s.nextReview
		if fb.CreatedAt.IsZero() {
			fb.CreatedAt = s.now()
		}
		s.feedback = append(s.feedback, fb)
		res.Feedback = &fb
	}
	if c.DropSession {
		delete(s.sessions, c.Session.UserID)
	} else {
		sess := c.Session.Clone()
		if res.Order != nil {
			sess.LastOrderID = res.Order.ID
		}
		s.sessions[sess.UserID] = sess
	}
	return res, nil
}

type sessionView struct{ s *Store }

func (v sessionView) Get(_ context.Context, userID int64) (model.Session, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if sess, ok := v.s.sessions[userID]; ok {
		return sess.Clone(), nil
	}
	return model.NewSession(userID), nil
}

func (v sessionView) Put(_ context.Context, sess model.Session) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.sessions[sess.UserID] = sess.Clone()
	return nil
}

func (v sessionView) Delete(_ context.Context, userID int64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	delete(v.s.sessions, userID)
	return nil
}

func (v sessionView) Expire(_ context.Context, olderThan time.Time) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	n := 0
	for id, sess := range v.s.sessions {
		if sess.LastUpdated.Before(olderThan) {
			delete(v.s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (v sessionView) Count(context.Context) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return len(v.s.sessions), nil
}

type orderView struct{ s *Store }

func (v orderView) GetOrder(_ context.Context, id int64) (model.Order, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	o, ok := v.s.orders[id]
	if !ok {
		return model.Order{}, storage.ErrNotFound
	}
	return o.Clone(), nil
}

func (v orderView) FindByCheckoutKey(_ context.Context, key string) (model.Order, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	id, ok := v.s.byKey[key]
	if !ok {
		return model.Order{}, storage.ErrNotFound
	}
	return v.s.orders[id].Clone(), nil
}

func (v orderView) ListRecent(_ context.Context, limit int) ([]model.Order, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	out := make([]model.Order, 0, len(v.s.orders))
	for _, o := range v.s.orders {
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v orderView) UpdateStatus(_ context.Context, id int64, from, to model.OrderStatus, note string) (model.Order, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	o, ok := v.s.orders[id]
	if !ok {
		return model.Order{}, storage.ErrNotFound
	}
	if o.Status != from {
		return model.Order{}, storage.ErrConflict
	}
	o.Status = to
	o.StatusNote = note
	o.UpdatedAt = v.s.now()
	v.s.orders[id] = o
	return o.Clone(), nil
}

type userView struct{ s *Store }

func (v userView) Register(_ context.Context, u model.User) (model.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if prev, ok := v.s.users[u.ID]; ok {
		u.AgreedToTerms = prev.AgreedToTerms
		u.RegisteredAt = prev.RegisteredAt
	} else {
		u.AgreedToTerms = false
		u.RegisteredAt = v.s.now()
	}
	v.s.users[u.ID] = u
	return u, nil
}

func (v userView) GetUserByTelegramID(_ context.Context, id int64) (model.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	u, ok := v.s.users[id]
	if !ok {
		return model.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (v userView) SetAgreedToTerms(_ context.Context, id int64, agreed bool) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	u, ok := v.s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.AgreedToTerms = agreed
	v.s.users[id] = u
	return nil
}

type termsView struct{ s *Store }

func (v termsView) CurrentTerms(context.Context) (string, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if strings.TrimSpace(v.s.terms) == "" {
		return "", storage.ErrNotFound
	}
	return v.s.terms, nil
}

func (v termsView) SetTerms(_ context.Context, content string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.terms = content
	return nil
}
