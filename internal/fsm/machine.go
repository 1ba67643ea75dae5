// Package fsm holds the order/session state machine. It advances a user's
// session in response to inbound events, guards every transition and writes
// the resulting session, order and feedback through one storage commit.
//
// Events of one user are processed strictly in order; events of different
// users never wait on each other.
package fsm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/flowerbot/core/logger"
	"github.com/m3rciful/flowerbot/internal/model"
	"github.com/m3rciful/flowerbot/internal/storage"
)

const (
	componentFSM = "fsm"

	defaultMaxQuantity     = 10
	defaultMaxLineQuantity = 99
)

// Options tunes the machine guards.
type Options struct {
	// MaxQuantity bounds a single add_to_cart.
	MaxQuantity int
	// MaxLineQuantity bounds the merged quantity of one product in the cart.
	MaxLineQuantity int
	// RequirePhone makes the final confirm fail with MISSING_CONTACT until a
	// phone number was provided.
	RequirePhone bool
	// RequireArea makes the final confirm fail with MISSING_AREA until a
	// delivery area was provided.
	RequireArea bool
}

func (o Options) withDefaults() Options {
	if o.MaxQuantity <= 0 {
		o.MaxQuantity = defaultMaxQuantity
	}
	if o.MaxLineQuantity <= 0 {
		o.MaxLineQuantity = defaultMaxLineQuantity
	}
	if o.MaxLineQuantity < o.MaxQuantity {
		o.MaxLineQuantity = o.MaxQuantity
	}
	return o
}

// Observer receives transition outcomes, typically for metrics.
type Observer interface {
	EventHandled(ev EventType, from, to model.State, code Code, took time.Duration)
	OrderPlaced(o model.Order, replayed bool)
}

type noopObserver struct{}

func (noopObserver) EventHandled(EventType, model.State, model.State, Code, time.Duration) {}
func (noopObserver) OrderPlaced(model.Order, bool)                                         {}

// Deps are the collaborators of a Machine.
type Deps struct {
	Catalog   storage.CatalogReader
	Sessions  storage.Sessions
	Orders    storage.Orders
	Committer storage.Committer
	Presenter *Presenter
	Observer  Observer
	// Now and NewKey are replaced in tests.
	Now    func() time.Time
	NewKey func() string
}

// Outcome is the result of one handled event.
type Outcome struct {
	// Session is the session after the event, or the untouched one on error.
	Session  model.Session
	Order    *model.Order
	Feedback *model.Feedback
	// Replayed marks a confirm that returned an already placed order.
	Replayed bool
	// Requoted marks a final confirm that found edited products and sent the
	// user back to the cart instead of placing the order.
	Requoted bool
	Actions  []Action
}

// Machine is safe for concurrent use.
type Machine struct {
	catalog   storage.CatalogReader
	sessions  storage.Sessions
	orders    storage.Orders
	committer storage.Committer
	presenter *Presenter
	observer  Observer
	opts      Options
	locks     *userLocks
	now       func() time.Time
	newKey    func() string
}

// New builds a Machine.
func New(deps Deps, opts Options) *Machine {
	m := &Machine{
		catalog:   deps.Catalog,
		sessions:  deps.Sessions,
		orders:    deps.Orders,
		committer: deps.Committer,
		presenter: deps.Presenter,
		observer:  deps.Observer,
		opts:      opts.withDefaults(),
		locks:     newUserLocks(),
		now:       deps.Now,
		newKey:    deps.NewKey,
	}
	if m.presenter == nil {
		m.presenter = NewPresenter(PresenterOptions{
			RequirePhone: m.opts.RequirePhone,
			RequireArea:  m.opts.RequireArea,
			MaxQuantity:  m.opts.MaxQuantity,
		})
	}
	if m.observer == nil {
		m.observer = noopObserver{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newKey == nil {
		m.newKey = uuid.NewString
	}
	return m
}

// step is the pending write produced by a transition.
type step struct {
	session  model.Session
	drop     bool
	order    *model.Order
	feedback *model.Feedback
	// replay is set when confirm hit an already placed order; nothing is written.
	replay *model.Order
	// requoted is set when pinned product versions went stale.
	requoted bool
}

// Handle processes one event for ev.UserID. On error the returned Outcome
// carries the unchanged session and the failure actions for the user.
func (m *Machine) Handle(ctx context.Context, ev Event) (Outcome, error) {
	start := m.now()
	release, err := m.locks.acquire(ctx, ev.UserID)
	if err != nil {
		ferr := cancelled(ev, err)
		m.finish(ctx, ev, model.StateIdle, model.StateIdle, ferr, start)
		return Outcome{Actions: m.presenter.Failure(ev, model.NewSession(ev.UserID), ferr)}, ferr
	}
	defer release()

	sess, err := m.sessions.Get(ctx, ev.UserID)
	if err != nil {
		ferr := storageFailure(ev, "", err)
		m.finish(ctx, ev, model.StateIdle, model.StateIdle, ferr, start)
		return Outcome{Actions: m.presenter.Failure(ev, model.NewSession(ev.UserID), ferr)}, ferr
	}
	from := sess.State

	if ev.Type.readOnly() {
		view, err := m.inspect(ctx, sess, ev)
		m.finish(ctx, ev, from, from, err, start)
		if err != nil {
			return Outcome{Session: sess, Actions: m.presenter.Failure(ev, sess, err)}, err
		}
		return Outcome{Session: sess, Actions: m.presenter.Render(ev, Outcome{Session: sess}, view)}, nil
	}

	st, err := m.transition(ctx, sess.Clone(), ev)
	if err != nil {
		m.finish(ctx, ev, from, from, err, start)
		return Outcome{Session: sess, Actions: m.presenter.Failure(ev, sess, err)}, err
	}

	out := Outcome{Session: st.session, Requoted: st.requoted}
	if st.replay != nil {
		out.Order = st.replay
		out.Replayed = true
	} else {
		st.session.LastUpdated = m.now()
		res, cerr := m.committer.Commit(ctx, storage.Commit{
			Session:     st.session,
			DropSession: st.drop,
			Order:       st.order,
			Feedback:    st.feedback,
		})
		if cerr != nil {
			ferr := storageFailure(ev, string(from), cerr)
			m.finish(ctx, ev, from, from, ferr, start)
			return Outcome{Session: sess, Actions: m.presenter.Failure(ev, sess, ferr)}, ferr
		}
		out.Session = st.session
		out.Order = res.Order
		out.Feedback = res.Feedback
		out.Replayed = res.Replayed
		if res.Order != nil {
			out.Session.LastOrderID = res.Order.ID
		}
		if st.drop {
			out.Session = model.NewSession(ev.UserID)
		}
	}
	if out.Order != nil && ev.Type == EventConfirm {
		m.observer.OrderPlaced(*out.Order, out.Replayed)
		if !out.Replayed {
			logger.Info(ctx, componentFSM, "order.placed",
				slog.Int64("user_id", ev.UserID),
				slog.Int64("order_id", out.Order.ID),
				slog.Int64("city_id", out.Order.CityID),
				slog.Int64("total", int64(out.Order.Total)),
				slog.Int("count", len(out.Order.Items)),
			)
		}
	}
	m.finish(ctx, ev, from, out.Session.State, nil, start)

	view := m.loadView(ctx, out.Session)
	out.Actions = m.presenter.Render(ev, out, view)
	return out, nil
}

// Session returns the stored session without modifying it.
func (m *Machine) Session(ctx context.Context, userID int64) (model.Session, error) {
	release, err := m.locks.acquire(ctx, userID)
	if err != nil {
		return model.Session{}, err
	}
	defer release()
	return m.sessions.Get(ctx, userID)
}

// Failure renders the user-facing actions for an error returned by Handle.
func (m *Machine) Failure(ev Event, sess model.Session, err error) []Action {
	return m.presenter.Failure(ev, sess, err)
}

func (m *Machine) finish(ctx context.Context, ev Event, from, to model.State, err error, start time.Time) {
	took := m.now().Sub(start)
	code := CodeOf(err)
	m.observer.EventHandled(ev.Type, from, to, code, took)

	attrs := []slog.Attr{
		slog.Int64("user_id", ev.UserID),
		slog.String("op", string(ev.Type)),
		slog.String("from_state", string(from)),
		slog.String("to_state", string(to)),
		slog.Int64("duration_ms", took.Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("status", "fail"),
			slog.String("err_code", string(code)),
			slog.String("err", err.Error()),
		)
		if code == CodeStorageFailure {
			logger.Error(ctx, componentFSM, "event.rejected", attrs...)
			return
		}
		logger.Info(ctx, componentFSM, "event.rejected", attrs...)
		return
	}
	attrs = append(attrs, slog.String("status", "ok"))
	logger.Debug(ctx, componentFSM, "event.handled", attrs...)
}

// catalogErr classifies a catalog lookup failure: a missing record becomes
// the given code, anything else is a storage failure.
func catalogErr(ev Event, from model.State, err error, missing Code) *Error {
	if errors.Is(err, storage.ErrNotFound) {
		e := reject(missing, ev, string(from))
		e.ProductID = ev.ProductID
		return e
	}
	return storageFailure(ev, string(from), err)
}
