package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tg "github.com/m3rciful/flowerbot/core/telegram"
	"github.com/m3rciful/flowerbot/internal/admin"
	"github.com/m3rciful/flowerbot/internal/fsm"
	"github.com/m3rciful/flowerbot/internal/model"
	"github.com/m3rciful/flowerbot/internal/storage/memory"

	tele "gopkg.in/telebot.v4"
)

const (
	customerID = int64(7)
	adminID    = int64(99)
)

type outMsg struct {
	text   string
	markup *tele.ReplyMarkup
	edit   bool
}

type recorder struct {
	mu   sync.Mutex
	msgs []outMsg
}

func (r *recorder) add(what interface{}, opts []interface{}, edit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := outMsg{text: fmt.Sprint(what), edit: edit}
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok && so != nil {
			m.markup = so.ReplyMarkup
		}
	}
	r.msgs = append(r.msgs, m)
}

func (r *recorder) last(t *testing.T) outMsg {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		t.Fatal("nothing was sent")
	}
	return r.msgs[len(r.msgs)-1]
}

// all joins every recorded text.
func (r *recorder) all(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	texts := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		texts = append(texts, m.text)
	}
	return strings.Join(texts, "\n")
}

// fakeCtx records outgoing messages instead of calling the Bot API.
type fakeCtx struct {
	tele.Context
	rec *recorder
}

func (f fakeCtx) Send(what interface{}, opts ...interface{}) error {
	f.rec.add(what, opts, false)
	return nil
}

func (f fakeCtx) EditOrSend(what interface{}, opts ...interface{}) error {
	f.rec.add(what, opts, true)
	return nil
}

func (f fakeCtx) Respond(...*tele.CallbackResponse) error { return nil }

// hasButton reports whether the markup holds an inline button with unique.
func hasButton(rm *tele.ReplyMarkup, unique string) (string, bool) {
	if rm == nil {
		return "", false
	}
	for _, row := range rm.InlineKeyboard {
		for _, btn := range row {
			if btn.Unique == unique {
				return btn.Data, true
			}
		}
	}
	return "", false
}

type recordingNotifier struct {
	mu       sync.Mutex
	orders   []model.Order
	feedback []model.Feedback
}

func (n *recordingNotifier) OrderPlaced(_ context.Context, o model.Order, _ model.User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, o)
	return nil
}

func (n *recordingNotifier) FeedbackReceived(_ context.Context, fb model.Feedback, _ model.User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.feedback = append(n.feedback, fb)
	return nil
}

func (n *recordingNotifier) OrderStatusChanged(context.Context, model.Order) error { return nil }

type harness struct {
	store    *memory.Store
	bot      *Bot
	routes   map[any]tele.HandlerFunc
	rec      *recorder
	notifier *recordingNotifier
	city     model.City
	rose     model.Product
}

func newHarness(t *testing.T, requirePhone bool) *harness {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	city, err := store.Catalog().CreateCity(ctx, "Kyiv")
	if err != nil {
		t.Fatalf("city: %v", err)
	}
	rose, err := store.Catalog().CreateProduct(ctx, model.Product{CityID: city.ID, Name: "Rose", Price: 5000, Available: true})
	if err != nil {
		t.Fatalf("product: %v", err)
	}
	opts := fsm.Options{RequirePhone: requirePhone}
	presenter := fsm.NewPresenter(fsm.PresenterOptions{RequirePhone: requirePhone})
	machine := fsm.New(fsm.Deps{
		Catalog:   store.Catalog(),
		Sessions:  store.Sessions(),
		Orders:    store.Orders(),
		Committer: store,
		Presenter: presenter,
	}, opts)
	n := &recordingNotifier{}
	b, err := New(Options{
		Machine:      machine,
		Presenter:    presenter,
		Users:        store.Users(),
		Terms:        store.Terms(),
		Admin:        admin.New(store.Catalog(), store.Orders(), store.Terms(), nil),
		Notifier:     n,
		IsAdmin:      func(id int64) bool { return id == adminID },
		RequirePhone: requirePhone,
	})
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	reg := tg.NewRegistry()
	if err := b.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	routes := make(map[any]tele.HandlerFunc)
	for _, r := range b.Routes(reg) {
		routes[r.Endpoint] = r.Handler
	}
	return &harness{store: store, bot: b, routes: routes, rec: &recorder{}, notifier: n, city: city, rose: rose}
}

func (h *harness) run(t *testing.T, endpoint any, upd tele.Update) {
	t.Helper()
	handler, ok := h.routes[endpoint]
	if !ok {
		t.Fatalf("no route for %v", endpoint)
	}
	// Rejected events return their *fsm.Error after rendering; only the
	// rendered output matters here.
	_ = handler(fakeCtx{Context: tele.NewContext(nil, upd), rec: h.rec})
}

func (h *harness) command(t *testing.T, user int64, cmd string) {
	t.Helper()
	h.run(t, cmd, textUpdate(user, cmd))
}

func (h *harness) text(t *testing.T, user int64, s string) {
	t.Helper()
	h.run(t, tele.OnText, textUpdate(user, s))
}

func (h *harness) press(t *testing.T, user int64, unique, payload string) {
	t.Helper()
	data := "\f" + unique
	if payload != "" {
		data += "|" + payload
	}
	h.run(t, tele.OnCallback, tele.Update{Callback: &tele.Callback{
		Sender:  &tele.User{ID: user, FirstName: "Ann"},
		Data:    data,
		Message: &tele.Message{ID: 1, Chat: &tele.Chat{ID: user}},
	}})
}

func (h *harness) session(t *testing.T, user int64) model.Session {
	t.Helper()
	s, err := h.store.Sessions().Get(context.Background(), user)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return s
}

func textUpdate(user int64, s string) tele.Update {
	return tele.Update{Message: &tele.Message{
		Sender: &tele.User{ID: user, FirstName: "Ann"},
		Chat:   &tele.Chat{ID: user},
		Text:   s,
	}}
}

func TestTermsGateBlocksShoppingUntilAccepted(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	if err := h.store.Terms().SetTerms(ctx, "Fresh flowers only."); err != nil {
		t.Fatalf("terms: %v", err)
	}

	h.command(t, customerID, "/start")
	msg := h.rec.last(t)
	if _, ok := hasButton(msg.markup, cbTermsAccept); !ok || !strings.Contains(msg.text, "Fresh flowers only.") {
		t.Fatalf("start must ask for terms: %+v", msg)
	}

	h.press(t, customerID, fsm.CallbackCities, "")
	if _, ok := hasButton(h.rec.last(t).markup, cbTermsAccept); !ok {
		t.Fatal("shopping before accepting must re-send the terms")
	}

	h.press(t, customerID, cbTermsAccept, "")
	if _, ok := hasButton(h.rec.last(t).markup, fsm.CallbackCities); !ok {
		t.Fatalf("accept must open the main menu: %+v", h.rec.last(t))
	}
	u, err := h.store.Users().GetUserByTelegramID(ctx, customerID)
	if err != nil || !u.AgreedToTerms {
		t.Fatalf("user = %+v, %v", u, err)
	}

	h.press(t, customerID, fsm.CallbackCities, "")
	if data, ok := hasButton(h.rec.last(t).markup, fsm.CallbackCity); !ok || data != formatID(h.city.ID) {
		t.Fatalf("city list = %+v", h.rec.last(t))
	}
}

func TestShoppingFlowPlacesOneOrderAndNotifies(t *testing.T) {
	h := newHarness(t, false)
	h.command(t, customerID, "/start")

	h.press(t, customerID, fsm.CallbackCity, formatID(h.city.ID))
	if got := h.session(t, customerID).State; got != model.StateCityChosen {
		t.Fatalf("state = %s", got)
	}
	h.press(t, customerID, fsm.CallbackAdd, formatID(h.rose.ID)+"|2")
	h.press(t, customerID, fsm.CallbackBuyNow, formatID(h.rose.ID))
	sess := h.session(t, customerID)
	if sess.State != model.StateCartReview || sess.CartUnits() != 3 {
		t.Fatalf("buy now must add one and open the cart: %+v", sess)
	}
	if _, ok := hasButton(h.rec.last(t).markup, fsm.CallbackConfirm); !ok {
		t.Fatal("cart review must offer checkout")
	}

	h.press(t, customerID, fsm.CallbackConfirm, "")
	h.press(t, customerID, fsm.CallbackConfirm, "")
	h.press(t, customerID, fsm.CallbackConfirm, "")
	if len(h.notifier.orders) != 1 {
		t.Fatalf("notified orders = %d, want 1", len(h.notifier.orders))
	}
	o := h.notifier.orders[0]
	if o.Total != 15000 || o.Status != model.OrderConfirmed {
		t.Fatalf("order = %+v", o)
	}
	if !strings.Contains(h.rec.last(t).text, "already placed") {
		t.Fatalf("replayed confirm text = %q", h.rec.last(t).text)
	}

	h.press(t, customerID, fsm.CallbackFeedback, "")
	h.text(t, customerID, "Lovely bouquet")
	if len(h.notifier.feedback) != 1 || h.notifier.feedback[0].OrderID != o.ID {
		t.Fatalf("feedback = %+v", h.notifier.feedback)
	}
	if got := h.session(t, customerID).State; got != model.StateIdle {
		t.Fatalf("state after feedback = %s", got)
	}
}

func TestRejectionRendersFailure(t *testing.T) {
	h := newHarness(t, false)
	h.command(t, customerID, "/start")
	h.command(t, customerID, "/cart")
	if !strings.Contains(h.rec.last(t).text, "not available") {
		t.Fatalf("cart from idle = %q", h.rec.last(t).text)
	}
	h.press(t, customerID, fsm.CallbackAdd, "bad")
	if !strings.Contains(h.rec.last(t).text, "no longer active") {
		t.Fatalf("bad payload = %q", h.rec.last(t).text)
	}
}

func TestRequirePhoneAsksForContact(t *testing.T) {
	h := newHarness(t, true)
	h.command(t, customerID, "/start")
	h.press(t, customerID, fsm.CallbackCity, formatID(h.city.ID))
	h.press(t, customerID, fsm.CallbackBuyNow, formatID(h.rose.ID))
	h.press(t, customerID, fsm.CallbackConfirm, "")

	msg := h.rec.last(t)
	if msg.markup == nil || len(msg.markup.ReplyKeyboard) == 0 || !msg.markup.ReplyKeyboard[0][0].Contact {
		t.Fatalf("checkout must request the contact: %+v", msg)
	}

	h.run(t, tele.OnContact, tele.Update{Message: &tele.Message{
		Sender:  &tele.User{ID: customerID},
		Chat:    &tele.Chat{ID: customerID},
		Contact: &tele.Contact{PhoneNumber: "380501234567", UserID: customerID},
	}})
	if got := h.session(t, customerID).Phone; got != "+380501234567" {
		t.Fatalf("phone = %q", got)
	}
	if msg := h.rec.last(t); msg.markup == nil || !msg.markup.RemoveKeyboard {
		t.Fatalf("contact keyboard must be hidden after saving: %+v", msg)
	}

	h.text(t, customerID, "050 123 45 68")
	if got := h.session(t, customerID).Phone; got != "0501234568" {
		t.Fatalf("typed phone = %q", got)
	}
	h.press(t, customerID, fsm.CallbackConfirm, "")
	if len(h.notifier.orders) != 1 || h.notifier.orders[0].Phone != "0501234568" {
		t.Fatalf("orders = %+v", h.notifier.orders)
	}
}

func TestTypedDeliveryDetailsReachTheOrder(t *testing.T) {
	h := newHarness(t, false)
	h.command(t, customerID, "/start")
	h.press(t, customerID, fsm.CallbackCity, formatID(h.city.ID))
	h.press(t, customerID, fsm.CallbackBuyNow, formatID(h.rose.ID))
	h.press(t, customerID, fsm.CallbackConfirm, "")

	h.text(t, customerID, "Obolon, Heroiv Dnipra 12")
	h.text(t, customerID, "Call before delivery")
	sess := h.session(t, customerID)
	if sess.Area != "Obolon, Heroiv Dnipra 12" || sess.Comment != "Call before delivery" {
		t.Fatalf("details = %q / %q", sess.Area, sess.Comment)
	}
	if !strings.Contains(h.rec.last(t).text, "Comment: Call before delivery") {
		t.Fatalf("checkout text = %q", h.rec.last(t).text)
	}

	h.press(t, customerID, fsm.CallbackConfirm, "")
	if len(h.notifier.orders) != 1 {
		t.Fatalf("orders = %d", len(h.notifier.orders))
	}
	if o := h.notifier.orders[0]; o.Area != sess.Area || o.Comment != sess.Comment {
		t.Fatalf("order details = %+v", o)
	}
}

func TestMainMenuFeedbackForNewUser(t *testing.T) {
	h := newHarness(t, false)
	h.command(t, customerID, "/start")
	h.press(t, customerID, fsm.CallbackFeedback, "")
	if got := h.session(t, customerID).State; got != model.StateAwaitingFeedback {
		t.Fatalf("state = %s, reply %q", got, h.rec.last(t).text)
	}
	h.text(t, customerID, "Do you have peonies?")
	if len(h.notifier.feedback) != 1 || h.notifier.feedback[0].OrderID != 0 {
		t.Fatalf("feedback = %+v", h.notifier.feedback)
	}
}

func TestContactOfSomeoneElseIsRefused(t *testing.T) {
	h := newHarness(t, true)
	h.run(t, tele.OnContact, tele.Update{Message: &tele.Message{
		Sender:  &tele.User{ID: customerID},
		Chat:    &tele.Chat{ID: customerID},
		Contact: &tele.Contact{PhoneNumber: "0501234567", UserID: 12345},
	}})
	if !strings.Contains(h.rec.last(t).text, "your own") {
		t.Fatalf("reply = %q", h.rec.last(t).text)
	}
}

func TestUnknownTextFallsBack(t *testing.T) {
	h := newHarness(t, false)
	h.text(t, customerID, "hello?")
	if !strings.Contains(h.rec.last(t).text, "/start") {
		t.Fatalf("reply = %q", h.rec.last(t).text)
	}
}

func TestContactPhone(t *testing.T) {
	cases := map[string]string{
		"380501234567":  "+380501234567",
		"+380501234567": "+380501234567",
		" 0501234567 ":  "0501234567",
	}
	for in, want := range cases {
		if got := contactPhone(in); got != want {
			t.Fatalf("contactPhone(%q) = %q, want %q", in, got, want)
		}
	}
}

type flakyMachine struct {
	fails int
	calls int
}

func (m *flakyMachine) Handle(_ context.Context, ev fsm.Event) (fsm.Outcome, error) {
	m.calls++
	if m.calls <= m.fails {
		return fsm.Outcome{}, &fsm.Error{Kind: fsm.CodeStorageFailure, Event: ev.Type}
	}
	return fsm.Outcome{Actions: []fsm.Action{{UserID: ev.UserID, Text: "ok"}}}, nil
}

func (m *flakyMachine) Session(context.Context, int64) (model.Session, error) {
	return model.NewSession(customerID), nil
}

func TestStorageFailuresAreRetried(t *testing.T) {
	store := memory.New()
	m := &flakyMachine{fails: 2}
	b, err := New(Options{Machine: m, Users: store.Users(), Terms: store.Terms(), RetryAttempts: 3, RetryBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := b.handle(context.Background(), fsm.Simple(customerID, fsm.EventViewCart)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if m.calls != 3 {
		t.Fatalf("calls = %d, want 3", m.calls)
	}

	m = &flakyMachine{fails: 10}
	b.machine = m
	_, err = b.handle(context.Background(), fsm.Simple(customerID, fsm.EventViewCart))
	if !fsm.IsCode(err, fsm.CodeStorageFailure) || m.calls != 3 {
		t.Fatalf("exhausted: err=%v calls=%d", err, m.calls)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected an error without a machine")
	}
}

func TestInlineMarkup(t *testing.T) {
	if inlineMarkup(nil) != nil {
		t.Fatal("no options must give no markup")
	}
	rm := inlineMarkup([][]fsm.Option{
		{{Label: "Kyiv", Unique: fsm.CallbackCity, Payload: "1"}, {Label: "Cart", Unique: fsm.CallbackCart}},
		{{Label: "Reset", Unique: fsm.CallbackReset}},
	})
	if len(rm.InlineKeyboard) != 2 || len(rm.InlineKeyboard[0]) != 2 {
		t.Fatalf("layout = %+v", rm.InlineKeyboard)
	}
	if b := rm.InlineKeyboard[0][0]; b.Unique != fsm.CallbackCity || b.Data != "1" || b.Text != "Kyiv" {
		t.Fatalf("button = %+v", b)
	}
}
