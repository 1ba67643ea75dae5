package bot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/flowerbot/core/logger"
	"github.com/m3rciful/flowerbot/core/telegram/callbacks"
	"github.com/m3rciful/flowerbot/core/telegram/helpers"
	"github.com/m3rciful/flowerbot/core/telegram/keyboard"
	"github.com/m3rciful/flowerbot/internal/fsm"
	"github.com/m3rciful/flowerbot/internal/model"
	"github.com/m3rciful/flowerbot/internal/storage"

	tele "gopkg.in/telebot.v4"
)

const (
	cbTermsAccept  = "terms_accept"
	cbTermsDecline = "terms_decline"

	msgTryLater = "Something went wrong on our side. Please try again later."
)

func (b *Bot) onStart(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx := helpers.BuildContext(c)
	b.dialogs.Clear(sender.ID)

	u, err := b.users.Register(ctx, model.User{
		ID:        sender.ID,
		Username:  sender.Username,
		FirstName: sender.FirstName,
		LastName:  sender.LastName,
	})
	if err != nil {
		logger.Error(ctx, componentTG, "user.register",
			slog.Int64("user_id", sender.ID),
			slog.String("err", err.Error()),
		)
		return b.say(c, msgTryLater)
	}
	if !u.AgreedToTerms {
		if terms := b.currentTerms(ctx); terms != "" {
			return b.askTerms(c, terms)
		}
	}
	b.agreed.Store(sender.ID, true)
	return b.mainMenu(c, u.FirstName)
}

func (b *Bot) mainMenu(c tele.Context, name string) error {
	return b.deliver(c, []fsm.Action{b.presenter.MainMenu(c.Sender().ID, name)})
}

func (b *Bot) currentTerms(ctx context.Context) string {
	terms, err := b.terms.CurrentTerms(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Warn(ctx, componentTG, "terms.load", slog.String("err", err.Error()))
	}
	return strings.TrimSpace(terms)
}

func (b *Bot) askTerms(c tele.Context, terms string) error {
	rm := keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "✅ Accept", Unique: cbTermsAccept},
		{Text: "❌ Decline", Unique: cbTermsDecline},
	})
	return b.say(c, "Before ordering please read and accept our terms:\n\n"+terms, rm)
}

func (b *Bot) onTermsAccept(c tele.Context) error {
	sender := c.Sender()
	ctx := helpers.BuildContext(c)
	if _, err := b.users.Register(ctx, model.User{
		ID:        sender.ID,
		Username:  sender.Username,
		FirstName: sender.FirstName,
		LastName:  sender.LastName,
	}); err != nil {
		return b.termsFailed(ctx, c, err)
	}
	if err := b.users.SetAgreedToTerms(ctx, sender.ID, true); err != nil {
		return b.termsFailed(ctx, c, err)
	}
	b.agreed.Store(sender.ID, true)
	logger.Info(ctx, componentTG, "terms.accepted", slog.Int64("user_id", sender.ID))
	return b.mainMenu(c, sender.FirstName)
}

func (b *Bot) termsFailed(ctx context.Context, c tele.Context, err error) error {
	logger.Error(ctx, componentTG, "terms.accept",
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	)
	return b.say(c, msgTryLater)
}

func (b *Bot) onTermsDecline(c tele.Context) error {
	return b.say(c, "You can browse the shop once you accept the terms. Send /start whenever you are ready.")
}

// allowed reports whether the sender accepted the terms, asking for them otherwise.
func (b *Bot) allowed(c tele.Context) (bool, error) {
	sender := c.Sender()
	if sender == nil {
		return false, nil
	}
	if _, ok := b.agreed.Load(sender.ID); ok {
		return true, nil
	}
	ctx := helpers.BuildContext(c)
	terms := b.currentTerms(ctx)
	if terms == "" {
		return true, nil
	}
	u, err := helpers.CurrentUser[model.User](c, b.users)
	switch {
	case err == nil && u.AgreedToTerms:
		b.agreed.Store(sender.ID, true)
		return true, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		logger.Error(ctx, componentTG, "user.load", slog.String("err", err.Error()))
		return false, b.say(c, msgTryLater)
	}
	return false, b.askTerms(c, terms)
}

// event returns a handler that sends a payload-free event.
func (b *Bot) event(t fsm.EventType) tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Sender() == nil {
			return nil
		}
		return b.dispatch(c, fsm.Simple(c.Sender().ID, t))
	}
}

func (b *Bot) onCity(c tele.Context) error {
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return b.UnknownCallback()(c)
	}
	return b.dispatch(c, fsm.CitySelected(c.Sender().ID, id))
}

func (b *Bot) onProduct(c tele.Context) error {
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return b.UnknownCallback()(c)
	}
	return b.dispatch(c, fsm.ShowProduct(c.Sender().ID, id))
}

func (b *Bot) onAdd(c tele.Context) error {
	ids, err := callbacks.PayloadInt64s(c, 2)
	if err != nil {
		return b.UnknownCallback()(c)
	}
	return b.dispatch(c, fsm.AddToCart(c.Sender().ID, ids[0], int(ids[1])))
}

// onBuyNow adds one item and opens the cart review.
func (b *Bot) onBuyNow(c tele.Context) error {
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return b.UnknownCallback()(c)
	}
	user := c.Sender().ID
	return b.dispatch(c, fsm.AddToCart(user, id, 1), fsm.Simple(user, fsm.EventViewCart))
}

func (b *Bot) onRemove(c tele.Context) error {
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		return b.UnknownCallback()(c)
	}
	return b.dispatch(c, fsm.RemoveFromCart(c.Sender().ID, id))
}

// onCancel leaves an admin dialog if one is open, otherwise steps back in checkout.
func (b *Bot) onCancel(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	if b.dialogs.InProgress(c.Sender().ID) {
		b.dialogs.Clear(c.Sender().ID)
		return b.say(c, "Cancelled.")
	}
	return b.dispatch(c, fsm.Simple(c.Sender().ID, fsm.EventCancel))
}

// onInput consumes free text when the session waits for delivery details or
// feedback.
func (b *Bot) onInput(c tele.Context) (bool, error) {
	sender := c.Sender()
	text := c.Text()
	if sender == nil || strings.HasPrefix(text, "/") {
		return false, nil
	}
	ctx := helpers.BuildContext(c)
	sess, err := b.machine.Session(ctx, sender.ID)
	if err != nil {
		logger.Error(ctx, componentTG, "session.load", slog.String("err", err.Error()))
		return true, b.say(c, msgTryLater)
	}
	switch sess.State {
	case model.StateAwaitingConfirmation:
		return true, b.dispatch(c, fsm.DetailEvent(sess, b.requirePhone, text))
	case model.StateAwaitingFeedback:
		return true, b.dispatch(c, fsm.SubmitFeedback(sender.ID, text))
	}
	return false, nil
}

func (b *Bot) onContact(c tele.Context) error {
	msg := c.Message()
	sender := c.Sender()
	if msg == nil || msg.Contact == nil || sender == nil {
		return nil
	}
	if msg.Contact.UserID != 0 && msg.Contact.UserID != sender.ID {
		return b.say(c, "Please share your own phone number.")
	}
	return b.dispatch(c, fsm.SetContact(sender.ID, contactPhone(msg.Contact.PhoneNumber)))
}

// contactPhone restores the plus sign Telegram drops from shared contacts.
func contactPhone(raw string) string {
	p := strings.TrimSpace(raw)
	if strings.HasPrefix(p, "380") {
		return "+" + p
	}
	return p
}

// onPhoto feeds photos to an open admin dialog.
func (b *Bot) onPhoto(c tele.Context) error {
	if c.Sender() != nil && b.dialogs.InProgress(c.Sender().ID) {
		return b.dialogs.Dispatch(c)
	}
	return b.UnknownText()(c)
}

// dispatch runs the events in order, stopping at the first rejection, and
// renders the actions of the last handled event.
func (b *Bot) dispatch(c tele.Context, events ...fsm.Event) error {
	if ok, err := b.allowed(c); !ok {
		return err
	}
	ctx := helpers.BuildContext(c)
	var out fsm.Outcome
	for _, ev := range events {
		var err error
		out, err = b.handle(ctx, ev)
		if err != nil {
			if derr := b.deliver(c, out.Actions); derr != nil {
				return errors.Join(err, derr)
			}
			return err
		}
		b.afterEvent(ctx, c, ev, out)
	}
	if err := b.deliver(c, out.Actions); err != nil {
		return err
	}
	last := events[len(events)-1]
	if last.Type == fsm.EventSetContact {
		return b.say(c, "Phone number saved.", keyboard.RemoveKeyboard())
	}
	if b.requirePhone && last.Type == fsm.EventConfirm &&
		out.Session.State == model.StateAwaitingConfirmation && out.Session.Phone == "" {
		return b.say(c, "Tap the button below to share your phone number, or type it.",
			keyboard.RequestContact("📱 Share phone number"))
	}
	return nil
}

// handle retries storage failures with linear backoff.
func (b *Bot) handle(ctx context.Context, ev fsm.Event) (fsm.Outcome, error) {
	for attempt := 1; ; attempt++ {
		out, err := b.machine.Handle(ctx, ev)
		var fe *fsm.Error
		if err == nil || !errors.As(err, &fe) || !fe.Retryable() || attempt >= b.retryAttempts {
			return out, err
		}
		logger.Warn(ctx, componentTG, "event.retry",
			slog.Int64("user_id", ev.UserID),
			slog.String("op", string(ev.Type)),
			slog.Int("attempt", attempt),
			slog.String("err", err.Error()),
		)
		t := time.NewTimer(time.Duration(attempt) * b.retryBackoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return out, err
		case <-t.C:
		}
	}
}

// afterEvent forwards new orders and feedback to the notifier.
func (b *Bot) afterEvent(ctx context.Context, c tele.Context, ev fsm.Event, out fsm.Outcome) {
	if b.notifier == nil {
		return
	}
	var (
		kind string
		err  error
	)
	switch {
	case ev.Type == fsm.EventConfirm && out.Order != nil && !out.Replayed:
		kind = "order"
		err = b.notifier.OrderPlaced(ctx, *out.Order, b.customer(c))
	case out.Feedback != nil:
		kind = "feedback"
		err = b.notifier.FeedbackReceived(ctx, *out.Feedback, b.customer(c))
	default:
		return
	}
	if err != nil {
		logger.Warn(ctx, componentTG, "notify",
			slog.String("status", "fail"),
			slog.String("kind", kind),
			slog.String("err", err.Error()),
		)
	}
}

// customer returns the stored profile, falling back to the Telegram sender.
func (b *Bot) customer(c tele.Context) model.User {
	s := c.Sender()
	if u, err := helpers.CurrentUser[model.User](c, b.users); err == nil {
		return u
	}
	return model.User{ID: s.ID, Username: s.Username, FirstName: s.FirstName, LastName: s.LastName}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
