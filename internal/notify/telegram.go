package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/m3rciful/flowerbot/core/logger"
	"github.com/m3rciful/flowerbot/core/telegram/format"
	"github.com/m3rciful/flowerbot/core/telegram/keyboard"
	"github.com/m3rciful/flowerbot/internal/model"

	tele "gopkg.in/telebot.v4"
)

// Callback uniques of the manager buttons attached to order notifications.
const (
	CallbackAccept = "mgr_accept"
	CallbackReject = "mgr_reject"
)

// ErrNotBound is returned before the bot is attached.
var ErrNotBound = errors.New("notify: telegram bot not bound")

// Sender is the part of *tele.Bot used for notifications.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Retrier runs a send under the outbound retry policy, flood waits
// included. *sender.Dispatcher implements it.
type Retrier interface {
	Do(ctx context.Context, action, endpoint string, run func() error) error
}

// TelegramOptions configures the manager chat notifier.
type TelegramOptions struct {
	// ManagerChatID receives orders and feedback; zero sends them to the admins.
	ManagerChatID int64
	AdminIDs      []int64
	Currency      string
}

// Telegram posts orders and feedback to the manager chat and status changes to customers.
type Telegram struct {
	mu    sync.RWMutex
	bot   Sender
	retry Retrier
	opts  TelegramOptions
}

// NewTelegram builds an unbound notifier; call Bind once the bot exists.
func NewTelegram(opts TelegramOptions) *Telegram {
	if opts.Currency == "" {
		opts.Currency = "UAH"
	}
	return &Telegram{opts: opts}
}

// Bind attaches the bot used to send messages. retry may be nil, in which
// case every send is attempted once.
func (t *Telegram) Bind(bot Sender, retry Retrier) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bot = bot
	t.retry = retry
}

func (t *Telegram) bound() (Sender, Retrier, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.bot == nil {
		return nil, nil, ErrNotBound
	}
	return t.bot, t.retry, nil
}

// send delivers one message, through the retrier when one is bound.
func (t *Telegram) send(ctx context.Context, action string, chatID int64, text string, opts ...interface{}) error {
	bot, retry, err := t.bound()
	if err != nil {
		return err
	}
	run := func() error {
		_, err := bot.Send(tele.ChatID(chatID), text, opts...)
		return err
	}
	if retry == nil {
		return run()
	}
	return retry.Do(ctx, action, "sendMessage", run)
}

func (t *Telegram) managerTargets() []int64 {
	if t.opts.ManagerChatID != 0 {
		return []int64{t.opts.ManagerChatID}
	}
	return t.opts.AdminIDs
}

// OrderPlaced sends the order card with accept/reject buttons.
func (t *Telegram) OrderPlaced(ctx context.Context, o model.Order, customer model.User) error {
	id := strconv.FormatInt(o.ID, 10)
	markup := keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: "✅ Accept", Unique: CallbackAccept, Data: id},
		{Text: "❌ Reject", Unique: CallbackReject, Data: id},
	})
	return t.toManagers(ctx, "order", t.OrderCard(o, customer), markup)
}

// FeedbackReceived forwards the feedback text.
func (t *Telegram) FeedbackReceived(ctx context.Context, fb model.Feedback, customer model.User) error {
	var b strings.Builder
	b.WriteString("*New feedback*\n")
	b.WriteString("From: " + customerLine(customer) + "\n")
	if fb.OrderID != 0 {
		b.WriteString(format.V2(fmt.Sprintf("Order: #%d", fb.OrderID)) + "\n")
	}
	b.WriteString("\n" + format.V2(fb.Text))
	return t.toManagers(ctx, "feedback", b.String(), nil)
}

// OrderStatusChanged tells the customer about the manager's decision.
func (t *Telegram) OrderStatusChanged(ctx context.Context, o model.Order) error {
	var text string
	switch o.Status {
	case model.OrderAccepted:
		text = fmt.Sprintf("Your order %s has been accepted.", o.Number())
	case model.OrderCancelled:
		text = fmt.Sprintf("Unfortunately your order %s has been cancelled.", o.Number())
	default:
		text = fmt.Sprintf("Your order %s is now %s.", o.Number(), o.Status)
	}
	if o.StatusNote != "" {
		text += "\nNote: " + o.StatusNote
	}
	if err := t.send(ctx, "notify.customer", o.UserID, text); err != nil {
		if errors.Is(err, ErrNotBound) {
			return err
		}
		logger.Warn(ctx, componentNotify, "notify.customer",
			slog.String("status", "fail"),
			slog.Int64("order_id", o.ID),
			slog.Int64("user_id", o.UserID),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("notify customer %d: %w", o.UserID, err)
	}
	return nil
}

// OrderCard renders the MarkdownV2 order summary shown to managers.
func (t *Telegram) OrderCard(o model.Order, customer model.User) string {
	var b strings.Builder
	b.WriteString("*New order " + format.V2(o.Number()) + "*\n")
	b.WriteString("Customer: " + customerLine(customer) + "\n")
	b.WriteString("City: " + format.V2(o.CityName) + "\n")
	if o.Phone != "" {
		b.WriteString("Phone: " + format.V2(o.Phone) + "\n")
	}
	if o.Area != "" {
		b.WriteString("Area: " + format.V2(o.Area) + "\n")
	}
	if o.Comment != "" {
		b.WriteString("Comment: " + format.V2(o.Comment) + "\n")
	}
	b.WriteString("\n")
	for _, li := range o.Items {
		b.WriteString(format.V2(fmt.Sprintf("• %s x%d = %s %s", li.ProductName, li.Quantity, li.Subtotal(), t.opts.Currency)) + "\n")
	}
	b.WriteString("\n*Total: " + format.V2(o.Total.String()+" "+t.opts.Currency) + "*")
	return b.String()
}

func customerLine(u model.User) string {
	name := u.FullName()
	if name == "" {
		name = "user"
	}
	line := format.V2(name)
	if u.Username != "" {
		line += " " + format.V2("@"+u.Username)
	}
	return line + " " + format.V2(fmt.Sprintf("(id %d)", u.ID))
}

func (t *Telegram) toManagers(ctx context.Context, kind, text string, markup *tele.ReplyMarkup) error {
	if _, _, err := t.bound(); err != nil {
		return err
	}
	targets := t.managerTargets()
	if len(targets) == 0 {
		logger.Warn(ctx, componentNotify, "notify.manager", slog.String("status", "skip"), slog.String("cause", "no_targets"))
		return nil
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdownV2, ReplyMarkup: markup}

	var errs []error
	for _, chatID := range targets {
		if err := t.send(ctx, "notify."+kind, chatID, text, opts); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	if len(errs) == 0 {
		logger.Debug(ctx, componentNotify, "notify.manager", slog.String("status", "ok"), slog.String("op", kind))
		return nil
	}

	err := errors.Join(errs...)
	logger.Error(ctx, componentNotify, "notify.manager",
		slog.String("status", "fail"),
		slog.String("op", kind),
		slog.String("err", err.Error()),
	)
	if t.opts.ManagerChatID != 0 {
		t.alertAdmins(ctx, fmt.Sprintf("Manager chat %d is unreachable, a %s notification was not delivered: %v",
			t.opts.ManagerChatID, kind, errs[0]))
	}
	return err
}

func (t *Telegram) alertAdmins(ctx context.Context, text string) {
	for _, id := range t.opts.AdminIDs {
		if err := t.send(ctx, "notify.admin", id, text); err != nil {
			logger.Warn(ctx, componentNotify, "notify.admin",
				slog.Int64("chat_id", id),
				slog.String("err", err.Error()),
			)
		}
	}
}
