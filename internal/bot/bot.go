// Package bot adapts Telegram updates to state machine events, renders the
// resulting actions and hosts the admin panel dialogs.
package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	tg "github.com/m3rciful/flowerbot/core/telegram"
	"github.com/m3rciful/flowerbot/core/telegram/commands"
	"github.com/m3rciful/flowerbot/core/telegram/middleware"
	"github.com/m3rciful/flowerbot/core/telegram/router"
	"github.com/m3rciful/flowerbot/core/telegram/state"
	"github.com/m3rciful/flowerbot/core/telegram/ui"
	"github.com/m3rciful/flowerbot/internal/admin"
	"github.com/m3rciful/flowerbot/internal/fsm"
	"github.com/m3rciful/flowerbot/internal/model"
	"github.com/m3rciful/flowerbot/internal/notify"
	"github.com/m3rciful/flowerbot/internal/storage"

	tele "gopkg.in/telebot.v4"
)

const componentTG = "tg"

// Machine is the part of the state machine the adapter drives.
type Machine interface {
	Handle(ctx context.Context, ev fsm.Event) (fsm.Outcome, error)
	Session(ctx context.Context, userID int64) (model.Session, error)
}

// Options wires the adapter.
type Options struct {
	Machine   Machine
	Presenter *fsm.Presenter
	Users     storage.Users
	Terms     storage.Terms
	Admin     *admin.Service
	// Notifier may be nil; placed orders and feedback are then not forwarded.
	Notifier notify.Notifier
	// Dialogs defaults to an in-memory manager.
	Dialogs state.Manager
	IsAdmin func(userID int64) bool

	RequirePhone bool
	// RetryAttempts bounds how often a STORAGE_FAILURE event is tried; 1 disables retries.
	RetryAttempts int
	RetryBackoff  time.Duration
}

// Bot implements the Telegram handlers of the shop.
type Bot struct {
	machine   Machine
	presenter *fsm.Presenter
	users     storage.Users
	terms     storage.Terms
	admin     *admin.Service
	notifier  notify.Notifier
	dialogs   state.Manager
	isAdmin   func(int64) bool

	requirePhone  bool
	retryAttempts int
	retryBackoff  time.Duration

	// agreed caches users known to have accepted the terms.
	agreed sync.Map
}

// New builds the adapter. Machine, Users and Terms are required.
func New(opts Options) (*Bot, error) {
	if opts.Machine == nil || opts.Users == nil || opts.Terms == nil {
		return nil, errors.New("bot: machine, users and terms are required")
	}
	b := &Bot{
		machine:       opts.Machine,
		presenter:     opts.Presenter,
		users:         opts.Users,
		terms:         opts.Terms,
		admin:         opts.Admin,
		notifier:      opts.Notifier,
		dialogs:       opts.Dialogs,
		isAdmin:       opts.IsAdmin,
		requirePhone:  opts.RequirePhone,
		retryAttempts: opts.RetryAttempts,
		retryBackoff:  opts.RetryBackoff,
	}
	if b.presenter == nil {
		b.presenter = fsm.NewPresenter(fsm.PresenterOptions{RequirePhone: opts.RequirePhone})
	}
	if b.dialogs == nil {
		b.dialogs = state.NewMemoryManager(state.Options{TTL: 30 * time.Minute})
	}
	if b.isAdmin == nil {
		b.isAdmin = func(int64) bool { return false }
	}
	if b.retryAttempts < 1 {
		b.retryAttempts = 1
	}
	if b.retryBackoff <= 0 {
		b.retryBackoff = 200 * time.Millisecond
	}
	return b, nil
}

var _ ui.FallbackProvider = (*Bot)(nil)

// Register adds the shop commands, callbacks and dialog steps.
func (b *Bot) Register(reg *tg.Registry) error {
	cmds := map[string]commands.Command{
		"/start":    {Handler: b.onStart, Description: "Main menu", Aliases: []string{"menu"}},
		"/order":    {Handler: b.event(fsm.EventShowCities), Description: "Order flowers"},
		"/cart":     {Handler: b.event(fsm.EventViewCart), Description: "Your cart"},
		"/feedback": {Handler: b.event(fsm.EventRequestFeedback), Description: "Leave feedback"},
		"/reset":    {Handler: b.event(fsm.EventReset), Description: "Start over"},
		"/cancel":   {Handler: b.onCancel, Description: "Cancel the current step", Hidden: true},
	}
	if b.admin != nil {
		cmds["/admin"] = commands.Command{Handler: b.onAdmin, Description: "Admin panel", AdminOnly: true}
	}
	var errs []error
	for name, cmd := range cmds {
		errs = append(errs, reg.RegisterCommand(name, cmd))
	}

	shop := map[string]tele.HandlerFunc{
		fsm.CallbackCities:   b.event(fsm.EventShowCities),
		fsm.CallbackCity:     b.onCity,
		fsm.CallbackProduct:  b.onProduct,
		fsm.CallbackAdd:      b.onAdd,
		fsm.CallbackBuyNow:   b.onBuyNow,
		fsm.CallbackCart:     b.event(fsm.EventViewCart),
		fsm.CallbackRemove:   b.onRemove,
		fsm.CallbackClear:    b.event(fsm.EventClearCart),
		fsm.CallbackConfirm:  b.event(fsm.EventConfirm),
		fsm.CallbackCancel:   b.event(fsm.EventCancel),
		fsm.CallbackFeedback: b.event(fsm.EventRequestFeedback),
		fsm.CallbackReset:    b.event(fsm.EventReset),
		cbTermsAccept:        b.onTermsAccept,
		cbTermsDecline:       b.onTermsDecline,
	}
	for key, h := range shop {
		errs = append(errs, reg.RegisterCallback(key, h))
	}
	if b.admin != nil {
		for key, h := range b.adminCallbacks() {
			errs = append(errs, reg.RegisterCallback(key, h))
		}
		b.registerDialogs()
	}
	ui.Install(reg, b)
	return errors.Join(errs...)
}

// Routes returns every route of the shop for the runtime.
func (b *Bot) Routes(reg *tg.Registry) []tg.Route {
	adminOpts := middleware.AdminOptions{IsAdmin: b.isAdmin, OnReject: b.denyAdmin}
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		IsAdmin:       b.isAdmin,
		OnAdminReject: b.denyAdmin,
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{
		Admin:     adminOpts,
		AdminKeys: b.adminKeys(),
	}))
	routes = append(routes, router.TextRoutes(b.dialogs, reg, router.TextOptions{
		Input:   b.onInput,
		Contact: b.onContact,
	})...)
	return append(routes, tg.Route{
		Endpoint: tele.OnPhoto,
		Handler:  middleware.LoggerMiddleware(middleware.RecoverMiddleware(b.onPhoto)),
	})
}

// UnknownText answers free text nobody expected.
func (b *Bot) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return b.say(c, "Please use the buttons, or send /start to open the menu.")
	}
}

// UnknownCallback answers buttons from outdated messages.
func (b *Bot) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return b.say(c, "This button is no longer active. Send /start to open the menu.")
	}
}

func (b *Bot) denyAdmin(c tele.Context) error {
	return b.say(c, "This action is available to administrators only.")
}
