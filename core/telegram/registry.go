package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/flowerbot/core/logger"
	"github.com/m3rciful/flowerbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

const componentWire = "tg.wire"

var (
	// ErrInvalidRoute is returned for an empty name, a missing handler or a
	// command without a leading slash or description.
	ErrInvalidRoute = errors.New("telegram: invalid registration")
	// ErrDuplicateRoute is returned when the name is already taken.
	ErrDuplicateRoute = errors.New("telegram: already registered")
)

// Registry maps slash commands and callback keys to handlers. Routes read
// it while the bot runs, so it is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	commands  map[string]commands.Command
	callbacks map[string]tele.HandlerFunc

	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// NewRegistry returns an empty registry whose unknown callbacks get a short
// toast.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
		},
	}
}

func rejected(event, name string, err error) error {
	logger.Warn(context.Background(), componentWire, event,
		slog.String("name", name),
		slog.String("err", err.Error()),
	)
	return fmt.Errorf("%w: %q", err, name)
}

// RegisterCommand adds a command under its slash name, e.g. "/cart".
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	if !strings.HasPrefix(name, "/") || len(name) < 2 || cmd.Handler == nil || cmd.Description == "" {
		return rejected("register.command.skip", name, ErrInvalidRoute)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.commands[name]; taken {
		return rejected("register.command.duplicate", name, ErrDuplicateRoute)
	}
	r.commands[name] = cmd
	return nil
}

// RegisterCallback adds the handler for inline buttons with the given unique.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		return rejected("register.callback.skip", key, ErrInvalidRoute)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.callbacks[key]; taken {
		return rejected("register.callback.duplicate", key, ErrDuplicateRoute)
	}
	r.callbacks[key] = handler
	return nil
}

// Commands returns a copy of the registered commands.
func (r *Registry) Commands() map[string]commands.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.commands)
}

// ListCommands returns the menu of an admin or a customer chat sorted by name.
func (r *Registry) ListCommands(admin bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []tele.Command
	for _, name := range slices.Sorted(maps.Keys(r.commands)) {
		if cmd := r.commands[name]; cmd.Listed(admin) {
			list = append(list, tele.Command{Text: name, Description: cmd.Description})
		}
	}
	return list
}

// LookupCommand resolves a command name or alias, with or without the
// slash, to its registered name.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := "/" + strings.TrimPrefix(name, "/")
	if cmd, ok := r.commands[key]; ok {
		return key, cmd, true
	}
	for key, cmd := range r.commands {
		if cmd.HasAlias(name) {
			return key, cmd, true
		}
	}
	return "", commands.Command{}, false
}

// GetCallback returns the handler registered for key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered callback keys in order.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.callbacks))
}

// SetCallbackNotFound replaces the handler for unknown callback keys. nil
// keeps the current one.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

// CallbackNotFound returns the handler for unknown callback keys.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetTextFallback sets the handler for text no route claimed.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.textFallback = h
	r.mu.Unlock()
}

// TextFallback returns the handler for text no route claimed.
func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

// SetupCommands publishes the public menu for everyone and the full menu,
// admin commands included, to each admin chat. Failures are logged only.
func SetupCommands(bot *tele.Bot, reg *Registry, adminIDs []int64) {
	if bot == nil || reg == nil {
		return
	}
	ctx := context.Background()
	if err := bot.SetCommands(reg.ListCommands(false)); err != nil {
		logger.Error(ctx, componentWire, "commands.publish_failed",
			slog.String("scope", "default"),
			slog.String("err", err.Error()),
		)
	}
	full := reg.ListCommands(true)
	for _, id := range adminIDs {
		if err := bot.SetCommands(full, tele.CommandScope{Type: tele.CommandScopeChat, ChatID: id}); err != nil {
			logger.Warn(ctx, componentWire, "commands.publish_failed",
				slog.String("scope", "admin"),
				slog.Int64("chat_id", id),
				slog.String("err", err.Error()),
			)
		}
	}
}
