// Package commands describes the slash commands a bot registers.
package commands

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Command is one entry of the bot's command menu.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands are listed only in admin chats.
	AdminOnly bool
	// Hidden commands answer when typed but are never listed.
	Hidden bool
	// Aliases are extra names, with or without the leading slash.
	Aliases []string
}

// Listed reports whether the command shows in the menu of an admin or a
// customer chat.
func (c Command) Listed(admin bool) bool {
	return !c.Hidden && (admin || !c.AdminOnly)
}

// HasAlias reports whether name is one of the command's aliases.
func (c Command) HasAlias(name string) bool {
	name = strings.TrimPrefix(name, "/")
	for _, alias := range c.Aliases {
		if strings.TrimPrefix(alias, "/") == name {
			return true
		}
	}
	return false
}
