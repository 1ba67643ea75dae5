package ui

import tele "gopkg.in/telebot.v4"

// FallbackProvider exposes handlers used when incoming updates
// cannot be mapped to commands, callbacks, dialog steps or expected input.
type FallbackProvider interface {
	UnknownText() tele.HandlerFunc
	UnknownCallback() tele.HandlerFunc
}

// Install registers the provider's handlers as registry fallbacks.
func Install(reg interface {
	SetTextFallback(tele.HandlerFunc)
	SetCallbackNotFound(tele.HandlerFunc)
}, p FallbackProvider) {
	if reg == nil || p == nil {
		return
	}
	reg.SetTextFallback(p.UnknownText())
	reg.SetCallbackNotFound(p.UnknownCallback())
}
