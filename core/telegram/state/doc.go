// Package state tracks short multi-step Telegram dialogs, such as an admin
// typing a new product name, independently of any business state machine.
package state
