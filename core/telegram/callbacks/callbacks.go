// Package callbacks decodes the data of inline keyboard presses.
package callbacks

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Sep separates the unique key from the payload and the payload fields
// from each other.
const Sep = "|"

// ErrPayload reports a payload that does not hold the expected ids.
var ErrPayload = errors.New("callbacks: malformed payload")

// ParseCallbackData splits Telebot's "\f<unique>|<payload>" encoding. Clients
// that echo the escaped `\f` prefix are accepted too.
func ParseCallbackData(cb *tele.Callback) (unique, payload string) {
	if cb == nil {
		return "", ""
	}
	raw := strings.TrimPrefix(strings.TrimPrefix(cb.Data, "\f"), `\f`)
	unique, payload, _ = strings.Cut(raw, Sep)
	return strings.TrimSpace(unique), payload
}

// Payload returns the payload of the pressed button, or "".
func Payload(c tele.Context) string {
	_, p := ParseCallbackData(c.Callback())
	return p
}

// PayloadInt64 parses a payload holding a single id.
func PayloadInt64(c tele.Context) (int64, error) {
	return strconv.ParseInt(Payload(c), 10, 64)
}

// PayloadInt64s parses a payload of exactly n ids joined by Sep.
func PayloadInt64s(c tele.Context, n int) ([]int64, error) {
	raw := Payload(c)
	parts := strings.Split(raw, Sep)
	if raw == "" || len(parts) != n {
		return nil, fmt.Errorf("%w: want %d ids in %q", ErrPayload, n, raw)
	}
	ids := make([]int64, n)
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrPayload, raw, err)
		}
		ids[i] = v
	}
	return ids, nil
}
