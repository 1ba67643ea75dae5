package helpers

import (
	"errors"
	"fmt"
	"testing"

	tele "gopkg.in/telebot.v4"
)

type editContext struct {
	tele.Context
	err   error
	calls int
}

func (c *editContext) EditOrSend(what interface{}, opts ...interface{}) error {
	c.calls++
	return c.err
}

func TestEditOrSendTextIgnoresUnchangedEdit(t *testing.T) {
	c := &editContext{Context: tele.NewContext(nil, tele.Update{}), err: tele.ErrMessageNotModified}
	if err := EditOrSendText(c, "same"); err != nil {
		t.Fatalf("EditOrSendText: %v", err)
	}
	if c.calls != 1 {
		t.Fatalf("calls = %d", c.calls)
	}

	c.err = tele.ErrBlockedByUser
	if err := EditOrSendText(c, "other"); !errors.Is(err, tele.ErrBlockedByUser) {
		t.Fatalf("err = %v", err)
	}
}

func TestIsNotModified(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{tele.ErrMessageNotModified, true},
		{tele.ErrSameMessageContent, true},
		{fmt.Errorf("edit: %w", tele.ErrMessageNotModified), true},
		{errors.New("telegram: Bad Request: message is not modified (400)"), true},
		{tele.ErrBlockedByUser, false},
	}
	for _, tc := range cases {
		if got := IsNotModified(tc.err); got != tc.want {
			t.Fatalf("IsNotModified(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
