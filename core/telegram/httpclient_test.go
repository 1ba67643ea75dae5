package telegram

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"syscall"
	"testing"
)

type flakyTransport struct {
	fails  int
	calls  int
	bodies []string
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		f.bodies = append(f.bodies, string(data))
	}
	if f.calls <= f.fails {
		return nil, syscall.ECONNRESET
	}
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
}

func TestAPITransportRetriesResetConnections(t *testing.T) {
	next := &flakyTransport{fails: 2}
	tr := &apiTransport{next: next, retries: 3}
	req, _ := http.NewRequest(http.MethodPost, "https://api.telegram.org/bot1:x/sendMessage", strings.NewReader(`{"text":"hi"}`))

	resp, err := tr.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("resp=%v err=%v", resp, err)
	}
	if next.calls != 3 {
		t.Fatalf("calls = %d, want 3", next.calls)
	}
	for i, b := range next.bodies {
		if b != `{"text":"hi"}` {
			t.Fatalf("attempt %d body = %q", i+1, b)
		}
	}
}

func TestAPITransportGivesUp(t *testing.T) {
	next := &flakyTransport{fails: 10}
	tr := &apiTransport{next: next, retries: 2}
	req, _ := http.NewRequest(http.MethodGet, "https://api.telegram.org/bot1:x/getMe", nil)
	if _, err := tr.RoundTrip(req); !errors.Is(err, syscall.ECONNRESET) {
		t.Fatalf("err = %v", err)
	}
	if next.calls != 3 {
		t.Fatalf("calls = %d, want 3", next.calls)
	}

	// A body without GetBody cannot be replayed.
	next = &flakyTransport{fails: 10}
	tr.next = next
	req, _ = http.NewRequest(http.MethodPost, "https://api.telegram.org/bot1:x/sendPhoto", io.NopCloser(strings.NewReader("photo")))
	if _, err := tr.RoundTrip(req); err == nil || next.calls != 1 {
		t.Fatalf("err=%v calls=%d", err, next.calls)
	}
}

func TestAPIMethodHidesToken(t *testing.T) {
	if got := apiMethod("/bot123:secret/sendMessage"); got != "sendMessage" {
		t.Fatalf("method = %q", got)
	}
}
