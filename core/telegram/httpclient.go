package telegram

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/m3rciful/flowerbot/core/logger"
	"github.com/m3rciful/flowerbot/core/telegram/netutil"
)

const (
	dialTimeout      = 5 * time.Second
	handshakeTimeout = 5 * time.Second
	idleConnTimeout  = 30 * time.Second
	// Long polls hold the response for up to the poll timeout; the client
	// timeout bounds the whole exchange.
	clientTimeout  = 30 * time.Second
	keepAlive      = 30 * time.Second
	apiRetries     = 3
	apiRetryPause  = 2 * time.Second
	maxIdlePerHost = 10
)

// BuildHTTPClient returns the client used for Bot API calls. Requests that
// fail before a response arrives are retried with a growing pause.
func BuildHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   maxIdlePerHost,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   handshakeTimeout,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   clientTimeout,
		Transport: &apiTransport{next: transport, retries: apiRetries, pause: apiRetryPause},
	}
}

// apiTransport retries transient transport failures. A request whose body
// cannot be replayed is sent once.
type apiTransport struct {
	next    http.RoundTripper
	retries int
	pause   time.Duration
}

func (t *apiTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for attempt := 1; ; attempt++ {
		resp, err := t.next.RoundTrip(req)
		if err == nil || attempt > t.retries || !netutil.ShouldRetry(err) {
			return resp, err
		}
		again, ok := rewind(req)
		if !ok {
			return nil, err
		}
		logger.Debug(req.Context(), componentTG, "http.retry",
			slog.String("op", apiMethod(req.URL.Path)),
			slog.Int("attempt", attempt),
		)
		if err := pause(req.Context(), t.pause*time.Duration(attempt)); err != nil {
			return nil, err
		}
		req = again
	}
}

// rewind returns a copy of req with a fresh body.
func rewind(req *http.Request) (*http.Request, bool) {
	again := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return again, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	again.Body = body
	return again, true
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// apiMethod returns the method of a "/bot<token>/<method>" path, keeping the
// token out of the logs.
func apiMethod(path string) string {
	return path[strings.LastIndexByte(path, '/')+1:]
}
