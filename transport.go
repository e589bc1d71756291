package cocgw

import (
	"errors"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/clashkit/cocgw/internal/logging"
	"github.com/clashkit/cocgw/internal/metrics"
	"github.com/clashkit/cocgw/keyring"
)

// Transport is an http.RoundTripper that sends every request with the next
// key of a keyring.Manager as its bearer token. A 401 or 403 answer schedules
// a throttled background refresh of the pool, and the request is sent once
// more with the next key when its body can be replayed.
type Transport struct {
	keys *keyring.Manager
	auth *oauth2.Transport
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(m *keyring.Manager, base http.RoundTripper) *Transport {
	return &Transport{
		keys: m,
		auth: &oauth2.Transport{Source: keyring.TokenSource(m), Base: base},
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	ctx := req.Context()

	retry, canRetry := replayable(req)
	resp, err := t.auth.RoundTrip(req)
	if err == nil && rejected(resp.StatusCode) {
		t.keys.RequestRefresh(ctx)
		if canRetry {
			logging.FromContext(ctx).Warn("api key rejected, retrying with next key",
				"status", resp.StatusCode,
				"path", req.URL.Path,
			)
			drain(resp)
			metrics.TokenRetries.Inc()
			resp, err = t.auth.RoundTrip(retry)
		}
	}
	metrics.UpstreamDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("error").Inc()
		if errors.Is(err, keyring.ErrEmptyPool) {
			t.keys.RequestRefresh(ctx)
		}
		return nil, err
	}
	metrics.UpstreamRequests.WithLabelValues(metrics.StatusClass(resp.StatusCode)).Inc()
	return resp, nil
}

func rejected(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// replayable returns a copy of req that can be sent after req itself, or
// false when req's body cannot be read a second time.
func replayable(req *http.Request) (*http.Request, bool) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	clone.Body = body
	return clone, true
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
