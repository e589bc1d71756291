package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/clashkit/cocgw/internal/logging"
	"github.com/clashkit/cocgw/keyring"
)

// hopHeaders are client headers that must not reach the game API. The
// bearer token is replaced by a pooled key in the transport.
var hopHeaders = []string{
	"Authorization",
	"Cookie",
	"X-Request-ID",
}

// proxyHandler forwards every request to the game API at upstream, sending
// it through rt so that each one carries the next pooled key. Paths are
// relative to upstream: /clans/%232PP on the handler becomes
// {upstream}/clans/%232PP.
func proxyHandler(upstream *url.URL, rt http.RoundTripper) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(upstream)
	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = upstream.Host
		for _, h := range hopHeaders {
			req.Header.Del(h)
		}
		req.Header.Set("Accept", "application/json")
	}
	proxy.Transport = rt

	proxy.ModifyResponse = func(resp *http.Response) error {
		resp.Header.Del("Set-Cookie")
		resp.Header.Set("X-Gateway", "cocgw")
		return nil
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if errors.Is(err, keyring.ErrEmptyPool) {
			writeAPIError(w, http.StatusServiceUnavailable, "noUsableKey", "no API key is usable from this gateway's address; a refresh has been requested")
			return
		}
		logging.FromContext(r.Context()).Error("upstream request failed", "path", r.URL.Path, "error", err)
		writeAPIError(w, http.StatusBadGateway, "upstreamUnavailable", "game API request failed")
	}
	return proxy
}

// writeAPIError answers in the game API's own error shape so existing
// clients can parse gateway failures the same way.
func writeAPIError(w http.ResponseWriter, status int, reason, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"reason":  reason,
		"message": message,
	})
}
