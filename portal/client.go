// Package portal talks to the Clash of Clans developer portal: it logs in
// with an account's credentials, lists, creates and revokes the account's
// API keys, and resolves the caller's public IP. *Client implements
// keyring.Portal and keyring.KeyCreator.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/clashkit/cocgw/internal/logging"
	"github.com/clashkit/cocgw/internal/version"
	"github.com/clashkit/cocgw/keyring"
)

const (
	// DefaultBaseURL is the developer portal API root.
	DefaultBaseURL = "https://developer.clashofclans.com/api"
	// DefaultIPResolverURL answers GET with the caller's address as plain text.
	DefaultIPResolverURL = "https://api.ipify.org"

	maxBodyBytes = 4 << 20
)

// Client is an HTTP developer portal client. It is stateless between calls:
// session cookies live in the keyring.Session returned by Login.
type Client struct {
	baseURL    string
	ipURL      string
	httpClient *http.Client
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for portal and IP calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the portal API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithIPResolverURL overrides the public IP endpoint.
func WithIPResolverURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.ipURL = u
		}
	}
}

// New creates a portal client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		ipURL:      DefaultIPResolverURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges cred for a session. A 401/403 answer is reported as an
// error matching keyring.ErrAuth.
func (c *Client) Login(ctx context.Context, cred keyring.Credential) (*keyring.Session, error) {
	var out loginResponse
	resp, err := c.post(ctx, "login", "/login", nil, credentialRequest{Email: cred.Email, Password: cred.Password}, &out)
	if err != nil {
		return nil, err
	}

	session := &keyring.Session{
		Cookies:           resp.Cookies(),
		TemporaryAPIToken: out.TemporaryAPIToken,
		DeveloperID:       out.Developer.ID,
		LoginIP:           out.Auth.IP,
	}
	if out.SessionExpiresInSeconds > 0 {
		session.ExpiresAt = c.now().Add(time.Duration(out.SessionExpiresInSeconds) * time.Second)
	}

	logging.FromContext(ctx).Debug("portal login",
		"account", cred.Email,
		"developer_id", session.DeveloperID,
		"login_ip", session.LoginIP,
		"cookies", len(session.Cookies),
	)
	return session, nil
}

// ListKeys returns every key owned by the session's account. A 401/403
// answer is reported as an error matching keyring.ErrSessionExpired.
func (c *Client) ListKeys(ctx context.Context, session *keyring.Session) ([]keyring.KeyRecord, error) {
	var out keysResponse
	if _, err := c.post(ctx, "list keys", "/apikey/list", session, struct{}{}, &out); err != nil {
		return nil, err
	}
	keys := make([]keyring.KeyRecord, len(out.Keys))
	for i, k := range out.Keys {
		keys[i] = k.record()
	}
	return keys, nil
}

// CreateKey issues a new key for the session's account.
func (c *Client) CreateKey(ctx context.Context, session *keyring.Session, spec keyring.KeySpec) (keyring.KeyRecord, error) {
	req := createKeyRequest{
		Name:        spec.Name,
		Description: spec.Description,
		CIDRRanges:  spec.CIDRRanges,
		Scopes:      spec.Scopes,
	}
	if req.Description == "" {
		req.Description = spec.Name
	}
	var out keyResponse
	if _, err := c.post(ctx, "create key", "/apikey/create", session, req, &out); err != nil {
		return keyring.KeyRecord{}, err
	}
	if out.Key.Key == "" {
		return keyring.KeyRecord{}, &keyring.DeserializationError{Op: "create key", Err: errors.New("response carries no key")}
	}
	return out.Key.record(), nil
}

// RevokeKey deletes the key with the given ID.
func (c *Client) RevokeKey(ctx context.Context, session *keyring.Session, id string) error {
	var out struct {
		Status status `json:"status"`
	}
	_, err := c.post(ctx, "revoke key", "/apikey/revoke", session, revokeKeyRequest{ID: id}, &out)
	return err
}

// Logout ends the portal session.
func (c *Client) Logout(ctx context.Context, session *keyring.Session) error {
	_, err := c.post(ctx, "logout", "/logout", session, struct{}{}, nil)
	return err
}

// CurrentIP returns the caller's public address.
func (c *Client) CurrentIP(ctx context.Context) (netip.Addr, error) {
	const op = "resolve ip"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ipURL, nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return netip.Addr{}, &keyring.TransportError{Op: op, URL: c.ipURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return netip.Addr{}, &keyring.TransportError{Op: op, URL: c.ipURL, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, &keyring.PortalError{Op: op, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	ip, err := netip.ParseAddr(strings.TrimSpace(string(body)))
	if err != nil {
		return netip.Addr{}, &keyring.DeserializationError{Op: op, Err: err}
	}
	return ip.Unmap(), nil
}

// post sends a JSON body to the portal, attaching the session cookies, and
// decodes a 2xx answer into out when out is non-nil.
func (c *Client) post(ctx context.Context, op, path string, session *keyring.Session, in, out any) (*http.Response, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", op, err)
	}
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if session != nil {
		for _, ck := range session.Cookies {
			req.AddCookie(ck)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &keyring.TransportError{Op: op, URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &keyring.TransportError{Op: op, URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, portalError(op, resp.StatusCode, body)
	}
	if out == nil {
		return resp, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, &keyring.DeserializationError{Op: op, Err: err}
	}
	return resp, nil
}

// portalError builds a *keyring.PortalError from a non-2xx answer, reading
// the status envelope when the body has one.
func portalError(op string, code int, body []byte) *keyring.PortalError {
	pe := &keyring.PortalError{Op: op, StatusCode: code}
	var env struct {
		Status status `json:"status"`
		// The game API style {"reason","message"} also shows up on some paths.
		Reason  string `json:"reason"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &env) == nil {
		pe.Reason = env.Reason
		pe.Message = env.Status.Message
		if env.Status.Detail != "" {
			pe.Message = strings.TrimSpace(pe.Message + " " + env.Status.Detail)
		}
		if pe.Message == "" {
			pe.Message = env.Message
		}
	}
	return pe
}
