// Package cocgw is a Clash of Clans API client whose requests are
// authenticated with keys rotated across a pool of developer accounts.
//
//	keys, _ := keyring.New(portal.New())
//	_ = keys.Register(keyring.Credential{Email: "dev@example.com", Password: "..."})
//	_, _ = keys.RefreshAll(ctx)
//	client := cocgw.NewClient(keys)
//	clan, err := client.Clan(ctx, "#2PP")
package cocgw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/clashkit/cocgw/internal/version"
	"github.com/clashkit/cocgw/keyring"
	"github.com/clashkit/cocgw/paging"
)

// DefaultBaseURL is the game API root.
const DefaultBaseURL = "https://api.clashofclans.com/v1"

const maxResponseBytes = 16 << 20

// Sentinel errors matched by *APIError through errors.Is.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrAccessDenied = errors.New("access denied")
	ErrThrottled    = errors.New("request throttled")
	ErrMaintenance  = errors.New("api in maintenance")
)

// APIError is a non-2xx answer from the game API.
type APIError struct {
	StatusCode int    `json:"-"`
	Reason     string `json:"reason"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api status %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}
	if e.Reason != "" {
		return fmt.Sprintf("api status %d (%s)", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("api status %d", e.StatusCode)
}

// Is maps status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusNotFound:
		return target == ErrNotFound
	case http.StatusForbidden, http.StatusUnauthorized:
		return target == ErrAccessDenied
	case http.StatusTooManyRequests:
		return target == ErrThrottled
	case http.StatusServiceUnavailable:
		return target == ErrMaintenance
	}
	return false
}

// Client calls the game API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	baseURL string
	base    http.RoundTripper
	cfg     *APIConfig
}

// WithAPIBaseURL overrides the game API root.
func WithAPIBaseURL(u string) ClientOption {
	return func(o *clientOptions) { o.baseURL = u }
}

// WithBaseTransport sets the RoundTripper under the key-rotating transport.
func WithBaseTransport(rt http.RoundTripper) ClientOption {
	return func(o *clientOptions) { o.base = rt }
}

// WithAPIConfig applies an APIConfig (base URL and timeout).
func WithAPIConfig(cfg APIConfig) ClientOption {
	return func(o *clientOptions) {
		o.cfg = &cfg
		if cfg.BaseURL != "" {
			o.baseURL = cfg.BaseURL
		}
	}
}

// NewClient creates a client whose requests draw keys from m.
func NewClient(m *keyring.Manager, opts ...ClientOption) *Client {
	o := clientOptions{baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(&o)
	}
	timeout := DefaultTimeout
	if o.cfg != nil {
		timeout = o.cfg.Timeout()
	}
	return &Client{
		baseURL: strings.TrimRight(o.baseURL, "/"),
		httpClient: &http.Client{
			Transport: NewTransport(m, o.base),
			Timeout:   timeout,
		},
	}
}

// Clan fetches a clan by tag.
func (c *Client) Clan(ctx context.Context, tag string) (*Clan, error) {
	var out Clan
	if err := c.do(ctx, http.MethodGet, "/clans/"+FormatTag(tag), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClanMembers fetches one page of a clan's members. Use the returned
// Paging to build the next or previous page.
func (c *Client) ClanMembers(ctx context.Context, tag string, page paging.Page) (*MemberList, error) {
	var out MemberList
	if err := c.do(ctx, http.MethodGet, page.Render("/clans/"+FormatTag(tag)+"/members"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentWar fetches the clan's current war.
func (c *Client) CurrentWar(ctx context.Context, tag string) (*War, error) {
	var out War
	if err := c.do(ctx, http.MethodGet, "/clans/"+FormatTag(tag)+"/currentwar", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Player fetches a player by tag.
func (c *Client) Player(ctx context.Context, tag string) (*Player, error) {
	var out Player
	if err := c.do(ctx, http.MethodGet, "/players/"+FormatTag(tag), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyPlayerToken checks an in-game API token against the player's tag.
func (c *Client) VerifyPlayerToken(ctx context.Context, tag, token string) (*PlayerToken, error) {
	var out PlayerToken
	in := struct {
		Token string `json:"token"`
	}{Token: token}
	if err := c.do(ctx, http.MethodPost, "/players/"+FormatTag(tag)+"/verifytoken", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GoldPass fetches the current gold pass season.
func (c *Client) GoldPass(ctx context.Context) (*GoldPassSeason, error) {
	var out GoldPassSeason
	if err := c.do(ctx, http.MethodGet, "/goldpass/seasons/current", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	url := c.baseURL + path

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, keyring.ErrEmptyPool) {
			return fmt.Errorf("%s %s: %w", method, path, keyring.ErrEmptyPool)
		}
		return &keyring.TransportError{Op: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &keyring.TransportError{Op: method, URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &keyring.DeserializationError{Op: method + " " + path, Err: err}
	}
	return nil
}
