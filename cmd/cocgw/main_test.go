package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/clashkit/cocgw"
	"github.com/clashkit/cocgw/internal/accountstore"
	"github.com/clashkit/cocgw/internal/admin"
	"github.com/clashkit/cocgw/keyring"
)

const testAdminToken = "test-admin-token"

// stubPortal hands out a fixed key list per account.
type stubPortal struct {
	keys map[string][]string
}

func (p stubPortal) Login(_ context.Context, cred keyring.Credential) (*keyring.Session, error) {
	return &keyring.Session{DeveloperID: strings.ToLower(cred.Email)}, nil
}

func (p stubPortal) ListKeys(_ context.Context, s *keyring.Session) ([]keyring.KeyRecord, error) {
	var out []keyring.KeyRecord
	for _, k := range p.keys[s.DeveloperID] {
		out = append(out, keyring.KeyRecord{ID: k, Key: k})
	}
	return out, nil
}

func (p stubPortal) CurrentIP(context.Context) (netip.Addr, error) {
	return netip.MustParseAddr("203.0.113.9"), nil
}

// upstream is a fake game API recording what the gateway forwarded.
type upstream struct {
	mu      sync.Mutex
	auth    []string
	paths   []string
	queries []string
	cookies []string
	reject  map[string]bool
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	u.mu.Lock()
	u.auth = append(u.auth, token)
	u.paths = append(u.paths, r.URL.EscapedPath())
	u.queries = append(u.queries, r.URL.RawQuery)
	u.cookies = append(u.cookies, r.Header.Get("Cookie"))
	rejected := u.reject[token]
	u.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if rejected {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"reason":"accessDenied.invalidIp"}`))
		return
	}
	_, _ = w.Write([]byte(`{"tag":"#2PP","name":"Reddit"}`))
}

func (u *upstream) seen() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.auth...)
}

func newTestManager(t *testing.T, keys ...string) *keyring.Manager {
	t.Helper()
	m, err := keyring.New(stubPortal{keys: map[string][]string{"dev@example.com": keys}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m.Register(keyring.Credential{Email: "dev@example.com", Password: "pw"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(keys) > 0 {
		if _, err := m.RefreshAll(context.Background()); err != nil {
			t.Fatalf("refresh: %v", err)
		}
	}
	return m
}

func newTestGateway(t *testing.T, m *keyring.Manager, up *upstream) http.Handler {
	t.Helper()
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL + "/v1")
	if err != nil {
		t.Fatalf("parse upstream: %v", err)
	}
	tokens := admin.NewTokenSet()
	tokens.Add("test", testAdminToken, admin.ScopeAdmin)
	return newRouter(routerDeps{
		keys:      m,
		accounts:  accountstore.NewMemoryStore(),
		tokens:    tokens,
		upstream:  target,
		transport: cocgw.NewTransport(m, srv.Client().Transport),
	})
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestGateway(t, newTestManager(t, "k1"), &upstream{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "OK" {
		t.Errorf("expected OK, got %s", w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestHealthEndpointWithoutKeys(t *testing.T) {
	r := newTestGateway(t, newTestManager(t), &upstream{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestProxyRotatesKeysAndStripsClientAuth(t *testing.T) {
	up := &upstream{}
	r := newTestGateway(t, newTestManager(t, "k1", "k2"), up)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/clans/%232PP?limit=5", nil)
		req.Header.Set("Authorization", "Bearer client-secret")
		req.Header.Set("Cookie", "session=abc")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}
		if w.Header().Get("X-Gateway") != "cocgw" {
			t.Errorf("expected X-Gateway header")
		}
	}

	want := []string{"Bearer k1", "Bearer k2", "Bearer k1"}
	got := up.seen()
	if len(got) != len(want) {
		t.Fatalf("expected %d upstream calls, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	if up.paths[0] != "/v1/clans/%232PP" {
		t.Errorf("expected encoded upstream path, got %s", up.paths[0])
	}
	if up.queries[0] != "limit=5" {
		t.Errorf("expected query to be forwarded, got %s", up.queries[0])
	}
	if up.cookies[0] != "" {
		t.Errorf("expected client cookie to be stripped, got %s", up.cookies[0])
	}
}

func TestProxyRetriesRejectedKey(t *testing.T) {
	up := &upstream{reject: map[string]bool{"Bearer bad": true}}
	r := newTestGateway(t, newTestManager(t, "bad", "good"), up)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/players/%23P", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after retry, got %d: %s", w.Code, w.Body.String())
	}
	got := up.seen()
	if len(got) != 2 || got[0] != "Bearer bad" || got[1] != "Bearer good" {
		t.Fatalf("expected bad then good key, got %v", got)
	}
}

func TestProxyEmptyPool(t *testing.T) {
	up := &upstream{}
	r := newTestGateway(t, newTestManager(t), up)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/goldpass/seasons/current", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var body map[string]string
	_ = json.NewDecoder(w.Body).Decode(&body)
	if body["reason"] != "noUsableKey" {
		t.Errorf("expected reason noUsableKey, got %v", body)
	}
	if n := len(up.seen()); n != 0 {
		t.Errorf("expected no upstream call, got %d", n)
	}
}

func TestAdminRequiresToken(t *testing.T) {
	r := newTestGateway(t, newTestManager(t, "k1"), &upstream{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/status", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/status", nil)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	up := &upstream{}
	r := newTestGateway(t, newTestManager(t, "k1"), up)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/clans/%232PP", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	for _, name := range []string{"cocgw_upstream_requests_total", "cocgw_token_acquisitions_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("expected %s in metrics output", name)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	r := newTestGateway(t, newTestManager(t, "k1"), &upstream{})

	req := httptest.NewRequest(http.MethodOptions, "/v1/clans/%232PP", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("expected wildcard origin, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSAllowList(t *testing.T) {
	h := corsMiddleware("https://a.example.com")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://a.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://a.example.com" {
		t.Errorf("expected echoed origin, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no origin header, got %q", got)
	}
}

func TestRefresherRecordsOutcome(t *testing.T) {
	store := accountstore.NewMemoryStore()
	if _, err := store.Create("dev@example.com", "pw"); err != nil {
		t.Fatalf("create: %v", err)
	}
	m := newTestManager(t)
	ref := &refresher{keys: m, accounts: store}

	report := ref.refreshOnce(context.Background())
	if report == nil {
		t.Fatal("expected a report")
	}
	a, ok := store.Get("dev@example.com")
	if !ok || a.RefreshCount != 1 {
		t.Fatalf("expected one recorded refresh, got %+v", a)
	}
}

func TestRefresherRunStopsOnCancel(t *testing.T) {
	ref := &refresher{keys: newTestManager(t), interval: 0}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		ref.run(ctx)
		close(done)
	}()
	<-done
}

func TestRegisterAccountsMergesConfigAndStore(t *testing.T) {
	m, err := keyring.New(stubPortal{})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	store := accountstore.NewMemoryStore()
	_, _ = store.Create("cfg@example.com", "other")
	_, _ = store.Create("stored@example.com", "pw")
	cfg := &cocgw.Config{Accounts: []cocgw.AccountConfig{{Email: "cfg@example.com", Password: "pw"}}}

	if n := registerAccounts(m, cfg, store); n != 2 {
		t.Fatalf("expected 2 registered accounts, got %d", n)
	}
	got := m.Accounts()
	if len(got) != 2 || got[0] != "cfg@example.com" || got[1] != "stored@example.com" {
		t.Fatalf("unexpected accounts %v", got)
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("expected defaults for empty path, got %v", err)
	}
	if len(cfg.Accounts) != 0 {
		t.Errorf("expected no accounts, got %d", len(cfg.Accounts))
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "cocgw.yaml")
	data := "accounts:\n  - email: dev@example.com\n    password: ${COCGW_TEST_PW}\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("COCGW_TEST_PW", "from-env")
	cfg, err = loadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Accounts[0].Password != "from-env" {
		t.Errorf("expected expanded password, got %q", cfg.Accounts[0].Password)
	}

	if _, err := loadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
