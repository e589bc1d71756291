// Package keyring keeps a pool of developer accounts, refreshes the API keys
// each account owns through the developer portal, and hands those keys out
// round-robin to the HTTP layer.
//
// A Manager is created once with New, accounts are added with Register, keys
// are loaded with RefreshAll, and AcquireToken is called before every
// outbound request:
//
//	m, _ := keyring.New(portal.New())
//	_ = m.Register(keyring.Credential{Email: "dev@example.com", Password: "..."})
//	if _, err := m.RefreshAll(ctx); err != nil { ... }
//	token, err := m.AcquireToken()
//
// AcquireToken never performs I/O. Network calls made by the refresh flow
// happen outside the manager lock; their results are merged back in a short
// critical section, so concurrent callers see either the old or the new key
// list of an account, never a mix.
package keyring

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/clashkit/cocgw/internal/metrics"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Portal is the developer portal collaborator used by the refresh flow.
type Portal interface {
	// Login exchanges a credential for a session.
	Login(ctx context.Context, cred Credential) (*Session, error)
	// ListKeys returns every key the session's account currently owns.
	ListKeys(ctx context.Context, session *Session) ([]KeyRecord, error)
	// CurrentIP resolves the caller's public address.
	CurrentIP(ctx context.Context) (netip.Addr, error)
}

// KeyCreator is implemented by portals that can issue new keys.
type KeyCreator interface {
	CreateKey(ctx context.Context, session *Session, spec KeySpec) (KeyRecord, error)
}

// KeySpec describes a key to create.
type KeySpec struct {
	Name        string
	Description string
	CIDRRanges  []string
	Scopes      []string
}

const (
	defaultConcurrency     = 4
	defaultRefreshCooldown = time.Minute
	defaultRefreshTimeout  = 30 * time.Second
)

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithConcurrency bounds the number of accounts refreshed in parallel.
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithAutoCreate makes the refresh flow create a key named name, restricted
// to the current IP, for any account left without a usable key. It only has
// an effect when the portal implements KeyCreator.
func WithAutoCreate(name string) Option {
	return func(m *Manager) {
		m.autoCreate = name
	}
}

// WithRefreshCooldown sets the minimum spacing between refreshes started by
// RequestRefresh, and the timeout applied to each of them.
func WithRefreshCooldown(cooldown, timeout time.Duration) Option {
	return func(m *Manager) {
		if cooldown > 0 {
			m.sometimes = rate.Sometimes{Interval: cooldown}
		}
		if timeout > 0 {
			m.refreshTimeout = timeout
		}
	}
}

// Manager owns the account pools and the rotation index.
type Manager struct {
	portal         Portal
	now            func() time.Time
	concurrency    int
	autoCreate     string
	refreshTimeout time.Duration

	mu    sync.Mutex
	pools []*AccountPool
	index RotationIndex

	flight    singleflight.Group
	sometimes rate.Sometimes
}

// New creates a Manager backed by portal.
func New(portal Portal, opts ...Option) (*Manager, error) {
	if portal == nil {
		return nil, fmt.Errorf("portal is required")
	}
	m := &Manager{
		portal:         portal,
		now:            time.Now,
		concurrency:    defaultConcurrency,
		refreshTimeout: defaultRefreshTimeout,
		sometimes:      rate.Sometimes{Interval: defaultRefreshCooldown},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Register adds an account with an empty key list. It performs no network
// call; keys are loaded by the next RefreshAll.
func (m *Manager) Register(cred Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findLocked(cred.Email) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateAccount, cred.Email)
	}
	m.pools = append(m.pools, newAccountPool(cred))
	m.index.normalize(m.pools)
	metrics.UsableKeys.WithLabelValues(cred.Email).Set(0)
	return nil
}

// Deregister removes the account and clamps the rotation index.
func (m *Manager) Deregister(email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.findLocked(email)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, email)
	}
	removed := m.pools[i]
	m.pools = append(m.pools[:i:i], m.pools[i+1:]...)
	m.index.removed(i, m.pools)
	metrics.UsableKeys.DeleteLabelValues(removed.cred.Email)
	return nil
}

// AcquireToken returns the next key in round-robin order across all
// accounts. It is safe for concurrent use and never blocks on I/O.
// ErrEmptyPool means no account holds a usable key; callers should run
// RefreshAll and retry.
func (m *Manager) AcquireToken() (string, error) {
	m.mu.Lock()
	a, k, ok := m.index.advance(m.pools)
	var token string
	if ok {
		token = m.pools[a].keys[k].Key
	}
	m.mu.Unlock()

	if !ok {
		metrics.TokenAcquisitions.WithLabelValues("empty").Inc()
		return "", ErrEmptyPool
	}
	metrics.TokenAcquisitions.WithLabelValues("ok").Inc()
	return token, nil
}

// Reset moves the rotation back to the first key of the first account.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index.Reset()
	m.index.normalize(m.pools)
}

// Index returns a copy of the rotation cursor.
func (m *Manager) Index() RotationIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// Accounts returns the registered emails in registration order.
func (m *Manager) Accounts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	emails := make([]string, len(m.pools))
	for i, p := range m.pools {
		emails[i] = p.cred.Email
	}
	return emails
}

// Keys returns a copy of the usable keys currently held for email.
func (m *Manager) Keys(email string) ([]KeyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.findLocked(email)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, email)
	}
	return append([]KeyRecord(nil), m.pools[i].keys...), nil
}

// Usable returns the total number of keys available for rotation.
func (m *Manager) Usable() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, p := range m.pools {
		total += len(p.keys)
	}
	return total
}

// Status returns a masked snapshot of every pool.
func (m *Manager) Status() []AccountStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := make([]AccountStatus, len(m.pools))
	for i, p := range m.pools {
		out[i] = p.status(now)
	}
	return out
}

// findLocked must be called with m.mu held.
func (m *Manager) findLocked(email string) int {
	key := normalizeEmail(email)
	for i, p := range m.pools {
		if normalizeEmail(p.cred.Email) == key {
			return i
		}
	}
	return -1
}

// registeredLocked must be called with m.mu held.
func (m *Manager) registeredLocked(p *AccountPool) bool {
	for _, q := range m.pools {
		if q == p {
			return true
		}
	}
	return false
}

func (m *Manager) snapshotPools() []*AccountPool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*AccountPool(nil), m.pools...)
}
