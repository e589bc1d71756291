package keyring

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/clashkit/cocgw/internal/logging"
	"github.com/clashkit/cocgw/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// AccountResult is the outcome of refreshing one account.
type AccountResult struct {
	Email string
	// Keys is the number of usable keys held after the refresh.
	Keys int
	Err  error
}

// RefreshReport collects per-account outcomes of RefreshAll. One failing
// account never prevents the others from refreshing.
type RefreshReport struct {
	IP      netip.Addr
	Results []AccountResult
}

// Failed returns the results that carry an error.
func (r *RefreshReport) Failed() []AccountResult {
	var failed []AccountResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Usable returns the number of usable keys across all refreshed accounts.
func (r *RefreshReport) Usable() int {
	total := 0
	for _, res := range r.Results {
		total += res.Keys
	}
	return total
}

// Err joins the per-account errors, or returns nil when every account refreshed.
func (r *RefreshReport) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Email, res.Err))
		}
	}
	return errors.Join(errs...)
}

// RefreshAll resolves the public IP once and refreshes every registered
// account concurrently. The returned error is non-nil only when the refresh
// could not start; per-account failures are in the report.
func (m *Manager) RefreshAll(ctx context.Context) (*RefreshReport, error) {
	log := logging.FromContext(ctx)

	ip, err := m.portal.CurrentIP(ctx)
	if err != nil {
		metrics.Refreshes.WithLabelValues(outcome(err)).Inc()
		return nil, &RefreshError{Stage: "resolve ip", Err: err}
	}

	pools := m.snapshotPools()
	report := &RefreshReport{IP: ip, Results: make([]AccountResult, len(pools))}

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for i, p := range pools {
		g.Go(func() error {
			n, err := m.refreshShared(ctx, p, ip)
			report.Results[i] = AccountResult{Email: p.cred.Email, Keys: n, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	log.Info("key pool refreshed",
		"ip", ip.String(),
		"accounts", len(pools),
		"failed", len(report.Failed()),
		"usable_keys", report.Usable(),
	)
	return report, nil
}

// Refresh refreshes a single account.
func (m *Manager) Refresh(ctx context.Context, email string) (int, error) {
	m.mu.Lock()
	i := m.findLocked(email)
	var p *AccountPool
	if i >= 0 {
		p = m.pools[i]
	}
	m.mu.Unlock()
	if p == nil {
		return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, email)
	}

	ip, err := m.portal.CurrentIP(ctx)
	if err != nil {
		metrics.Refreshes.WithLabelValues(outcome(err)).Inc()
		return 0, &RefreshError{Stage: "resolve ip", Err: err}
	}
	return m.refreshShared(ctx, p, ip)
}

// RequestRefresh starts a background RefreshAll unless one was started within
// the configured cooldown. It reports whether a refresh was scheduled. The
// refresh outlives ctx's cancellation but keeps its values (trace ID).
func (m *Manager) RequestRefresh(ctx context.Context) bool {
	scheduled := false
	m.sometimes.Do(func() {
		scheduled = true
		bg := context.WithoutCancel(ctx)
		go func() {
			rctx, cancel := context.WithTimeout(bg, m.refreshTimeout)
			defer cancel()
			_, _, _ = m.flight.Do("*all*", func() (any, error) {
				return m.RefreshAll(rctx)
			})
		}()
	})
	return scheduled
}

// refreshShared coalesces concurrent refreshes of the same account. The
// shared work runs detached from any single caller, bounded by the refresh
// timeout; a caller whose ctx ends stops waiting without failing the others.
func (m *Manager) refreshShared(ctx context.Context, p *AccountPool, ip netip.Addr) (int, error) {
	if err := ctx.Err(); err != nil {
		metrics.Refreshes.WithLabelValues(outcome(err)).Inc()
		return 0, err
	}
	key := normalizeEmail(p.cred.Email) + "|" + ip.String()
	ch := m.flight.DoChan(key, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return m.refreshPool(rctx, p, ip)
	})
	select {
	case res := <-ch:
		n, _ := res.Val.(int)
		return n, res.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// refreshPool logs in if needed, lists the account's keys, keeps those usable
// from ip and swaps them into the pool. On any error the pool keeps its
// previous keys.
func (m *Manager) refreshPool(ctx context.Context, p *AccountPool, ip netip.Addr) (int, error) {
	log := logging.FromContext(ctx).With("account", p.cred.Email)

	n, err := m.loadKeys(ctx, p, ip)
	metrics.Refreshes.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		m.mu.Lock()
		p.lastErr = err
		m.mu.Unlock()
		log.Warn("account refresh failed", "error", err.Error())
		return 0, err
	}
	return n, nil
}

func (m *Manager) loadKeys(ctx context.Context, p *AccountPool, ip netip.Addr) (int, error) {
	log := logging.FromContext(ctx).With("account", p.cred.Email)

	session, err := m.ensureSession(ctx, p, false)
	if err != nil {
		return 0, err
	}

	keys, err := m.portal.ListKeys(ctx, session)
	if errors.Is(err, ErrSessionExpired) {
		log.Info("portal session expired, logging in again")
		session, err = m.ensureSession(ctx, p, true)
		if err != nil {
			return 0, err
		}
		keys, err = m.portal.ListKeys(ctx, session)
	}
	if err != nil {
		return 0, fmt.Errorf("list keys: %w", err)
	}

	usable := filterUsable(keys, ip, m.now())
	if len(usable) == 0 && m.autoCreate != "" {
		usable = m.provisionKey(ctx, session, ip, usable)
	}

	// A cancelled refresh must not publish anything.
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !m.swapKeys(p, usable) {
		return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, p.cred.Email)
	}

	log.Info("account refreshed", "listed", len(keys), "usable", len(usable))
	return len(usable), nil
}

func (m *Manager) provisionKey(ctx context.Context, session *Session, ip netip.Addr, usable []KeyRecord) []KeyRecord {
	creator, ok := m.portal.(KeyCreator)
	if !ok {
		return usable
	}
	log := logging.FromContext(ctx)
	created, err := creator.CreateKey(ctx, session, KeySpec{
		Name:        m.autoCreate,
		Description: "created for " + ip.String(),
		CIDRRanges:  []string{ip.String()},
		Scopes:      []string{"clash"},
	})
	if err != nil {
		log.Warn("key creation failed", "error", err.Error())
		return usable
	}
	if !created.UsableFrom(ip, m.now()) {
		log.Warn("created key is not usable from current ip", "key_id", created.ID)
		return usable
	}
	log.Info("key created", "key_id", created.ID, "ip", ip.String())
	return append(usable, created)
}

// ensureSession returns the pool's live session, logging in when there is
// none or when force is set. The manager lock is not held during Login.
func (m *Manager) ensureSession(ctx context.Context, p *AccountPool, force bool) (*Session, error) {
	m.mu.Lock()
	session := p.session
	cred := p.cred
	m.mu.Unlock()

	if !force && session.Live(m.now()) {
		return session, nil
	}

	session, err := m.portal.Login(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if session == nil {
		return nil, &DeserializationError{Op: "login", Err: errors.New("portal returned no session")}
	}

	m.mu.Lock()
	p.session = session
	m.mu.Unlock()
	return session, nil
}

// swapKeys publishes a new key list for p. It returns false when p was
// deregistered while the refresh was in flight.
func (m *Manager) swapKeys(p *AccountPool, keys []KeyRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.registeredLocked(p) {
		return false
	}
	p.keys = keys
	p.generation++
	p.lastRefresh = m.now()
	p.lastErr = nil
	m.index.normalize(m.pools)
	metrics.UsableKeys.WithLabelValues(p.cred.Email).Set(float64(len(keys)))
	return true
}

// outcome classifies a refresh error into a metrics label.
func outcome(err error) string {
	var (
		transportErr *TransportError
		decodeErr    *DeserializationError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAuth):
		return "auth_error"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.As(err, &transportErr):
		return "transport_error"
	case errors.As(err, &decodeErr):
		return "decode_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
