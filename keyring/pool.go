package keyring

import "time"

// AccountPool holds one account's credential, its current portal session and
// the keys that survived the last refresh. All fields are guarded by the
// owning Manager's mutex; the key slice is never mutated in place, only
// replaced, so a copy taken under the lock stays consistent.
type AccountPool struct {
	cred        Credential
	session     *Session
	keys        []KeyRecord
	generation  uint64
	lastRefresh time.Time
	lastErr     error
}

func newAccountPool(cred Credential) *AccountPool {
	return &AccountPool{cred: cred}
}

// Credential returns the account credential.
func (p *AccountPool) Credential() Credential {
	return p.cred
}

// AccountStatus is a read-only snapshot of one pool, safe to serialise.
type AccountStatus struct {
	Email       string     `json:"email"`
	Keys        int        `json:"keys"`
	KeyIDs      []string   `json:"key_ids"`
	MaskedKeys  []string   `json:"masked_keys"`
	Generation  uint64     `json:"generation"`
	SessionLive bool       `json:"session_live"`
	LastRefresh *time.Time `json:"last_refresh,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// status must be called with the manager lock held.
func (p *AccountPool) status(now time.Time) AccountStatus {
	st := AccountStatus{
		Email:       p.cred.Email,
		Keys:        len(p.keys),
		KeyIDs:      make([]string, 0, len(p.keys)),
		MaskedKeys:  make([]string, 0, len(p.keys)),
		Generation:  p.generation,
		SessionLive: p.session.Live(now),
	}
	for _, k := range p.keys {
		st.KeyIDs = append(st.KeyIDs, k.ID)
		st.MaskedKeys = append(st.MaskedKeys, k.Masked())
	}
	if !p.lastRefresh.IsZero() {
		t := p.lastRefresh
		st.LastRefresh = &t
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	return st
}
