package keyring

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"sync"
)

// fakePortal is an in-memory Portal. Keys, login failures and queued
// list-keys failures are configured per email.
type fakePortal struct {
	mu       sync.Mutex
	ip       netip.Addr
	ipErr    error
	keys     map[string][]KeyRecord
	loginErr map[string]error
	listErrs map[string][]error
	logins   map[string]int
	lists    map[string]int
	created  []KeySpec
}

func newFakePortal(ip string) *fakePortal {
	return &fakePortal{
		ip:       netip.MustParseAddr(ip),
		keys:     make(map[string][]KeyRecord),
		loginErr: make(map[string]error),
		listErrs: make(map[string][]error),
		logins:   make(map[string]int),
		lists:    make(map[string]int),
	}
}

func (f *fakePortal) setKeys(email string, keys ...KeyRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[email] = keys
}

func (f *fakePortal) queueListErr(email string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErrs[email] = append(f.listErrs[email], errs...)
}

func (f *fakePortal) loginCount(email string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins[email]
}

func (f *fakePortal) Login(_ context.Context, cred Credential) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins[cred.Email]++
	if err := f.loginErr[cred.Email]; err != nil {
		return nil, err
	}
	return &Session{
		Cookies:     []*http.Cookie{{Name: "session", Value: "s-" + cred.Email}},
		DeveloperID: "dev-" + cred.Email,
	}, nil
}

func (f *fakePortal) ListKeys(_ context.Context, session *Session) ([]KeyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email := session.DeveloperID[len("dev-"):]
	f.lists[email]++
	if queued := f.listErrs[email]; len(queued) > 0 {
		f.listErrs[email] = queued[1:]
		if queued[0] != nil {
			return nil, queued[0]
		}
	}
	return append([]KeyRecord(nil), f.keys[email]...), nil
}

func (f *fakePortal) CurrentIP(_ context.Context) (netip.Addr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ipErr != nil {
		return netip.Addr{}, f.ipErr
	}
	return f.ip, nil
}

// creatingPortal also implements KeyCreator.
type creatingPortal struct {
	*fakePortal
}

func (c creatingPortal) CreateKey(_ context.Context, session *Session, spec KeySpec) (KeyRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = append(c.created, spec)
	email := session.DeveloperID[len("dev-"):]
	k := KeyRecord{
		ID:         fmt.Sprintf("created-%d", len(c.created)),
		Name:       spec.Name,
		CIDRRanges: spec.CIDRRanges,
		Scopes:     spec.Scopes,
		Key:        fmt.Sprintf("secret-created-%d", len(c.created)),
	}
	c.keys[email] = append(c.keys[email], k)
	return k, nil
}

// key builds a usable-from-anywhere key whose secret is "secret-<id>".
func key(id string) KeyRecord {
	return KeyRecord{ID: id, Name: id, Key: "secret-" + id}
}
