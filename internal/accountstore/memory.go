package accountstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store. It is the default when no database is
// configured; accounts added at runtime are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	order   []string
	byEmail map[string]*Account
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byEmail: make(map[string]*Account)}
}

// Create stores a new account.
func (s *MemoryStore) Create(email, password string) (*Account, error) {
	if err := validate(email, password); err != nil {
		return nil, err
	}
	email = normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, email)
	}
	a := &Account{
		ID:        uuid.NewString(),
		Email:     email,
		Password:  password,
		CreatedAt: time.Now().UTC(),
	}
	s.byEmail[email] = a
	s.order = append(s.order, email)
	cp := *a
	return &cp, nil
}

// Get retrieves an account by email.
func (s *MemoryStore) Get(email string) (*Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

// List returns copies of all accounts in creation order.
func (s *MemoryStore) List() []*Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Account, 0, len(s.order))
	for _, email := range s.order {
		cp := *s.byEmail[email]
		out = append(out, &cp)
	}
	return out
}

// RecordRefresh stores the outcome of a refresh.
func (s *MemoryStore) RecordRefresh(email string, at time.Time, keys int, refreshErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, email)
	}
	t := at.UTC()
	a.LastRefreshAt = &t
	a.LastKeys = keys
	a.LastError = errorText(refreshErr)
	a.RefreshCount++
	return nil
}

// Delete removes an account.
func (s *MemoryStore) Delete(email string) error {
	email = normalizeEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, email)
	}
	delete(s.byEmail, email)
	for i, e := range s.order {
		if e == email {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
