// Package accountstore persists the developer portal accounts registered at
// runtime through the admin API, so they survive a gateway restart. Accounts
// listed in the config file are not stored here.
package accountstore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clashkit/cocgw/keyring"
)

// Errors returned by every Store implementation.
var (
	ErrNotFound  = errors.New("account not found")
	ErrDuplicate = errors.New("account already stored")
)

// Account is a stored developer portal account with its refresh history.
type Account struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Password      string     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	LastRefreshAt *time.Time `json:"last_refresh_at,omitempty"`
	LastKeys      int        `json:"last_keys"`
	LastError     string     `json:"last_error,omitempty"`
	RefreshCount  int64      `json:"refresh_count"`
}

// Credential returns the account as a keyring credential.
func (a Account) Credential() keyring.Credential {
	return keyring.Credential{Email: a.Email, Password: a.Password}
}

// Store defines the interface for account storage.
// MemoryStore and SQLStore (SQLite, Postgres) implement it.
type Store interface {
	Create(email, password string) (*Account, error)
	Get(email string) (*Account, bool)
	// List returns accounts in creation order.
	List() []*Account
	RecordRefresh(email string, at time.Time, keys int, refreshErr error) error
	Delete(email string) error
	Close() error
}

// Open returns the store for driver: "memory" (or empty), "sqlite" or
// "postgres".
func Open(driver, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite", "sqlite3":
		return NewSQLiteStore(dsn)
	case "postgres", "postgresql":
		return NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("unsupported account store driver %q: use memory, sqlite or postgres", driver)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validate(email, password string) error {
	if err := (keyring.Credential{Email: email, Password: password}).Validate(); err != nil {
		return err
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("%w: %q is not an email address", keyring.ErrInvalidCredential, email)
	}
	if password == "" {
		return fmt.Errorf("%w: password is required", keyring.ErrInvalidCredential)
	}
	return nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// RecordReport stores every per-account outcome of a refresh. Accounts that
// are not in the store, such as those listed in the config file, are skipped.
func RecordReport(s Store, report *keyring.RefreshReport, at time.Time) error {
	if s == nil || report == nil {
		return nil
	}
	var errs []error
	for _, res := range report.Results {
		if err := s.RecordRefresh(res.Email, at, res.Keys, res.Err); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
