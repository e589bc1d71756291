package accountstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/clashkit/cocgw/keyring"
)

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestSQLiteStoreContract(t *testing.T) {
	runStoreContract(t, newSQLiteTestStore(t))
}

func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("COCGW_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("COCGW_TEST_POSTGRES_DSN not set")
	}
	store, err := NewPostgresStore(dsn)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.db.Exec(`DELETE FROM accounts`); err != nil {
		t.Fatalf("reset accounts: %v", err)
	}

	runStoreContract(t, store)
}

func TestPostgresStoreMissingDSN(t *testing.T) {
	if _, err := NewPostgresStore(""); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.db")

	first, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := first.Create("a@example.com", "pw"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := first.RecordRefresh("a@example.com", time.Now(), 4, nil); err != nil {
		t.Fatalf("RecordRefresh: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	a, ok := second.Get("a@example.com")
	if !ok {
		t.Fatal("expected account to survive reopen")
	}
	if a.Password != "pw" {
		t.Errorf("expected password pw, got %q", a.Password)
	}
	if a.LastKeys != 4 {
		t.Errorf("expected 4 last keys, got %d", a.LastKeys)
	}
	if a.RefreshCount != 1 {
		t.Errorf("expected refresh count 1, got %d", a.RefreshCount)
	}
}

func TestOpen(t *testing.T) {
	s, err := Open("", "")
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", s)
	}

	s, err = Open("sqlite", filepath.Join(t.TempDir(), "a.db"))
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if _, ok := s.(*SQLStore); !ok {
		t.Errorf("expected *SQLStore, got %T", s)
	}

	if _, err := Open("mysql", "x"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestBindPostgresPlaceholders(t *testing.T) {
	s := &SQLStore{dialect: dialectPostgres}
	want := "UPDATE t SET a = $1 WHERE b = $2"
	if got := s.bind("UPDATE t SET a = ? WHERE b = ?"); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	s = &SQLStore{dialect: dialectSQLite}
	if got := s.bind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("expected sqlite query unchanged, got %q", got)
	}
}

func runStoreContract(t *testing.T, store Store) {
	t.Helper()

	created, err := store.Create(" Alpha@Example.com ", "secret")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated ID")
	}
	if created.Email != "alpha@example.com" {
		t.Errorf("expected normalised email, got %q", created.Email)
	}
	if created.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	if _, err := store.Create("ALPHA@example.com", "other"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	if _, err := store.Create("not-an-email", "pw"); !errors.Is(err, keyring.ErrInvalidCredential) {
		t.Errorf("expected ErrInvalidCredential, got %v", err)
	}
	if _, err := store.Create("beta@example.com", ""); !errors.Is(err, keyring.ErrInvalidCredential) {
		t.Errorf("expected ErrInvalidCredential, got %v", err)
	}

	if _, err := store.Create("beta@example.com", "pw-b"); err != nil {
		t.Fatalf("Create beta: %v", err)
	}
	if _, err := store.Create("gamma@example.com", "pw-g"); err != nil {
		t.Fatalf("Create gamma: %v", err)
	}

	assertEmails(t, store.List(), "alpha@example.com", "beta@example.com", "gamma@example.com")

	got, ok := store.Get("alpha@EXAMPLE.com")
	if !ok {
		t.Fatal("expected case-insensitive Get to find alpha")
	}
	if got.ID != created.ID {
		t.Errorf("expected ID %q, got %q", created.ID, got.ID)
	}
	want := keyring.Credential{Email: "alpha@example.com", Password: "secret"}
	if got.Credential() != want {
		t.Errorf("expected credential %+v, got %+v", want, got.Credential())
	}
	if got.LastRefreshAt != nil {
		t.Errorf("expected no refresh yet, got %v", got.LastRefreshAt)
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.RecordRefresh("beta@example.com", at, 3, nil); err != nil {
		t.Fatalf("RecordRefresh: %v", err)
	}
	if err := store.RecordRefresh("beta@example.com", at.Add(time.Minute), 0, errors.New("portal down")); err != nil {
		t.Fatalf("RecordRefresh: %v", err)
	}
	beta, ok := store.Get("beta@example.com")
	if !ok {
		t.Fatal("expected beta")
	}
	if beta.LastRefreshAt == nil || !beta.LastRefreshAt.Equal(at.Add(time.Minute)) {
		t.Errorf("expected last refresh %v, got %v", at.Add(time.Minute), beta.LastRefreshAt)
	}
	if beta.LastKeys != 0 || beta.LastError != "portal down" || beta.RefreshCount != 2 {
		t.Errorf("expected 0 keys, error recorded, 2 refreshes; got %d, %q, %d", beta.LastKeys, beta.LastError, beta.RefreshCount)
	}

	if err := store.RecordRefresh("beta@example.com", at.Add(2*time.Minute), 2, nil); err != nil {
		t.Fatalf("RecordRefresh: %v", err)
	}
	beta, _ = store.Get("beta@example.com")
	if beta.LastError != "" {
		t.Errorf("expected error to be cleared, got %q", beta.LastError)
	}
	if err := store.RecordRefresh("nobody@example.com", at, 1, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := store.Delete("BETA@example.com"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := store.Get("beta@example.com"); ok {
		t.Error("expected beta to be deleted")
	}
	if err := store.Delete("beta@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	assertEmails(t, store.List(), "alpha@example.com", "gamma@example.com")
}

func assertEmails(t *testing.T, list []*Account, want ...string) {
	t.Helper()
	if len(list) != len(want) {
		t.Fatalf("expected %d accounts, got %d", len(want), len(list))
	}
	for i, a := range list {
		if a.Email != want[i] {
			t.Errorf("account %d: expected %q, got %q", i, want[i], a.Email)
		}
	}
}

func newSQLiteTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "accounts.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordReportSkipsUnknownAccounts(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Create("stored@example.com", "pw"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	report := &keyring.RefreshReport{Results: []keyring.AccountResult{
		{Email: "stored@example.com", Keys: 2},
		{Email: "from-config@example.com", Keys: 1},
	}}
	if err := RecordReport(store, report, time.Now()); err != nil {
		t.Fatalf("RecordReport: %v", err)
	}
	if err := RecordReport(nil, report, time.Now()); err != nil {
		t.Fatalf("RecordReport with nil store: %v", err)
	}

	a, ok := store.Get("stored@example.com")
	if !ok {
		t.Fatal("expected stored account")
	}
	if a.LastKeys != 2 || a.RefreshCount != 1 {
		t.Errorf("expected 2 keys and 1 refresh, got %d and %d", a.LastKeys, a.RefreshCount)
	}
}
