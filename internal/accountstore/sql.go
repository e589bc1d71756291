package accountstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	// Register Postgres SQL driver.
	_ "github.com/lib/pq"
	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"
)

type sqlDialect string

const (
	dialectSQLite   sqlDialect = "sqlite"
	dialectPostgres sqlDialect = "postgres"
)

const accountColumns = `id, email, password, created_at, last_refresh_at, last_keys, last_error, refresh_count`

// SQLStore persists accounts in SQL backends (SQLite or Postgres).
type SQLStore struct {
	db      *sql.DB
	dialect sqlDialect
}

// NewSQLiteStore creates a SQLite-backed account store.
// dsn can be a file path (e.g. /var/lib/cocgw/accounts.db) or SQLite DSN.
func NewSQLiteStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "cocgw-accounts.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	store := &SQLStore{db: db, dialect: dialectSQLite}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore creates a Postgres-backed account store.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	store := &SQLStore{db: db, dialect: dialectPostgres}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s store: %w", s.dialect, err)
	}

	var ddl string
	switch s.dialect {
	case dialectPostgres:
		ddl = `
CREATE TABLE IF NOT EXISTS accounts (
	seq BIGSERIAL,
	id TEXT PRIMARY KEY,
	email TEXT UNIQUE NOT NULL,
	password TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`
	default:
		ddl = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	email TEXT UNIQUE NOT NULL,
	password TEXT NOT NULL,
	created_at DATETIME NOT NULL
);`
	}

	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize %s store schema: %w", s.dialect, err)
	}
	return s.ensureRefreshColumns()
}

// ensureRefreshColumns adds the refresh bookkeeping columns to tables created
// before they existed.
func (s *SQLStore) ensureRefreshColumns() error {
	alterStatements := []string{
		"ALTER TABLE accounts ADD COLUMN last_keys INTEGER NOT NULL DEFAULT 0",
		"ALTER TABLE accounts ADD COLUMN last_error TEXT NOT NULL DEFAULT ''",
		"ALTER TABLE accounts ADD COLUMN refresh_count INTEGER NOT NULL DEFAULT 0",
	}
	if s.dialect == dialectPostgres {
		alterStatements = append(alterStatements,
			"ALTER TABLE accounts ADD COLUMN last_refresh_at TIMESTAMPTZ NULL",
		)
	} else {
		alterStatements = append(alterStatements,
			"ALTER TABLE accounts ADD COLUMN last_refresh_at DATETIME NULL",
		)
	}

	for _, stmt := range alterStatements {
		if _, err := s.db.Exec(stmt); err != nil && !isDuplicateColumnError(err) {
			return fmt.Errorf("ensure accounts refresh columns: %w", err)
		}
	}
	return nil
}

// Create inserts a new account.
func (s *SQLStore) Create(email, password string) (*Account, error) {
	if err := validate(email, password); err != nil {
		return nil, err
	}
	a := &Account{
		ID:        uuid.NewString(),
		Email:     normalizeEmail(email),
		Password:  password,
		CreatedAt: time.Now().UTC(),
	}

	q := s.bind(`
INSERT INTO accounts(id, email, password, created_at, last_refresh_at, last_keys, last_error, refresh_count)
VALUES(?, ?, ?, ?, NULL, 0, '', 0)`)
	if _, err := s.db.Exec(q, a.ID, a.Email, a.Password, a.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, a.Email)
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

// Get retrieves an account by email.
func (s *SQLStore) Get(email string) (*Account, bool) {
	q := s.bind(`SELECT ` + accountColumns + ` FROM accounts WHERE email = ?`)
	a, err := scanAccount(s.db.QueryRow(q, normalizeEmail(email)))
	if err != nil {
		return nil, false
	}
	return a, true
}

// List returns all accounts in creation order. Rows that fail to scan are
// skipped.
func (s *SQLStore) List() []*Account {
	order := "created_at, rowid"
	if s.dialect == dialectPostgres {
		order = "seq"
	}
	rows, err := s.db.Query(`SELECT ` + accountColumns + ` FROM accounts ORDER BY ` + order)
	if err != nil {
		return []*Account{}
	}
	defer func() {
		_ = rows.Close()
	}()

	accounts := make([]*Account, 0)
	for rows.Next() {
		a, scanErr := scanAccount(rows)
		if scanErr != nil {
			continue
		}
		accounts = append(accounts, a)
	}
	return accounts
}

// RecordRefresh stores the outcome of a refresh.
func (s *SQLStore) RecordRefresh(email string, at time.Time, keys int, refreshErr error) error {
	q := s.bind(`
UPDATE accounts
SET last_refresh_at = ?, last_keys = ?, last_error = ?, refresh_count = refresh_count + 1
WHERE email = ?`)
	return s.execOne("record refresh", email, q, at.UTC(), keys, errorText(refreshErr), normalizeEmail(email))
}

// Delete removes an account.
func (s *SQLStore) Delete(email string) error {
	q := s.bind(`DELETE FROM accounts WHERE email = ?`)
	return s.execOne("delete account", email, q, normalizeEmail(email))
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) execOne(op, email, q string, args ...any) error {
	res, err := s.db.Exec(q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, email)
	}
	return nil
}

func scanAccount(scanner interface {
	Scan(dest ...any) error
}) (*Account, error) {
	var (
		a           Account
		lastRefresh sql.NullTime
	)
	err := scanner.Scan(
		&a.ID,
		&a.Email,
		&a.Password,
		&a.CreatedAt,
		&lastRefresh,
		&a.LastKeys,
		&a.LastError,
		&a.RefreshCount,
	)
	if err != nil {
		return nil, err
	}
	if lastRefresh.Valid {
		t := lastRefresh.Time.UTC()
		a.LastRefreshAt = &t
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") ||
		strings.Contains(msg, "already exists")
}

func isUniqueViolation(err error) bool {
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}

func (s *SQLStore) bind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var (
		b      strings.Builder
		argNum = 1
	)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			fmt.Fprintf(&b, "$%d", argNum)
			argNum++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
