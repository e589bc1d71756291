package keyring

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors that can be checked with errors.Is.
var (
	// ErrAuth indicates the portal rejected an account's credentials.
	ErrAuth = errors.New("portal rejected credentials")
	// ErrSessionExpired indicates the portal no longer accepts a session.
	ErrSessionExpired = errors.New("portal session expired")
	// ErrEmptyPool indicates no usable API key is available in any account.
	// Callers should run RefreshAll and try again.
	ErrEmptyPool = errors.New("no usable API keys in pool")
	// ErrDuplicateAccount indicates an account with the same email is already registered.
	ErrDuplicateAccount = errors.New("account already registered")
	// ErrAccountNotFound indicates no account with the given email is registered.
	ErrAccountNotFound = errors.New("account not registered")
	// ErrInvalidCredential indicates a credential failed validation before any network call.
	ErrInvalidCredential = errors.New("invalid credential")
)

// PortalError is a non-2xx answer from the developer portal.
type PortalError struct {
	Op         string
	StatusCode int
	Reason     string
	Message    string
}

func (e *PortalError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Reason
	}
	if msg != "" {
		return fmt.Sprintf("portal %s: status %d: %s", e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("portal %s: status %d", e.Op, e.StatusCode)
}

// Is maps portal status codes onto the package sentinels. A 401/403 on login
// is a rejected credential; on any other operation it means the session died.
func (e *PortalError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		if e.Op == "login" {
			return target == ErrAuth
		}
		return target == ErrSessionExpired
	}
	return false
}

// TransportError is a network-level failure reaching the portal or the IP
// resolver. It never leaves pool state modified.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DeserializationError is a payload that did not have the expected shape.
type DeserializationError struct {
	Op  string
	Err error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.Op, e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// RefreshError is returned by RefreshAll when the refresh could not start at
// all, e.g. because the public IP could not be resolved. Per-account failures
// are reported in RefreshReport instead.
type RefreshError struct {
	Stage string
	Err   error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh %s: %v", e.Stage, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}
