package keyring

import (
	"fmt"
	"strings"
)

// Credential identifies one developer portal account.
type Credential struct {
	Email    string `json:"email" yaml:"email"`
	Password string `json:"password" yaml:"password"`
}

// Validate reports whether the credential can be registered.
func (c Credential) Validate() error {
	if strings.TrimSpace(c.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidCredential)
	}
	return nil
}

// String masks the password so credentials are safe to log.
func (c Credential) String() string {
	return c.Email + ":***"
}

// normalizeEmail is the form used to compare accounts for uniqueness.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
