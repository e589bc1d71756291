package portal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/clashkit/cocgw/keyring"
)

// status is the envelope every portal response carries.
type status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

type credentialRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginAuth struct {
	UID   string `json:"uid"`
	Token string `json:"token"`
	UA    string `json:"ua"`
	IP    string `json:"ip"`
}

type loginDeveloper struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Game        string `json:"game"`
	Email       string `json:"email"`
	Tier        string `json:"tier"`
	PrevLoginIP string `json:"prevLoginIp"`
}

type loginResponse struct {
	Status                  status         `json:"status"`
	SessionExpiresInSeconds int            `json:"sessionExpiresInSeconds"`
	Auth                    loginAuth      `json:"auth"`
	Developer               loginDeveloper `json:"developer"`
	TemporaryAPIToken       string         `json:"temporaryAPIToken"`
	SwaggerURL              string         `json:"swaggerUrl"`
}

type keyJSON struct {
	ID          string      `json:"id"`
	DeveloperID string      `json:"developerId"`
	Tier        string      `json:"tier"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Origins     flexStrings `json:"origins"`
	Scopes      flexStrings `json:"scopes"`
	CIDRRanges  flexStrings `json:"cidrRanges"`
	ValidUntil  flexTime    `json:"validUntil"`
	Key         string      `json:"key"`
}

func (k keyJSON) record() keyring.KeyRecord {
	return keyring.KeyRecord{
		ID:          k.ID,
		DeveloperID: k.DeveloperID,
		Tier:        k.Tier,
		Name:        k.Name,
		Description: k.Description,
		Origins:     []string(k.Origins),
		Scopes:      []string(k.Scopes),
		CIDRRanges:  []string(k.CIDRRanges),
		ValidUntil:  k.ValidUntil.t,
		Key:         k.Key,
	}
}

type keysResponse struct {
	Status                  status    `json:"status"`
	SessionExpiresInSeconds int       `json:"sessionExpiresInSeconds"`
	Keys                    []keyJSON `json:"keys"`
}

type createKeyRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	CIDRRanges  []string `json:"cidrRanges"`
	Scopes      []string `json:"scopes,omitempty"`
}

type keyResponse struct {
	Status                  status  `json:"status"`
	SessionExpiresInSeconds int     `json:"sessionExpiresInSeconds"`
	Key                     keyJSON `json:"key"`
}

type revokeKeyRequest struct {
	ID string `json:"id"`
}

// flexStrings accepts null, a single string or an array of strings.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = nil
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = nil
		} else {
			*f = flexStrings{s}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*f = list
	return nil
}

// flexTime accepts null, an empty string, an RFC 3339 timestamp or epoch
// milliseconds.
type flexTime struct {
	t *time.Time
}

func (f *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		f.t = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			f.t = nil
			return nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("validUntil: %w", err)
		}
		f.t = &t
		return nil
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("validUntil: %w", err)
	}
	t := time.UnixMilli(ms).UTC()
	f.t = &t
	return nil
}
