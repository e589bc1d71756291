package cocgw

import (
	"time"

	"github.com/clashkit/cocgw/keyring"
)

// Config holds the configuration for the key pool and the gateway.
type Config struct {
	// Accounts are the developer portal accounts whose keys are rotated.
	Accounts []AccountConfig `json:"accounts" yaml:"accounts"`
	// Portal overrides the developer portal endpoints (optional).
	Portal PortalConfig `json:"portal,omitempty" yaml:"portal,omitempty"`
	// API overrides the game API endpoint (optional).
	API APIConfig `json:"api,omitempty" yaml:"api,omitempty"`
	// Refresh controls background key refreshes (optional).
	Refresh RefreshConfig `json:"refresh,omitempty" yaml:"refresh,omitempty"`
}

// AccountConfig is one developer portal account. Password may reference an
// environment variable as ${NAME}; LoadConfig expands it.
type AccountConfig struct {
	Email    string `json:"email" yaml:"email"`
	Password string `json:"password" yaml:"password"`
}

// Credential converts the entry to a keyring credential.
func (a AccountConfig) Credential() keyring.Credential {
	return keyring.Credential{Email: a.Email, Password: a.Password}
}

// PortalConfig points the portal client at non-default endpoints.
type PortalConfig struct {
	BaseURL        string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	IPResolverURL  string `json:"ip_resolver_url,omitempty" yaml:"ip_resolver_url,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// APIConfig points the game API client at a non-default endpoint.
type APIConfig struct {
	BaseURL        string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// RefreshConfig controls how and when keys are reloaded from the portal.
type RefreshConfig struct {
	// IntervalSeconds between scheduled refreshes; 0 uses the default.
	IntervalSeconds int `json:"interval_seconds,omitempty" yaml:"interval_seconds,omitempty"`
	// CooldownSeconds between refreshes triggered by rejected keys.
	CooldownSeconds int `json:"cooldown_seconds,omitempty" yaml:"cooldown_seconds,omitempty"`
	// Concurrency bounds parallel account refreshes.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	// AutoCreateKey, when set, is the name of a key created for accounts left
	// without a key usable from the current IP.
	AutoCreateKey string `json:"auto_create_key,omitempty" yaml:"auto_create_key,omitempty"`
}

// Defaults applied when a duration field is zero.
const (
	DefaultRefreshInterval = 30 * time.Minute
	DefaultRefreshCooldown = time.Minute
	DefaultTimeout         = 30 * time.Second
)

// Interval returns the scheduled refresh interval.
func (r RefreshConfig) Interval() time.Duration {
	return secondsOr(r.IntervalSeconds, DefaultRefreshInterval)
}

// Cooldown returns the minimum spacing of on-demand refreshes.
func (r RefreshConfig) Cooldown() time.Duration {
	return secondsOr(r.CooldownSeconds, DefaultRefreshCooldown)
}

// Timeout returns the portal HTTP timeout.
func (p PortalConfig) Timeout() time.Duration {
	return secondsOr(p.TimeoutSeconds, DefaultTimeout)
}

// Timeout returns the game API HTTP timeout.
func (a APIConfig) Timeout() time.Duration {
	return secondsOr(a.TimeoutSeconds, DefaultTimeout)
}

func secondsOr(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

// ManagerOptions translates the refresh settings into keyring options.
func (c Config) ManagerOptions() []keyring.Option {
	opts := []keyring.Option{
		keyring.WithRefreshCooldown(c.Refresh.Cooldown(), c.Portal.Timeout()),
	}
	if c.Refresh.Concurrency > 0 {
		opts = append(opts, keyring.WithConcurrency(c.Refresh.Concurrency))
	}
	if c.Refresh.AutoCreateKey != "" {
		opts = append(opts, keyring.WithAutoCreate(c.Refresh.AutoCreateKey))
	}
	return opts
}
