package keyring

import (
	"net/netip"
	"strings"
	"time"
)

// KeyRecord is one API key issued by the developer portal. Records are
// created by a refresh and replaced wholesale by the next one.
type KeyRecord struct {
	ID          string     `json:"id"`
	DeveloperID string     `json:"developer_id"`
	Tier        string     `json:"tier"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Origins     []string   `json:"origins,omitempty"`
	Scopes      []string   `json:"scopes,omitempty"`
	CIDRRanges  []string   `json:"cidr_ranges,omitempty"`
	ValidUntil  *time.Time `json:"valid_until,omitempty"`
	Key         string     `json:"key"`
}

// Unrestricted reports whether the key carries no origin or CIDR restriction.
func (k KeyRecord) Unrestricted() bool {
	return len(k.CIDRRanges) == 0 && len(k.Origins) == 0
}

// Expired reports whether the validity window has closed at now.
// A key without ValidUntil never expires.
func (k KeyRecord) Expired(now time.Time) bool {
	return k.ValidUntil != nil && !k.ValidUntil.After(now)
}

// AllowsIP reports whether ip is inside one of the key's CIDR ranges or
// origins. Bare addresses are treated as single-host prefixes; entries that
// parse as neither are ignored.
func (k KeyRecord) AllowsIP(ip netip.Addr) bool {
	if k.Unrestricted() {
		return true
	}
	if !ip.IsValid() {
		return false
	}
	ip = ip.Unmap()
	for _, list := range [][]string{k.CIDRRanges, k.Origins} {
		for _, entry := range list {
			if prefixContains(entry, ip) {
				return true
			}
		}
	}
	return false
}

// UsableFrom reports whether the key may be handed out to a caller whose
// public address is ip.
func (k KeyRecord) UsableFrom(ip netip.Addr, now time.Time) bool {
	return k.Key != "" && !k.Expired(now) && k.AllowsIP(ip)
}

// Masked returns the first eight characters of the secret followed by "...".
func (k KeyRecord) Masked() string {
	return MaskSecret(k.Key)
}

// MaskSecret hides all but a short prefix of a secret.
func MaskSecret(secret string) string {
	if len(secret) > 8 {
		return secret[:8] + "..."
	}
	return "..."
}

func prefixContains(entry string, ip netip.Addr) bool {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return false
	}
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return false
		}
		return prefix.Masked().Contains(ip)
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return false
	}
	return addr.Unmap() == ip
}

// filterUsable returns the keys usable from ip at now, preserving order.
func filterUsable(keys []KeyRecord, ip netip.Addr, now time.Time) []KeyRecord {
	usable := make([]KeyRecord, 0, len(keys))
	for _, k := range keys {
		if k.UsableFrom(ip, now) {
			usable = append(usable, k)
		}
	}
	return usable
}
