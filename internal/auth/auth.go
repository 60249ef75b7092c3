// Package auth resolves API keys into principals with a role, a rate limit,
// and an optional expiry. The key map comes from environment configuration:
// either a single admin key or a JSON map of keys to their grants.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Roles in ascending privilege.
const (
	RoleViewer  = "viewer"
	RoleAnalyst = "analyst"
	RoleAdmin   = "admin"
)

// Authentication failures, mapped to 401/403 at the transport layer.
var (
	ErrMissingKey = errors.New("missing API key")
	ErrInvalidKey = errors.New("invalid API key")
	ErrExpiredKey = errors.New("API key expired")
)

// Principal is an authenticated caller.
type Principal struct {
	APIKey    string
	Role      string
	RPM       int
	ReadOnly  bool
	ExpiresAt *time.Time
}

// Suffix returns the key's last four characters for logging; the full key
// never appears in logs.
func (p Principal) Suffix() string {
	if len(p.APIKey) <= 4 {
		return p.APIKey
	}
	return p.APIKey[len(p.APIKey)-4:]
}

// IsAdmin reports whether the principal carries the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Keyring holds the immutable key map loaded at startup.
type Keyring struct {
	keys map[string]Principal
}

type keyGrant struct {
	RPM       int    `json:"rpm"`
	Role      string `json:"role"`
	ReadOnly  bool   `json:"read_only"`
	ExpiresAt string `json:"expires_at"`
}

// NewKeyring builds the key map. singleKey (if set) becomes an admin key
// with the default rpm and no expiry; keysJSON adds or overrides entries.
// An empty keyring is a configuration error: the service would reject every
// request.
func NewKeyring(singleKey, keysJSON string, defaultRPM int) (*Keyring, error) {
	keys := make(map[string]Principal)

	if singleKey != "" {
		keys[singleKey] = Principal{APIKey: singleKey, Role: RoleAdmin, RPM: defaultRPM}
	}

	if keysJSON != "" {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal([]byte(keysJSON), &raw); err != nil {
			return nil, fmt.Errorf("parsing API_KEYS_JSON: %w", err)
		}
		for key, entry := range raw {
			p := Principal{APIKey: key, Role: RoleAnalyst, RPM: defaultRPM}

			// Backwards compatible: {"key": 60} means an analyst with that rpm.
			var rpm int
			if err := json.Unmarshal(entry, &rpm); err == nil {
				p.RPM = rpm
				keys[key] = p
				continue
			}

			var grant keyGrant
			if err := json.Unmarshal(entry, &grant); err != nil {
				return nil, fmt.Errorf("parsing API_KEYS_JSON entry for key ending %q: %w", tail(key), err)
			}
			if grant.RPM > 0 {
				p.RPM = grant.RPM
			}
			if role := strings.ToLower(grant.Role); role == RoleAdmin || role == RoleAnalyst || role == RoleViewer {
				p.Role = role
			}
			p.ReadOnly = grant.ReadOnly
			if grant.ExpiresAt != "" {
				ts, err := time.Parse(time.RFC3339, grant.ExpiresAt)
				if err != nil {
					return nil, fmt.Errorf("parsing expires_at for key ending %q: %w", tail(key), err)
				}
				p.ExpiresAt = &ts
			}
			keys[key] = p
		}
	}

	if len(keys) == 0 {
		return nil, errors.New("no API keys configured: set API_KEY or API_KEYS_JSON")
	}

	slog.Info("API keyring loaded", "keys", len(keys))
	return &Keyring{keys: keys}, nil
}

// Resolve authenticates an API key against the keyring.
func (k *Keyring) Resolve(apiKey string) (Principal, error) {
	if apiKey == "" {
		return Principal{}, ErrMissingKey
	}
	p, ok := k.keys[apiKey]
	if !ok {
		return Principal{}, ErrInvalidKey
	}
	if p.ExpiresAt != nil && !time.Now().Before(*p.ExpiresAt) {
		return Principal{}, ErrExpiredKey
	}
	return p, nil
}

func tail(key string) string {
	if len(key) <= 4 {
		return key
	}
	return key[len(key)-4:]
}
