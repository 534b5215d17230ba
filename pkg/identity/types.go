package identity

import (
	"time"
)

// User is a local account. Users arrive either through the admin API or
// through JIT provisioning when a valid JWT names an unknown username.
// Groups are stored denormalized on the user; the authoritative
// membership source for existing users is this record, not token claims.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Groups    []string  `json:"groups"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the invariants every persisted user must satisfy.
func (u *User) Validate() error {
	if u.Username == "" {
		return &ValidationError{Field: "username", Message: "username is required"}
	}
	return nil
}

// InGroup reports whether the user belongs to the named group.
func (u *User) InGroup(name string) bool {
	for _, g := range u.Groups {
		if g == name {
			return true
		}
	}
	return false
}

// APIKey is a long-lived credential bound to a user. Only the SHA-256
// hash of the key material is stored; the plaintext is returned exactly
// once at creation time.
type APIKey struct {
	ID         int64      `json:"id"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	IsActive   bool       `json:"is_active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ValidAt reports whether the key may authenticate at the given time:
// it must be active and not expired.
func (k *APIKey) ValidAt(now time.Time) bool {
	if !k.IsActive {
		return false
	}
	if k.ExpiresAt != nil && !now.Before(*k.ExpiresAt) {
		return false
	}
	return true
}

// CreatedKey pairs a stored API key with its plaintext, available only
// in the creation response.
type CreatedKey struct {
	APIKey
	Key string `json:"key"`
}
