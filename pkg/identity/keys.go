package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeyPrefix marks API keys on the wire. The auth resolver routes any
// credential carrying it to the API-key path instead of JWT parsing.
const KeyPrefix = "sk-"

// keyRandomBytes is the entropy behind each generated key.
const keyRandomBytes = 32

// GenerateKey creates a new API key. It returns the plaintext (shown to
// the caller exactly once) and the SHA-256 hash that gets persisted.
func GenerateKey() (plaintext, hash string, err error) {
	buf := make([]byte, keyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate key material: %w", err)
	}
	plaintext = KeyPrefix + hex.EncodeToString(buf)
	return plaintext, HashKey(plaintext), nil
}

// HashKey returns the hex SHA-256 digest of a plaintext key. Lookups and
// storage only ever see this value.
func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// IsAPIKey reports whether a credential looks like an API key.
func IsAPIKey(credential string) bool {
	return strings.HasPrefix(credential, KeyPrefix)
}
