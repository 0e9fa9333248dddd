// Package auth holds credential primitives: add-on API key generation and
// hashing, and request principals carried on the context.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

// Key format: sk_{env}_{prefix}_{secret}
// Example: sk_live_9f3a61c2_5d1e0b7a4c9f2e8d6b3a1c0f9e8d7c6b5a4f3e2d1c0b9a8f
const (
	KeyPrefixLen = 8  // hex of 4 random bytes, stored in clear for lookup
	KeySecretLen = 48 // hex of 24 random bytes
)

// Key environments.
const (
	EnvLive = "live"
	EnvTest = "test"
)

// ErrInvalidKeyFormat indicates a presented key is not an sk_ key.
var ErrInvalidKeyFormat = errors.New("invalid API key format")

var keyFormat = regexp.MustCompile(`^sk_(live|test)_([a-f0-9]{8})_([a-f0-9]{48})$`)

// GeneratedKey is a freshly minted key. Plaintext is returned to the caller
// once and never stored.
type GeneratedKey struct {
	Plaintext string
	Hash      string
	Prefix    string
}

// GenerateAPIKey mints a key for env; anything other than EnvTest is live.
func GenerateAPIKey(env string) (*GeneratedKey, error) {
	if env != EnvTest {
		env = EnvLive
	}

	prefix, err := randomHex(KeyPrefixLen / 2)
	if err != nil {
		return nil, fmt.Errorf("generate prefix: %w", err)
	}
	secret, err := randomHex(KeySecretLen / 2)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	plaintext := "sk_" + env + "_" + prefix + "_" + secret

	hash, err := HashSecret(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}

	return &GeneratedKey{Plaintext: plaintext, Hash: hash, Prefix: prefix}, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ParsedKey is a presented key split into its parts.
type ParsedKey struct {
	Env    string
	Prefix string
	Secret string
}

// ParseAPIKey splits a presented key, rejecting anything not in sk_ format.
func ParseAPIKey(key string) (*ParsedKey, error) {
	m := keyFormat.FindStringSubmatch(key)
	if m == nil {
		return nil, ErrInvalidKeyFormat
	}
	return &ParsedKey{Env: m[1], Prefix: m[2], Secret: m[3]}, nil
}

// ValidateKeyFormat reports whether key is syntactically an sk_ key.
func ValidateKeyFormat(key string) bool {
	return keyFormat.MatchString(key)
}
