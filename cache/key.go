package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// MaxKeyLength bounds a stored key in bytes.
const MaxKeyLength = 512

// hashedKeyPrefixLen is how much of an overlong key survives in its
// shortened form, ahead of the digest.
const hashedKeyPrefixLen = 64

// NormalizeKey canonicalizes a fetch key before lookup: surrounding
// whitespace trimmed, inner whitespace runs collapsed to one space, lower
// cased. Keys longer than MaxKeyLength are shortened to a readable prefix
// plus the first 16 hex chars of their SHA-256, so that logically identical
// requests still collide.
//
// NormalizeKey is idempotent.
func NormalizeKey(key string) string {
	key = strings.ToLower(strings.Join(strings.Fields(key), " "))
	if len(key) <= MaxKeyLength {
		return key
	}

	// The prefix ends on a rune boundary.
	cut := hashedKeyPrefixLen
	for cut > 0 && !utf8.RuneStart(key[cut]) {
		cut--
	}
	sum := sha256.Sum256([]byte(key))
	return key[:cut] + "#" + hex.EncodeToString(sum[:8])
}

// PrepareKey normalizes key and validates the result.
func PrepareKey(key string) (string, error) {
	key = NormalizeKey(key)
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// ValidateKey rejects blank keys, keys with line breaks and keys over
// MaxKeyLength.
func ValidateKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "", strings.ContainsAny(key, "\r\n"):
		return ErrInvalidKey
	case len(key) > MaxKeyLength:
		return ErrKeyTooLong
	}
	return nil
}
