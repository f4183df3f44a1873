package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// DefaultAPIKeyHeader carries API keys.
const DefaultAPIKeyHeader = "X-API-Key"

// APIKey is a registered key. Only its SHA-256 hash is kept.
type APIKey struct {
	ID      string
	KeyHash string
	Subject string
	Roles   []string
}

// HashAPIKey hashes an API key using SHA-256 for storage.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(hash[:])
}

// APIKeyAuthenticator validates keys against an in-memory set.
type APIKeyAuthenticator struct {
	header string

	mu   sync.RWMutex
	keys []APIKey
}

// NewAPIKeyAuthenticator creates an authenticator reading header (empty
// means DefaultAPIKeyHeader).
func NewAPIKeyAuthenticator(header string, keys ...APIKey) *APIKeyAuthenticator {
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	return &APIKeyAuthenticator{header: header, keys: keys}
}

// AdminKeys registers each plaintext key as an admin credential with
// subjects "admin-key-1", "admin-key-2", and so on. Blank keys are skipped.
func AdminKeys(plain []string) []APIKey {
	out := make([]APIKey, 0, len(plain))
	for _, k := range plain {
		if strings.TrimSpace(k) == "" {
			continue
		}
		n := len(out) + 1
		id := "admin-key-" + strconv.Itoa(n)
		out = append(out, APIKey{ID: id, KeyHash: HashAPIKey(k), Subject: id, Roles: []string{RoleAdmin}})
	}
	return out
}

// Add registers a key.
func (a *APIKeyAuthenticator) Add(k APIKey) {
	a.mu.Lock()
	a.keys = append(a.keys, k)
	a.mu.Unlock()
}

// Len is the number of registered keys.
func (a *APIKeyAuthenticator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.keys)
}

// Name returns "api_key".
func (a *APIKeyAuthenticator) Name() string { return string(MethodAPIKey) }

// Supports reports whether the request carries the key header.
func (a *APIKeyAuthenticator) Supports(h http.Header) bool {
	return h.Get(a.header) != ""
}

// Authenticate looks the key up by hash. Every registered key is compared
// in constant time.
func (a *APIKeyAuthenticator) Authenticate(_ context.Context, h http.Header) (*Identity, error) {
	presented := strings.TrimSpace(h.Get(a.header))
	if presented == "" {
		return nil, ErrMissingCredentials
	}
	hash := []byte(HashAPIKey(presented))

	a.mu.RLock()
	defer a.mu.RUnlock()

	var found *APIKey
	for i := range a.keys {
		if subtle.ConstantTimeCompare(hash, []byte(a.keys[i].KeyHash)) == 1 {
			found = &a.keys[i]
		}
	}
	if found == nil {
		return nil, ErrInvalidCredentials
	}
	return &Identity{
		Subject: found.Subject,
		Roles:   append([]string(nil), found.Roles...),
		Method:  MethodAPIKey,
	}, nil
}

var _ Authenticator = (*APIKeyAuthenticator)(nil)
