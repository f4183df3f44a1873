package auth

import (
	"context"
	"slices"
	"time"
)

// Method indicates how a caller authenticated.
type Method string

const (
	MethodJWT    Method = "jwt"
	MethodAPIKey Method = "api_key"
)

// Roles understood by the API.
const (
	RoleAdmin  = "admin"
	RoleReader = "reader"
)

// Identity is an authenticated caller.
type Identity struct {
	Subject   string
	Roles     []string
	Method    Method
	ExpiresAt time.Time
}

// HasRole reports whether the identity carries role.
func (id *Identity) HasRole(role string) bool {
	return id != nil && slices.Contains(id.Roles, role)
}

// Require returns ErrForbidden unless the identity carries role.
func (id *Identity) Require(role string) error {
	if !id.HasRole(role) {
		return ErrForbidden
	}
	return nil
}

type identityKey struct{}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity attached to ctx, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// SubjectFromContext returns the subject of the identity in ctx, or "".
func SubjectFromContext(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.Subject
	}
	return ""
}
