package auth

import (
	"context"
	"net/http"
)

// Authenticator validates the credentials in a request's headers.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: authentication failures are the package sentinels; anything
//     else is an internal failure.
type Authenticator interface {
	// Name identifies the authenticator in logs.
	Name() string

	// Supports reports whether the headers carry this kind of credential.
	Supports(h http.Header) bool

	// Authenticate validates the credential and returns the caller.
	Authenticate(ctx context.Context, h http.Header) (*Identity, error)
}

// Chain tries authenticators in order. The first one that supports the
// request decides; a request no authenticator supports fails with
// ErrMissingCredentials.
type Chain []Authenticator

// Name returns "chain".
func (c Chain) Name() string { return "chain" }

// Supports reports whether any member supports the request.
func (c Chain) Supports(h http.Header) bool {
	for _, a := range c {
		if a.Supports(h) {
			return true
		}
	}
	return false
}

// Authenticate delegates to the first member that supports the request.
func (c Chain) Authenticate(ctx context.Context, h http.Header) (*Identity, error) {
	for _, a := range c {
		if a.Supports(h) {
			return a.Authenticate(ctx, h)
		}
	}
	return nil, ErrMissingCredentials
}

var _ Authenticator = Chain(nil)
