// Package auth authenticates callers of the administrative API: cache
// invalidation and clearing.
//
// Two credentials are accepted. A bearer JWT signed with the service's HMAC
// secret carries its roles in a claim; a static API key from configuration
// maps to a fixed identity. Chain tries them in order.
//
// Authentication failures are the sentinel errors in errors.go. Any other
// error from an Authenticator is an internal failure.
package auth
