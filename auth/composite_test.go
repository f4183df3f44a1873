package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestChain(t *testing.T) {
	jwtAuth, err := NewJWTAuthenticator(JWTConfig{Secret: testSecret})
	if err != nil {
		t.Fatal(err)
	}
	keys := NewAPIKeyAuthenticator("", AdminKeys([]string{"k1"})...)
	chain := Chain{jwtAuth, keys}

	token, err := jwtAuth.Issue("ops", []string{RoleReader}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		header     http.Header
		wantMethod Method
		wantErr    error
	}{
		{"jwt", http.Header{"Authorization": {"Bearer " + token}}, MethodJWT, nil},
		{"api key", http.Header{"X-Api-Key": {"k1"}}, MethodAPIKey, nil},
		{"bad jwt beats good key", http.Header{"Authorization": {"Bearer x.y.z"}, "X-Api-Key": {"k1"}}, "", ErrTokenMalformed},
		{"nothing", http.Header{}, "", ErrMissingCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := chain.Authenticate(context.Background(), tt.header)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Authenticate() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && id.Method != tt.wantMethod {
				t.Errorf("Method = %q, want %q", id.Method, tt.wantMethod)
			}
		})
	}

	if chain.Supports(http.Header{}) {
		t.Error("Supports(empty) = true")
	}
}

func TestIdentity(t *testing.T) {
	var nilID *Identity
	if nilID.HasRole(RoleAdmin) {
		t.Error("nil identity has a role")
	}
	if err := nilID.Require(RoleAdmin); !errors.Is(err, ErrForbidden) {
		t.Errorf("Require() error = %v, want ErrForbidden", err)
	}

	id := &Identity{Subject: "ops", Roles: []string{RoleAdmin}}
	if err := id.Require(RoleAdmin); err != nil {
		t.Errorf("Require(admin) error = %v", err)
	}

	ctx := WithIdentity(context.Background(), id)
	if got := SubjectFromContext(ctx); got != "ops" {
		t.Errorf("SubjectFromContext() = %q, want ops", got)
	}
	if IdentityFromContext(context.Background()) != nil {
		t.Error("IdentityFromContext(empty) != nil")
	}
	if SubjectFromContext(context.Background()) != "" {
		t.Error("SubjectFromContext(empty) != \"\"")
	}
}
