package secret

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const refPrefix = "secretref:"

// Errors returned while resolving.
var (
	ErrNotFound        = errors.New("secret: not found")
	ErrUnknownProvider = errors.New("secret: unknown provider")
	ErrEmpty           = errors.New("secret: empty value")
)

// Resolver expands configured values and resolves secret references.
type Resolver struct {
	providers map[string]Provider

	// AllowEmpty accepts providers returning "".
	AllowEmpty bool
}

// NewResolver creates a resolver with the given providers. With none, the
// env and file providers are registered.
func NewResolver(providers ...Provider) *Resolver {
	if len(providers) == 0 {
		providers = []Provider{NewEnvProvider(), NewFileProvider("")}
	}
	r := &Resolver{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// Register adds or replaces a provider.
func (r *Resolver) Register(p Provider) {
	if p != nil {
		r.providers[p.Name()] = p
	}
}

// ParseRef splits secretref:<provider>:<ref>.
func ParseRef(value string) (provider, ref string, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(value), refPrefix)
	if !found {
		return "", "", false
	}
	provider, ref, found = strings.Cut(rest, ":")
	if !found || provider == "" || ref == "" {
		return "", "", false
	}
	return provider, ref, true
}

// IsRef reports whether value is a secret reference.
func IsRef(value string) bool {
	_, _, ok := ParseRef(value)
	return ok
}

// Resolve expands value against the environment and resolves it if it is
// a reference. Plain values are returned expanded.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	expanded, err := ExpandEnvStrict(value)
	if err != nil {
		return "", err
	}
	name, ref, ok := ParseRef(expanded)
	if !ok {
		return expanded, nil
	}

	p, found := r.providers[name]
	if !found {
		return "", fmt.Errorf("%w %q", ErrUnknownProvider, name)
	}
	out, err := p.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if out == "" && !r.AllowEmpty {
		return "", fmt.Errorf("%w from %s provider", ErrEmpty, name)
	}
	return out, nil
}

// ResolveInto resolves each pointed-to value in place. The first failure
// is returned with its field name; the values are left partly resolved.
func (r *Resolver) ResolveInto(ctx context.Context, fields map[string]*string) error {
	for name, ptr := range fields {
		if ptr == nil || *ptr == "" {
			continue
		}
		out, err := r.Resolve(ctx, *ptr)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*ptr = out
	}
	return nil
}

// ResolveAll resolves every element of values, skipping blanks.
func (r *Resolver) ResolveAll(ctx context.Context, values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for i, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		resolved, err := r.Resolve(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, resolved)
	}
	return out, nil
}
