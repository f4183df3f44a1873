package secret

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Provider resolves secrets by reference string. Implementations must be
// safe for concurrent use.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
}

// EnvProvider reads a secret from an environment variable.
type EnvProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvProvider returns the "env" provider.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{lookup: os.LookupEnv}
}

func (p *EnvProvider) Name() string { return "env" }

// Resolve returns the variable named ref. An unset variable is an error.
func (p *EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := p.lookup(ref)
	if !ok {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrNotFound, ref)
	}
	return v, nil
}

// FileProvider reads a secret from a file, as mounted by Docker or
// Kubernetes secrets. Trailing newlines are trimmed.
type FileProvider struct {
	// Root, when set, is prepended to relative references.
	Root string
}

// NewFileProvider returns the "file" provider.
func NewFileProvider(root string) *FileProvider {
	return &FileProvider{Root: root}
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	path := ref
	if p.Root != "" && !strings.HasPrefix(ref, "/") {
		path = p.Root + "/" + ref
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: file %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("secret: read %s: %w", path, err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}
