// Package credentials resolves named secret references to values at
// execution time. The engine never persists or encrypts secrets; it
// consumes resolved values at the point of use and the runner
// guarantees they are never written into results or logs.
package credentials

import (
	"context"

	"github.com/webpilot/webpilot/pkg/workflow"
)

// Resolver maps a named credential reference to its value. A missing
// reference fails with a credential_not_found workflow error, which the
// runner folds into the trace as an action failure.
type Resolver interface {
	// Resolve returns the value for the named credential.
	Resolve(ctx context.Context, name string) (string, error)
}

// Static resolves credentials from an in-memory map. Useful for tests
// and for values the caller already holds.
type Static struct {
	values map[string]string
}

// NewStatic creates a static resolver over a copy of the given map.
func NewStatic(values map[string]string) *Static {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Static{values: copied}
}

// Resolve implements Resolver.
func (s *Static) Resolve(_ context.Context, name string) (string, error) {
	v, ok := s.values[name]
	if !ok {
		return "", workflow.NewCredentialNotFoundError(name)
	}
	return v, nil
}

// Chain tries a list of resolvers in order and returns the first hit.
type Chain struct {
	resolvers []Resolver
}

// NewChain creates a chain resolver. Resolvers are consulted in the
// given order.
func NewChain(resolvers ...Resolver) *Chain {
	return &Chain{resolvers: resolvers}
}

// Resolve implements Resolver. Non-missing errors abort the chain;
// missing references fall through to the next resolver.
func (c *Chain) Resolve(ctx context.Context, name string) (string, error) {
	for _, r := range c.resolvers {
		v, err := r.Resolve(ctx, name)
		if err == nil {
			return v, nil
		}
		if !workflow.IsCredentialNotFound(err) {
			return "", err
		}
	}
	return "", workflow.NewCredentialNotFoundError(name)
}
