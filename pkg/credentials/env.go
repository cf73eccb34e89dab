package credentials

import (
	"context"
	"os"
	"strings"

	"github.com/webpilot/webpilot/pkg/workflow"
)

// DefaultEnvPrefix is the environment variable prefix the Env resolver
// uses when none is configured.
const DefaultEnvPrefix = "WEBPILOT_CRED_"

// Env resolves credentials from environment variables. The reference
// "site-password" maps to WEBPILOT_CRED_SITE_PASSWORD under the
// default prefix.
type Env struct {
	prefix string
}

// NewEnv creates an environment resolver with the given prefix.
// An empty prefix selects DefaultEnvPrefix.
func NewEnv(prefix string) *Env {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &Env{prefix: prefix}
}

// Resolve implements Resolver.
func (e *Env) Resolve(_ context.Context, name string) (string, error) {
	key := e.prefix + envKey(name)
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", workflow.NewCredentialNotFoundError(name)
	}
	return v, nil
}

// envKey normalizes a credential reference into an environment
// variable suffix: uppercased, with separators folded to underscores.
func envKey(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch r {
		case '-', '.', '/', ' ':
			return '_'
		default:
			return r
		}
	}, name)
	return strings.ToUpper(mapped)
}
