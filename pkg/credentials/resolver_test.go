package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/webpilot/webpilot/pkg/workflow"
)

func TestStaticResolver(t *testing.T) {
	r := NewStatic(map[string]string{"site-password": "hunter2"})
	ctx := context.Background()

	v, err := r.Resolve(ctx, "site-password")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if v != "hunter2" {
		t.Fatalf("unexpected value %q", v)
	}

	_, err = r.Resolve(ctx, "missing")
	if !workflow.IsCredentialNotFound(err) {
		t.Fatalf("expected credential_not_found, got %v", err)
	}
}

func TestEnvResolver(t *testing.T) {
	t.Setenv("WEBPILOT_CRED_SITE_PASSWORD", "from-env")

	r := NewEnv("")
	v, err := r.Resolve(context.Background(), "site-password")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if v != "from-env" {
		t.Fatalf("unexpected value %q", v)
	}

	_, err = r.Resolve(context.Background(), "nope")
	if !workflow.IsCredentialNotFound(err) {
		t.Fatalf("expected credential_not_found, got %v", err)
	}
}

func TestFileResolver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.yaml")
	if err := os.WriteFile(path, []byte("api-token: abc123\n"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	r := NewFile(path)
	v, err := r.Resolve(context.Background(), "api-token")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if v != "abc123" {
		t.Fatalf("unexpected value %q", v)
	}
}

func TestChainResolverOrder(t *testing.T) {
	first := NewStatic(map[string]string{"shared": "from-first"})
	second := NewStatic(map[string]string{"shared": "from-second", "only-second": "x"})
	chain := NewChain(first, second)
	ctx := context.Background()

	v, err := chain.Resolve(ctx, "shared")
	if err != nil || v != "from-first" {
		t.Fatalf("chain must prefer the first resolver, got %q, %v", v, err)
	}

	v, err = chain.Resolve(ctx, "only-second")
	if err != nil || v != "x" {
		t.Fatalf("chain must fall through on a miss, got %q, %v", v, err)
	}

	_, err = chain.Resolve(ctx, "nowhere")
	if !workflow.IsCredentialNotFound(err) {
		t.Fatalf("expected credential_not_found, got %v", err)
	}
}
