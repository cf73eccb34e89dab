package credentials

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/webpilot/webpilot/pkg/workflow"
)

// File resolves credentials from a YAML file mapping names to values:
//
//	site-password: hunter2
//	api-token: abc123
//
// The file is read lazily on first resolve and cached; Reload rereads
// it. How the file is protected at rest is the operator's concern.
type File struct {
	path string

	mu     sync.RWMutex
	values map[string]string
	loaded bool
}

// NewFile creates a file resolver for the given path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Resolve implements Resolver.
func (f *File) Resolve(_ context.Context, name string) (string, error) {
	f.mu.RLock()
	loaded := f.loaded
	f.mu.RUnlock()

	if !loaded {
		if err := f.Reload(); err != nil {
			return "", err
		}
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[name]
	if !ok {
		return "", workflow.NewCredentialNotFoundError(name)
	}
	return v, nil
}

// Reload rereads the credentials file.
func (f *File) Reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("failed to read credentials file: %w", err)
	}

	values := make(map[string]string)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse credentials file: %w", err)
	}

	f.mu.Lock()
	f.values = values
	f.loaded = true
	f.mu.Unlock()
	return nil
}
