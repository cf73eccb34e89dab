package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/webpilot/webpilot/pkg/workflow"
)

// Load reads the application configuration from path, layered over
// Default. An empty path returns Default unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if cfg.Driver.Backend == "webdriver" && cfg.Driver.RemoteURL == "" {
		return nil, fmt.Errorf("invalid config %s: webdriver backend requires remote_url", path)
	}
	return cfg, nil
}

// LoadWorkflow reads a workflow definition from a YAML or CUE file,
// chosen by extension, and validates it.
func LoadWorkflow(path string) (*workflow.Workflow, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loadWorkflowYAML(path)
	case ".cue":
		return NewCUEParser().ParseWorkflow(path)
	default:
		return nil, fmt.Errorf("unsupported workflow file %s: expected .yaml, .yml, or .cue", path)
	}
}

// LoadWorkflowDir loads every workflow definition in a directory,
// non-recursively, sorted by file name.
func LoadWorkflowDir(dir string) ([]*workflow.Workflow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".cue":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	workflows := make([]*workflow.Workflow, 0, len(paths))
	for _, path := range paths {
		wf, err := LoadWorkflow(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

func loadWorkflowYAML(path string) (*workflow.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow %s: %w", path, err)
	}

	var wf workflow.Workflow
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&wf); err != nil {
		return nil, fmt.Errorf("failed to parse workflow %s: %w", path, err)
	}
	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow %s: %w", path, err)
	}
	return &wf, nil
}
