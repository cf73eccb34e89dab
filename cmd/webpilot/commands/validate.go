package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/webpilot/webpilot/pkg/config"
	"github.com/webpilot/webpilot/pkg/telemetry"
)

func newValidateCommand() *cobra.Command {
	var skipPolicy bool

	cmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Validate workflow definition files",
		Long: `Validate workflow files against the schema and admission policies.

This command checks:
  - YAML/CUE syntax validity
  - Schema conformance (action variants, payloads, nesting)
  - Policy compliance (OPA/rego)

The argument may be a single workflow file or a directory of them.`,
		Example: `  # Validate one workflow
  webpilot validate checkout.yaml

  # Validate a directory of workflows
  webpilot validate ./workflows

  # Schema check only, skip policies
  webpilot validate --skip-policy checkout.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			tel, err := telemetry.NewTelemetry(telemetryConfig(cfg, cmd.Root().Version))
			if err != nil {
				return err
			}
			ctx = tel.WithContext(ctx)

			workflows, err := collectWorkflows(path)
			if err != nil {
				return err
			}
			if len(workflows) == 0 {
				return fmt.Errorf("no workflow files found at %s", path)
			}

			failed := 0
			for _, entry := range workflows {
				wf, err := config.LoadWorkflow(entry)
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", entry, err)
					failed++
					continue
				}

				if !skipPolicy {
					engine, err := newPolicyEngine(ctx, cfg, tel)
					if err != nil {
						return err
					}
					allowed, err := checkPolicies(ctx, engine, cfg, wf, "validate")
					if err != nil {
						return err
					}
					if !allowed {
						fmt.Fprintf(os.Stderr, "%s: blocked by policy\n", entry)
						failed++
						continue
					}
				}

				fmt.Printf("%s: ok (%s, %d top-level actions)\n", entry, wf.Name, len(wf.Actions))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d workflow(s) failed validation", failed, len(workflows))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "skip policy evaluation")

	return cmd
}

// collectWorkflows expands a path into the workflow files under it.
func collectWorkflows(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml", ".cue":
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	return files, nil
}
