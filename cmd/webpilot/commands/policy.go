package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/webpilot/webpilot/pkg/telemetry"
)

func newPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect admission policies",
		Long: `Inspect the built-in and configured admission policies.

Policies are OPA/rego rules evaluated against a workflow before it
runs. Error-severity violations block the run; warnings are reported
but do not block.`,
	}

	cmd.AddCommand(newPolicyListCommand())

	return cmd
}

func newPolicyListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded policies",
		Example: `  # List built-in and configured policies
  webpilot policy list`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			tel, err := telemetry.NewTelemetry(telemetryConfig(cfg, cmd.Root().Version))
			if err != nil {
				return err
			}

			engine, err := newPolicyEngine(ctx, cfg, tel)
			if err != nil {
				return err
			}

			policies := engine.ListPolicies()

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(policies)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSEVERITY\tENABLED\tDESCRIPTION")
			for _, p := range policies {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", p.Name, p.Severity, p.Enabled, p.Description)
			}
			return w.Flush()
		},
	}

	return cmd
}
