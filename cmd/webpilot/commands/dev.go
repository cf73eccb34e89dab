package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/webpilot/webpilot/pkg/config"
	"github.com/webpilot/webpilot/pkg/telemetry"
)

func newDevCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Development mode commands",
		Long: `Commands for local workflow development.

These commands give fast feedback while editing workflow files.`,
	}

	cmd.AddCommand(newDevWatchCommand())

	return cmd
}

func newDevWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a directory and revalidate workflows on change",
		Long: `Watch a directory of workflow files and revalidate each file as it
is saved. Validation covers schema conformance and admission policies,
the same checks the run command applies.`,
		Example: `  # Watch the workflows directory
  webpilot dev watch ./workflows`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir := args[0]

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			tel, err := telemetry.NewTelemetry(telemetryConfig(cfg, cmd.Root().Version))
			if err != nil {
				return err
			}
			ctx = tel.WithContext(ctx)

			engine, err := newPolicyEngine(ctx, cfg, tel)
			if err != nil {
				return err
			}

			validateFile := func(path string) {
				wf, err := config.LoadWorkflow(path)
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
					return
				}
				allowed, err := checkPolicies(ctx, engine, cfg, wf, "validate")
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: policy evaluation failed: %v\n", path, err)
					return
				}
				if !allowed {
					fmt.Fprintf(os.Stderr, "%s: blocked by policy\n", path)
					return
				}
				fmt.Printf("%s: ok (%s)\n", path, wf.Name)
			}

			// Validate everything once before watching.
			files, err := collectWorkflows(dir)
			if err != nil {
				return err
			}
			for _, f := range files {
				validateFile(f)
			}

			watcher := config.NewWatcher(tel.Logger.Zerolog())
			defer watcher.Stop()

			fmt.Printf("watching %s for changes (ctrl-c to stop)\n", dir)
			if err := watcher.Watch(ctx, dir, validateFile); err != nil {
				return err
			}

			<-ctx.Done()
			return nil
		},
	}

	return cmd
}
