package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/webpilot/webpilot/pkg/config"
)

func newSaveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save <file>...",
		Short: "Save workflow definitions to the store",
		Long: `Parse, validate, and save workflow files to the store.

Saved workflows can be run by name and referenced as sub-workflow
templates from other workflows. Saving a workflow whose name already
exists replaces the definition and bumps its version.`,
		Example: `  # Save one workflow
  webpilot save checkout.yaml

  # Save several at once
  webpilot save workflows/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, path := range args {
				wf, err := config.LoadWorkflow(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				record, err := store.SaveWorkflow(ctx, wf)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Printf("saved %s (version %d)\n", record.Name, record.Version)
			}
			return nil
		},
	}

	return cmd
}
