package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/webpilot/webpilot/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		workflowName string
		limit        int
		offset       int
		showEvents   string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show run history",
		Long: `Show past workflow runs, newest first.

Each run records its final status, timing, and the full action trace.
Use --events with a run ID to show that run's event log instead.`,
		Example: `  # Show recent runs
  webpilot history

  # Show runs of one workflow
  webpilot history --workflow checkout

  # Show the event log of a run
  webpilot history --events 4cf8e2a1-...`,
		Args: cobra.NoArgs,
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

			if showEvents != "" {
				return printRunEvents(cmd, store, showEvents, limit, offset)
			}

			var runs []*stores.Run
			if workflowName != "" {
				wf, err := store.GetWorkflowByName(ctx, workflowName)
				if err != nil {
					return err
				}
				runs, err = store.ListRunsByWorkflow(ctx, wf.ID, limit, offset)
				if err != nil {
					return err
				}
			} else {
				runs, err = store.ListRuns(ctx, limit, offset)
				if err != nil {
					return err
				}
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			if len(runs) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tWORKFLOW\tSTATUS\tSTARTED\tDURATION")
			for _, r := range runs {
				duration := "-"
				if r.CompletedAt != nil {
					duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.WorkflowName, r.Status,
					r.StartedAt.Format("2006-01-02 15:04:05"), duration)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&workflowName, "workflow", "", "only runs of this workflow")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "offset into the result set")
	cmd.Flags().StringVar(&showEvents, "events", "", "show the event log of this run ID")

	return cmd
}

func printRunEvents(cmd *cobra.Command, store *stores.SQLiteStore, runID string, limit, offset int) error {
	events, err := store.GetEvents(cmd.Context(), &runID, nil, limit, offset)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	if len(events) == 0 {
		fmt.Println("no events recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tLEVEL\tTYPE\tACTION\tMESSAGE")
	for _, e := range events {
		action := "-"
		if e.ActionName != nil {
			action = *e.ActionName
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Format("15:04:05.000"), e.Level, e.Type, action, e.Message)
	}
	return w.Flush()
}
