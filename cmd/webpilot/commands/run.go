package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/webpilot/webpilot/pkg/config"
	"github.com/webpilot/webpilot/pkg/credentials"
	"github.com/webpilot/webpilot/pkg/driver"
	"github.com/webpilot/webpilot/pkg/runner"
	"github.com/webpilot/webpilot/pkg/stores"
	"github.com/webpilot/webpilot/pkg/telemetry"
	"github.com/webpilot/webpilot/pkg/workflow"
)

func newRunCommand() *cobra.Command {
	var (
		force       bool
		noSave      bool
		staticCreds []string
	)

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Execute a browser workflow",
		Long: `Execute a workflow against the configured browser backend.

The argument is a workflow file (YAML or CUE) or the name of a
workflow previously saved to the store. The workflow is validated and
checked against admission policies before the browser starts; the run,
its action trace, and its events are recorded in the store.`,
		Example: `  # Run a workflow file
  webpilot run checkout.yaml

  # Run a stored workflow by name
  webpilot run nightly-scrape

  # Supply a credential inline (tests and local use only)
  webpilot run login.yaml --credential site-password=hunter2

  # Run despite policy warnings being violations
  webpilot run scrape.cue --force`,
		Args: cobra.ExactArgs(1),
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
			ctx = tel.WithContext(ctx)
			defer func() {
				shutdownCtx, cancel := contextWithTimeout(5 * time.Second)
				defer cancel()
				_ = tel.Shutdown(shutdownCtx)
			}()
			if err := tel.StartMetricsServer(); err != nil {
				return err
			}

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			wf, err := loadWorkflowArg(ctx, store, args[0])
			if err != nil {
				return err
			}

			engine, err := newPolicyEngine(ctx, cfg, tel)
			if err != nil {
				return err
			}
			allowed, err := checkPolicies(ctx, engine, cfg, wf, "run")
			if err != nil {
				return err
			}
			if !allowed && !force {
				return fmt.Errorf("workflow %s blocked by policy (use --force to override)", wf.Name)
			}

			record, err := store.SaveWorkflow(ctx, wf)
			if err != nil {
				return err
			}
			wf.ID = record.ID

			br, err := driver.New(ctx, driver.Config{
				Backend:            driver.Backend(cfg.Driver.Backend),
				Headless:           cfg.Driver.Headless,
				RemoteURL:          cfg.Driver.RemoteURL,
				BrowserName:        cfg.Driver.BrowserName,
				DefaultWaitTimeout: cfg.Driver.WaitTimeout,
				UserAgent:          cfg.Driver.UserAgent,
			})
			if err != nil {
				return fmt.Errorf("failed to start browser driver: %w", err)
			}
			defer br.Close(ctx)

			resolver, err := buildResolver(cfg, staticCreds)
			if err != nil {
				return err
			}

			runID := uuid.New().String()
			r := runner.New(runner.Options{
				Driver:            br,
				Credentials:       resolver,
				Templates:         store,
				Scripts:           config.NewStarlarkEvaluator(cfg.Runner.ScriptTimeout),
				MaxLoopIterations: cfg.Runner.MaxLoopIterations,
				Logger:            tel.Logger.Zerolog(),
				Telemetry:         tel,
				RunID:             runID,
			})

			now := time.Now().UTC()

			if !noSave {
				persistEvents(tel, store, runID)
				if err := store.CreateRun(ctx, &stores.Run{
					ID:           runID,
					WorkflowID:   record.ID,
					WorkflowName: wf.Name,
					Status:       stores.RunStatusRunning,
					Trace:        "{}",
					StartedAt:    now,
					CreatedAt:    now,
					UpdatedAt:    now,
				}); err != nil {
					return err
				}
			}

			runCtx := telemetry.WithRunContext(ctx, runID, wf.Name)
			report, runErr := r.Run(runCtx, wf)

			status, trace, errMsg := runOutcome(report, runErr)
			telemetry.EndRunContext(runCtx, runID, wf.Name, string(status), runErr)

			if !noSave {
				// Persist the outcome even when the run context is gone.
				updateCtx, cancel := contextWithTimeout(5 * time.Second)
				defer cancel()
				if err := store.UpdateRunStatus(updateCtx, runID, status, trace, errMsg); err != nil {
					tel.Logger.WithError(err).Error("failed to record run outcome")
				}
			}

			if runErr != nil {
				return runErr
			}

			printReport(report)
			if report.Status != runner.RunSucceeded {
				return fmt.Errorf("run %s %s", report.RunID, report.Status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "run even when blocked by policy")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not record the run in the store")
	cmd.Flags().StringSliceVar(&staticCreds, "credential", nil, "inline credential (name=value), repeatable")

	return cmd
}

// buildResolver assembles the credential chain: inline flags, then the
// config statics, then the file source, then environment variables.
func buildResolver(cfg *config.Config, staticCreds []string) (credentials.Resolver, error) {
	inline := make(map[string]string, len(staticCreds))
	for _, kv := range staticCreds {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --credential %q, expected name=value", kv)
		}
		inline[name] = value
	}

	chain := []credentials.Resolver{}
	if len(inline) > 0 {
		chain = append(chain, credentials.NewStatic(inline))
	}
	if len(cfg.Credentials.Static) > 0 {
		chain = append(chain, credentials.NewStatic(cfg.Credentials.Static))
	}
	if cfg.Credentials.File != "" {
		chain = append(chain, credentials.NewFile(cfg.Credentials.File))
	}
	chain = append(chain, credentials.NewEnv(cfg.Credentials.EnvPrefix))

	return credentials.NewChain(chain...), nil
}

// persistEvents subscribes the store to runner lifecycle events so the
// event log survives the process.
func persistEvents(tel *telemetry.Telemetry, store *stores.SQLiteStore, runID string) {
	tel.Events.Subscribe(func(e telemetry.Event) {
		level := stores.EventLevel(e.Level)
		ev := &stores.Event{
			RunID:     &runID,
			Level:     level,
			Type:      e.Type,
			Message:   e.Message,
			Timestamp: e.Timestamp,
		}
		if e.ActionName != "" {
			name := e.ActionName
			ev.ActionName = &name
		}
		if len(e.Data) > 0 {
			if details, err := json.Marshal(e.Data); err == nil {
				s := string(details)
				ev.Details = &s
			}
		}
		persistCtx, cancel := contextWithTimeout(5 * time.Second)
		defer cancel()
		_ = store.AppendEvent(persistCtx, ev)
	}, telemetry.FilterByRunID(runID))
}

// runOutcome maps the runner's report and error onto store fields.
func runOutcome(report *runner.Report, runErr error) (stores.RunStatus, *string, *string) {
	if runErr != nil {
		msg := runErr.Error()
		return stores.RunStatusFailed, nil, &msg
	}

	var status stores.RunStatus
	switch report.Status {
	case runner.RunSucceeded:
		status = stores.RunStatusSucceeded
	case runner.RunCancelled:
		status = stores.RunStatusCancelled
	default:
		status = stores.RunStatusFailed
	}

	var trace *string
	if data, err := json.Marshal(report.Result); err == nil {
		s := string(data)
		trace = &s
	}
	return status, trace, nil
}

// printReport writes the run outcome as JSON or a human summary.
func printReport(report *runner.Report) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}

	fmt.Printf("Run %s: %s (%s)\n", report.RunID, report.Status, report.Duration.Round(time.Millisecond))
	printTrace(&report.Result, 0)
}

// printTrace renders the action trace as an indented tree.
func printTrace(result *workflow.ActionResult, depth int) {
	indent := strings.Repeat("  ", depth)
	line := fmt.Sprintf("%s%s [%s] %s", indent, statusGlyph(result.Status), result.Variant, result.ActionName)
	if result.Message != "" {
		line += ": " + result.Message
	}
	fmt.Println(line)
	for i := range result.Children {
		printTrace(&result.Children[i], depth+1)
	}
}

func statusGlyph(status workflow.Status) string {
	switch status {
	case workflow.StatusSuccess:
		return "+"
	case workflow.StatusFailure:
		return "x"
	case workflow.StatusSkipped:
		return "-"
	default:
		return "?"
	}
}
