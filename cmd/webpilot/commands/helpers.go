package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/webpilot/webpilot/pkg/config"
	"github.com/webpilot/webpilot/pkg/policy"
	"github.com/webpilot/webpilot/pkg/stores"
	"github.com/webpilot/webpilot/pkg/telemetry"
	"github.com/webpilot/webpilot/pkg/workflow"
)

// contextWithTimeout returns a fresh context for cleanup work that must
// not inherit an already-cancelled run context.
func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

// loadConfig loads the application config honoring the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.LogLevel = "debug"
	}
	return cfg, nil
}

// telemetryConfig maps the application config onto the telemetry stack.
func telemetryConfig(cfg *config.Config, version string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version
	if cfg.Telemetry.LogLevel != "" {
		tc.Logging.Level = cfg.Telemetry.LogLevel
	}
	if cfg.Telemetry.LogFormat != "" {
		tc.Logging.Format = cfg.Telemetry.LogFormat
	}
	if cfg.Telemetry.MetricsAddr != "" {
		tc.Metrics.Enabled = true
		tc.Metrics.ListenAddress = cfg.Telemetry.MetricsAddr
	}
	if cfg.Telemetry.TracingEnabled {
		tc.Tracing.Enabled = true
		if cfg.Telemetry.OTLPEndpoint != "" {
			tc.Tracing.Exporter = "otlp"
			tc.Tracing.Endpoint = cfg.Telemetry.OTLPEndpoint
		} else {
			tc.Tracing.Exporter = "stdout"
		}
	}
	return tc
}

// openStore opens and migrates the SQLite store from config.
func openStore(ctx context.Context, cfg *config.Config) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Storage.Path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// newPolicyEngine builds the policy engine with built-in policies plus
// any configured policy directory.
func newPolicyEngine(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry) (*policy.Engine, error) {
	engine, err := policy.NewEngine(tel.Logger.Zerolog())
	if err != nil {
		return nil, err
	}
	if cfg.Policy.Dir != "" {
		if err := engine.LoadPolicies(ctx, []string{cfg.Policy.Dir}); err != nil {
			return nil, fmt.Errorf("failed to load policies from %s: %w", cfg.Policy.Dir, err)
		}
	}
	return engine, nil
}

// checkPolicies evaluates the workflow against all enabled policies and
// prints violations and warnings. Returns false when a blocking
// violation was found.
func checkPolicies(ctx context.Context, engine *policy.Engine, cfg *config.Config, wf *workflow.Workflow, operation string) (bool, error) {
	result, err := engine.Evaluate(ctx, wf, &policy.Context{
		AllowedHosts: cfg.Policy.AllowedHosts,
		Operation:    operation,
	})
	if err != nil {
		return false, err
	}

	tel := telemetry.FromTelemetryContext(ctx)

	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "policy warning: %s\n", w)
	}
	for _, v := range result.Violations {
		marker := "WARN"
		if v.Severity == policy.SeverityError {
			marker = "DENY"
		}
		fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", marker, v.Policy, v.Message)
		if tel != nil {
			tel.Metrics.RecordPolicyViolation(v.Policy, string(v.Severity))
			_ = tel.Events.PublishPolicyViolation(wf.Name, v.Policy, v.Message)
		}
	}

	return result.Allowed, nil
}

// loadWorkflowArg loads a workflow from a file path, or from the store
// by name when no such file exists.
func loadWorkflowArg(ctx context.Context, store *stores.SQLiteStore, arg string) (*workflow.Workflow, error) {
	if _, err := os.Stat(arg); err == nil {
		return config.LoadWorkflow(arg)
	}
	wf, err := store.GetWorkflowByName(ctx, arg)
	if err != nil {
		return nil, fmt.Errorf("no workflow file or stored workflow named %q", arg)
	}
	return wf, nil
}
