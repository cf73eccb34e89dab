package config

import (
	"fmt"
	"time"
)

// Config holds the application configuration loaded from a YAML file
// plus defaults. It configures the driver, credential sources, storage,
// and telemetry; workflow definitions are loaded separately.
type Config struct {
	// Driver configures the browser backend.
	Driver DriverConfig `yaml:"driver" validate:"required"`

	// Credentials configures the secret resolution chain.
	Credentials CredentialsConfig `yaml:"credentials"`

	// Storage configures the workflow and run store.
	Storage StorageConfig `yaml:"storage"`

	// Runner configures execution limits.
	Runner RunnerConfig `yaml:"runner"`

	// Telemetry configures logging, metrics, and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Policy configures workflow admission policies.
	Policy PolicyConfig `yaml:"policy"`
}

// DriverConfig selects and tunes the browser backend.
type DriverConfig struct {
	// Backend is "cdp" or "webdriver".
	Backend string `yaml:"backend" validate:"required,oneof=cdp webdriver"`

	// Headless runs the browser without a visible window.
	Headless bool `yaml:"headless"`

	// RemoteURL is the WebDriver endpoint, required for the webdriver
	// backend.
	RemoteURL string `yaml:"remote_url" validate:"omitempty,url"`

	// BrowserName is the requested browser for remote sessions.
	BrowserName string `yaml:"browser_name"`

	// WaitTimeout is the default timeout for wait conditions.
	WaitTimeout time.Duration `yaml:"wait_timeout"`

	// UserAgent overrides the browser user agent when set.
	UserAgent string `yaml:"user_agent"`
}

// CredentialsConfig configures the secret resolution chain. Sources are
// consulted in order: static entries, then the file, then environment
// variables.
type CredentialsConfig struct {
	// File is an optional YAML file of name/value pairs.
	File string `yaml:"file"`

	// EnvPrefix is the environment variable prefix for the env source.
	EnvPrefix string `yaml:"env_prefix"`

	// Static holds inline credentials, intended for tests and local
	// development only.
	Static map[string]string `yaml:"static"`
}

// StorageConfig configures the SQLite store.
type StorageConfig struct {
	// Path is the SQLite database file. ":memory:" keeps everything
	// in process.
	Path string `yaml:"path"`
}

// RunnerConfig configures execution limits.
type RunnerConfig struct {
	// MaxLoopIterations bounds while loops. Zero means the built-in
	// default.
	MaxLoopIterations int `yaml:"max_loop_iterations" validate:"min=0"`

	// ScriptTimeout bounds each engine-side script evaluation.
	ScriptTimeout time.Duration `yaml:"script_timeout"`
}

// TelemetryConfig configures logging, metrics, and tracing.
type TelemetryConfig struct {
	// LogLevel is trace, debug, info, warn, or error.
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`

	// LogFormat is "json" or "console".
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=json console"`

	// MetricsAddr exposes Prometheus metrics on this address when set.
	MetricsAddr string `yaml:"metrics_addr"`

	// TracingEnabled turns on OpenTelemetry span export.
	TracingEnabled bool `yaml:"tracing_enabled"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint. Empty with
	// tracing enabled exports spans to stdout.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// PolicyConfig configures workflow admission policies.
type PolicyConfig struct {
	// Dir holds additional Rego policy files loaded next to the
	// built-in policies.
	Dir string `yaml:"dir"`

	// AllowedHosts restricts navigation targets when non-empty.
	AllowedHosts []string `yaml:"allowed_hosts"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Driver: DriverConfig{
			Backend:     "cdp",
			Headless:    true,
			WaitTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Path: "webpilot.db",
		},
		Runner: RunnerConfig{
			ScriptTimeout: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// ValidationError is a single problem found while loading a workflow
// definition, with its position when known.
type ValidationError struct {
	// File is the source file the error was found in.
	File string `json:"file,omitempty"`

	// Line is the 1-based line number, zero when unknown.
	Line int `json:"line,omitempty"`

	// Column is the 1-based column number, zero when unknown.
	Column int `json:"column,omitempty"`

	// Path is the document path of the offending value.
	Path string `json:"path,omitempty"`

	// Message describes the problem.
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	default:
		return e.Message
	}
}
