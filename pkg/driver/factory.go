package driver

import (
	"context"
	"fmt"
	"time"
)

// Config selects and configures an automation backend. It is plain
// data passed at construction time; there is no process-wide registry.
type Config struct {
	// Backend selects the automation backend ("cdp" or "webdriver").
	Backend Backend `json:"backend" yaml:"backend"`

	// Headless runs the browser without a visible window (cdp).
	Headless bool `json:"headless" yaml:"headless"`

	// RemoteURL is the WebDriver endpoint (webdriver), e.g.
	// "http://localhost:4444".
	RemoteURL string `json:"remote_url,omitempty" yaml:"remote_url,omitempty"`

	// BrowserName is the requested browser for WebDriver sessions.
	// Defaults to "chrome".
	BrowserName string `json:"browser_name,omitempty" yaml:"browser_name,omitempty"`

	// DefaultWaitTimeout bounds WaitFor calls with a zero timeout.
	DefaultWaitTimeout time.Duration `json:"default_wait_timeout,omitempty" yaml:"default_wait_timeout,omitempty"`

	// UserAgent overrides the browser user agent when set.
	UserAgent string `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
}

// DefaultWaitTimeout is used when neither the config nor the caller
// supplies a wait bound.
const DefaultWaitTimeout = 15 * time.Second

// New creates a Browser for the configured backend. The same workflow
// runs unmodified against any backend returned here; callers own the
// returned driver and must Close it.
func New(ctx context.Context, cfg Config) (Browser, error) {
	if cfg.DefaultWaitTimeout <= 0 {
		cfg.DefaultWaitTimeout = DefaultWaitTimeout
	}
	switch cfg.Backend {
	case BackendCDP:
		return newCDPDriver(ctx, cfg)
	case BackendWebDriver:
		return newWebDriverSession(ctx, cfg)
	case "":
		return nil, fmt.Errorf("driver backend not configured")
	default:
		return nil, fmt.Errorf("unknown driver backend: %s", cfg.Backend)
	}
}
