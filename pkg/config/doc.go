// Package config loads application configuration and workflow
// definitions for webpilot.
//
// # Overview
//
// Two kinds of input pass through this package: the application
// configuration (driver backend, credential sources, storage,
// telemetry), loaded from a YAML file over defaults, and workflow
// definitions, loaded from YAML or CUE files into the workflow model.
//
// # Components
//
// Load / LoadWorkflow / LoadWorkflowDir: file loading entry points.
// Workflow files are dispatched on extension; both formats land in the
// same model and pass the same validation.
//
// CUEParser: parser for CUE workflow definitions. Definitions declare
// a top-level "workflow" struct checked against the built-in #Schema
// before decoding.
//
// SchemaRegistry: manages the CUE schemas the parser validates
// against. Custom schemas can be registered for domain-specific
// validation.
//
// StarlarkEvaluator: engine-side script execution for utility script
// steps. Implements the runner's script evaluator contract: the run's
// data map is predeclared, exported globals merge back in.
//
// Watcher: fsnotify-based reload of workflow definitions, backing the
// dev command's edit-save-rerun loop.
//
// # Usage Example
//
//	cfg, err := config.Load("webpilot.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	wf, err := config.LoadWorkflow("login.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Workflow Definition Structure
//
// A YAML definition mirrors the workflow model directly:
//
//	name: checkout
//	actions:
//	  - name: open-shop
//	    variant: navigation
//	    navigation:
//	      url: "https://shop.example.com"
//	      wait_for: {condition: element_visible, target: "#cart", timeout: 5s}
//	  - name: add-to-cart
//	    variant: interaction
//	    interaction: {selector: "#add", kind: click}
//
// The CUE form declares the same shape under a top-level workflow
// struct and gains CUE's typing and templating on top.
//
// # Security
//
// Starlark execution is sandboxed:
//   - No filesystem access
//   - No network access
//   - Timeout enforcement (default 30 seconds)
//   - Print statements suppressed
//   - Only safe built-in functions provided
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package config
