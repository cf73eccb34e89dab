// Package policy evaluates admission rules against workflows before
// they run.
//
// # Overview
//
// Policies are Rego rules compiled with OPA and evaluated against a
// document holding the workflow and an evaluation context. Each policy
// contributes deny results; error-severity results block the run,
// warnings are reported alongside it.
//
// # Built-in Policies
//
//   - navigation-allowlist: blocks navigation outside the configured
//     host allowlist (error)
//   - insecure-navigation: flags plain-HTTP navigation targets (warning)
//   - script-steps: flags page-script and engine-script steps (warning)
//   - unbounded-loops: flags while loops and very large count loops
//     (warning)
//   - plaintext-secrets: blocks literal values typed into password
//     fields (error)
//
// # Custom Policies
//
// Additional .rego or .json files load from the configured policy
// directory. A Rego policy sees the same input document:
//
//	package webpilot.policies.custom
//
//	import rego.v1
//
//	deny contains violation if {
//	    count(input.workflow.actions) > 50
//	    violation := {
//	        "message": "workflow has too many top-level actions",
//	        "severity": "warning",
//	    }
//	}
//
// Nested actions are reachable with walk(), since conditionals, loops,
// and error-handling wrappers carry their own action sequences.
//
// # Hot Reload
//
// The Loader can watch policy paths with fsnotify and recompile on
// change, debounced so editor save bursts reload once.
package policy
