package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		navigationAllowlistPolicy(),
		insecureNavigationPolicy(),
		scriptStepsPolicy(),
		unboundedLoopsPolicy(),
		plaintextSecretsPolicy(),
	}
}

// navigationAllowlistPolicy restricts navigation targets to the
// configured host allowlist.
func navigationAllowlistPolicy() Policy {
	return Policy{
		Name:        "navigation-allowlist",
		Description: "Blocks navigation to hosts outside the configured allowlist",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"navigation", "security"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package webpilot.policies.allowlist

import rego.v1

host_of(url) := host if {
	contains(url, "://")
	rest := split(url, "://")[1]
	host := split(split(rest, "/")[0], ":")[0]
}

host_allowed(host) if {
	some allowed in input.context.allowed_hosts
	host == allowed
}

# Navigation actions at any nesting depth must target allowed hosts
deny contains violation if {
	count(input.context.allowed_hosts) > 0

	walk(input.workflow.actions, [_, action])
	action.variant == "navigation"
	host := host_of(action.navigation.url)
	not host_allowed(host)

	violation := {
		"message": sprintf("navigation to host '%s' is not in the allowlist", [host]),
		"severity": "error",
		"action": action.name,
	}
}
`,
	}
}

// insecureNavigationPolicy flags plain-HTTP navigation targets.
func insecureNavigationPolicy() Policy {
	return Policy{
		Name:        "insecure-navigation",
		Description: "Warns when a workflow navigates to a plain-HTTP URL",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"navigation", "security"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package webpilot.policies.insecure

import rego.v1

deny contains violation if {
	walk(input.workflow.actions, [_, action])
	action.variant == "navigation"
	startswith(action.navigation.url, "http://")

	violation := {
		"message": sprintf("navigation to '%s' uses plain HTTP", [action.navigation.url]),
		"severity": "warning",
		"action": action.name,
	}
}
`,
	}
}

// scriptStepsPolicy flags script execution steps for review.
func scriptStepsPolicy() Policy {
	return Policy{
		Name:        "script-steps",
		Description: "Warns when a workflow executes scripts in the page or the engine",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"scripts"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package webpilot.policies.scripts

import rego.v1

script_kinds := {"evaluate", "script"}

deny contains violation if {
	walk(input.workflow.actions, [_, action])
	action.variant == "utility"
	script_kinds[action.utility.kind]

	violation := {
		"message": sprintf("action '%s' runs a %s step", [action.name, action.utility.kind]),
		"severity": "warning",
		"action": action.name,
	}
}
`,
	}
}

// unboundedLoopsPolicy flags loops whose termination depends on page
// state.
func unboundedLoopsPolicy() Policy {
	return Policy{
		Name:        "unbounded-loops",
		Description: "Warns on while loops and very large fixed-count loops",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"loops"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package webpilot.policies.loops

import rego.v1

deny contains violation if {
	walk(input.workflow.actions, [_, action])
	action.variant == "loop"
	action.loop.source == "while"

	violation := {
		"message": sprintf("action '%s' is a while loop; termination depends on page state", [action.name]),
		"severity": "warning",
		"action": action.name,
	}
}

deny contains violation if {
	walk(input.workflow.actions, [_, action])
	action.variant == "loop"
	action.loop.source == "count"
	action.loop.count > 500

	violation := {
		"message": sprintf("action '%s' iterates %d times", [action.name, action.loop.count]),
		"severity": "warning",
		"action": action.name,
	}
}
`,
	}
}

// plaintextSecretsPolicy blocks literal values typed into
// password-like fields.
func plaintextSecretsPolicy() Policy {
	return Policy{
		Name:        "plaintext-secrets",
		Description: "Blocks typing literal values into password fields; use credential references",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"credentials", "security"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package webpilot.policies.secrets

import rego.v1

deny contains violation if {
	walk(input.workflow.actions, [_, action])
	action.variant == "interaction"
	action.interaction.kind == "type"
	contains(lower(action.interaction.selector), "password")
	action.interaction.value != ""
	not action.interaction.credential_ref

	violation := {
		"message": sprintf("action '%s' types a literal value into a password field", [action.name]),
		"severity": "error",
		"action": action.name,
	}
}
`,
	}
}
