package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
)

// SchemaRegistry manages CUE schemas for workflow definition
// validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry with the built-in schemas
// compiled in the given context.
func NewSchemaRegistry(ctx *cue.Context) *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}
	sr.RegisterSchema("workflow", builtinWorkflowSchema)
	sr.RegisterSchema("action", builtinActionSchema)
	return sr
}

// RegisterSchema registers a CUE schema with the given name. The
// schema source must declare a single #Schema definition.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath("#Schema"))
	if !def.Exists() {
		return fmt.Errorf("schema %s declares no #Schema definition", name)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Check validates a CUE value against a named schema and returns the
// problems found.
func (sr *SchemaRegistry) Check(name string, val cue.Value) []ValidationError {
	schema, ok := sr.GetSchema(name)
	if !ok {
		return []ValidationError{{Message: fmt.Sprintf("schema %s not found", name)}}
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return (&CUEParser{ctx: sr.ctx}).convertCUEErrors(err)
	}
	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// Built-in schema definitions. Nested action sequences are left open
// here; the model validator walks the full tree after decoding.

const builtinActionSchema = `
#Schema: {
	// name labels the action in traces and logs
	name: string & !=""

	// variant selects the payload
	variant: "navigation" | "interaction" | "utility" | "conditional" | "loop" | "template" | "error_handling"

	navigation?: {
		url: string & !=""
		wait_for?: {
			condition: "element_exists" | "element_visible" | "url_contains"
			target:    string & !=""
			timeout?:  string
		}
	}

	interaction?: {
		selector:        string & !=""
		kind:            "click" | "type" | "select" | "hover"
		value?:          string
		credential_ref?: string
	}

	utility?: {
		kind:        "wait" | "screenshot" | "log" | "evaluate" | "script"
		duration?:   string
		message?:    string
		script?:     string
		result_key?: string
	}

	conditional?: {...}
	loop?: {...}
	template?: {
		workflow_ref: string & !=""
	}
	error_handling?: {...}
}
`

const builtinWorkflowSchema = `
#Schema: {
	// id is assigned by the store, optional in definitions
	id?: string

	// name is the human-readable workflow name
	name: string & !=""

	version?: int & >=0

	// actions is the ordered top-level sequence
	actions: [...{
		name:    string & !=""
		variant: string & !=""
		...
	}] & [_, ...]

	labels?: [string]: string
}
`
