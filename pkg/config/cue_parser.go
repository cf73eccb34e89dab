package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/webpilot/webpilot/pkg/workflow"
)

// CUEParser parses and validates CUE workflow definitions. A definition
// file declares a top-level "workflow" struct conforming to the
// built-in #Workflow schema.
type CUEParser struct {
	ctx            *cue.Context
	schemaRegistry *SchemaRegistry
}

// NewCUEParser creates a new CUE parser.
func NewCUEParser() *CUEParser {
	ctx := cuecontext.New()
	return &CUEParser{
		ctx:            ctx,
		schemaRegistry: NewSchemaRegistry(ctx),
	}
}

// ParseWorkflow parses a single CUE workflow definition file.
func (cp *CUEParser) ParseWorkflow(path string) (*workflow.Workflow, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow %s: %w", path, err)
	}

	wf, errs := cp.parse(string(content), path)
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid workflow %s: %s", path, joinErrors(errs))
	}
	return wf, nil
}

// ParseInline parses inline CUE content and returns the workflow plus
// any validation errors found. A non-empty error slice means the
// workflow is nil.
func (cp *CUEParser) ParseInline(content string) (*workflow.Workflow, []ValidationError) {
	return cp.parse(content, "inline")
}

func (cp *CUEParser) parse(content, filename string) (*workflow.Workflow, []ValidationError) {
	val := cp.ctx.CompileString(content, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, cp.convertCUEErrors(err)
	}

	wfVal := val.LookupPath(cue.ParsePath("workflow"))
	if !wfVal.Exists() {
		return nil, []ValidationError{{
			File:    filename,
			Path:    "workflow",
			Message: "definition must declare a top-level workflow struct",
		}}
	}

	if errs := cp.schemaRegistry.Check("workflow", wfVal); len(errs) > 0 {
		return nil, errs
	}

	wf, err := decodeWorkflow(wfVal)
	if err != nil {
		return nil, []ValidationError{{
			File:    filename,
			Path:    "workflow",
			Message: err.Error(),
		}}
	}

	if err := wf.Validate(); err != nil {
		return nil, []ValidationError{{
			File:    filename,
			Path:    "workflow",
			Message: err.Error(),
		}}
	}
	return wf, nil
}

// decodeWorkflow converts a CUE value into the workflow model. The
// value is exported to JSON and decoded with the YAML decoder, which
// understands duration strings like "5s".
func decodeWorkflow(val cue.Value) (*workflow.Workflow, error) {
	data, err := val.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export workflow: %w", err)
	}

	var wf workflow.Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to decode workflow: %w", err)
	}
	return &wf, nil
}

// ExtractValue extracts a specific path from a CUE definition.
func (cp *CUEParser) ExtractValue(val cue.Value, path string) (any, error) {
	v := val.LookupPath(cue.ParsePath(path))
	if !v.Exists() {
		return nil, fmt.Errorf("path %s not found", path)
	}

	var result any
	if err := v.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode value at %s: %w", path, err)
	}
	return result, nil
}

// LoadFromDirectory lists all CUE files under a directory.
func (cp *CUEParser) LoadFromDirectory(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".cue") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	return files, nil
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func (cp *CUEParser) convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:    file,
			Line:    line,
			Column:  column,
			Message: errors.Details(e, nil),
		})
	}

	return validationErrors
}

func joinErrors(errs []ValidationError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}
