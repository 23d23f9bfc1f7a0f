package llms

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// Tool is a capability the inference service may request during a turn.
type Tool struct {
	Name        string
	Description string
	// Parameters is the JSON schema of the tool's argument payload.
	Parameters *jsonschema.Schema

	execute func(arguments string) (string, error)
}

// NewTool creates a tool whose argument schema is reflected from the
// handler's parameter type.
func NewTool[T any](name, description string, handler func(T) (string, error)) Tool {
	reflector := jsonschema.Reflector{DoNotReference: true}

	var parameters T
	var schema *jsonschema.Schema
	if t := reflect.TypeOf(parameters); t != nil && t.Kind() == reflect.Ptr {
		schema = reflector.ReflectFromType(t.Elem())
	} else {
		schema = reflector.Reflect(parameters)
	}

	return Tool{
		Name:        name,
		Description: description,
		Parameters:  schema,
		execute: func(arguments string) (string, error) {
			var decoded T
			if arguments != "" {
				if err := json.Unmarshal([]byte(arguments), &decoded); err != nil {
					return "", fmt.Errorf("failed to decode arguments for tool %q: %w", name, err)
				}
			}
			return handler(decoded)
		},
	}
}

// Execute runs the tool against a raw JSON argument payload.
func (t Tool) Execute(arguments string) (string, error) {
	if t.execute == nil {
		return "", fmt.Errorf("tool %q has no handler", t.Name)
	}
	return t.execute(arguments)
}

// ToolOutcome is the result recorded for one tool call. ReportedError marks
// an outcome whose content is an in-band error description (e.g. an unknown
// tool name) rather than a successful result; either way the turn continues.
type ToolOutcome struct {
	Content       string
	ReportedError bool
}
