package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Violation is one failed schema constraint, tied to the field that
// failed it.
type Violation struct {
	// Field is the dotted path of the offending value; "(root)" for
	// violations of the top-level object itself.
	Field string `json:"field"`

	// Message describes the failed constraint.
	Message string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// compiledSchema pairs the declared schema with its compiled form.
type compiledSchema struct {
	schema *jsonschema.Schema
}

// compileSchema compiles the tool's declared input schema once, at
// registration time. An invalid schema is a configuration error.
func compileSchema(name string, raw map[string]any) (*compiledSchema, error) {
	if raw == nil {
		raw = map[string]any{"type": "object"}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("schema for %s is not serializable: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	url := "storyd://tools/" + name
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("schema for %s rejected: %w", name, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema for %s failed to compile: %w", name, err)
	}
	return &compiledSchema{schema: schema}, nil
}

// validate checks args against the schema and flattens the result into
// per-field violations. A nil return means the arguments are valid.
func (c *compiledSchema) validate(args json.RawMessage) []Violation {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	var value any
	if err := json.Unmarshal(args, &value); err != nil {
		return []Violation{{Field: "(root)", Message: "arguments are not valid JSON: " + err.Error()}}
	}

	err := c.schema.Validate(value)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []Violation{{Field: "(root)", Message: err.Error()}}
	}
	return flattenCauses(ve)
}

// flattenCauses walks to the leaf causes so the caller sees every
// violated constraint rather than the root summary.
func flattenCauses(ve *jsonschema.ValidationError) []Violation {
	if len(ve.Causes) == 0 {
		return []Violation{{
			Field:   instanceField(ve.InstanceLocation),
			Message: ve.Message,
		}}
	}
	var violations []Violation
	for _, cause := range ve.Causes {
		violations = append(violations, flattenCauses(cause)...)
	}
	return violations
}

// instanceField converts a JSON pointer like "/references/0/name" to a
// dotted field path.
func instanceField(pointer string) string {
	trimmed := strings.TrimPrefix(pointer, "/")
	if trimmed == "" {
		return "(root)"
	}
	return strings.ReplaceAll(trimmed, "/", ".")
}
