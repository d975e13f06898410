// Package tools defines the named, schema-validated operations exposed
// through the gateway, and the registries that hold them.
package tools

import (
	"context"
	"encoding/json"
)

// Handler executes a tool call. Arguments arrive as raw JSON that has
// already passed schema validation; handlers decode into their own
// typed parameter structs.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Definition describes one tool. Immutable once registered; the
// gateway references registered definitions, it never copies them.
type Definition struct {
	// Name is the globally unique, dot-namespaced tool name, e.g.
	// "episodes.list". The prefix selects the backing collection.
	Name string `json:"name"`

	// Description is a human-readable summary of what the tool does.
	Description string `json:"description"`

	// InputSchema is a JSON-Schema object describing the arguments.
	InputSchema map[string]any `json:"input_schema"`

	// Handler executes the call. Never nil for a registered tool.
	Handler Handler `json:"-"`

	// UsageGuidelines gives callers extra guidance. Exposed in
	// tools/list only for trusted callers.
	UsageGuidelines string `json:"usage_guidelines,omitempty"`

	// AllowedPhases restricts which generation phases may call this
	// tool. Empty means any phase.
	AllowedPhases []string `json:"allowed_phases,omitempty"`

	compiled *compiledSchema
}

// Summary is the tools/list representation of a Definition.
type Summary struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	InputSchema     map[string]any `json:"input_schema"`
	UsageGuidelines string         `json:"usage_guidelines,omitempty"`
	AllowedPhases   []string       `json:"allowed_phases,omitempty"`
}

// Summarize renders the definition for tools/list. Guidelines and
// phase restrictions are included only for trusted callers.
func (d *Definition) Summarize(trusted bool) Summary {
	s := Summary{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: d.InputSchema,
	}
	if trusted {
		s.UsageGuidelines = d.UsageGuidelines
		s.AllowedPhases = d.AllowedPhases
	}
	return s
}

// Validate checks args against the tool's input schema. It returns
// every violated constraint, not just the first. Only registered
// definitions carry a compiled schema.
func (d *Definition) Validate(args json.RawMessage) []Violation {
	if d.compiled == nil {
		return []Violation{{Field: "(root)", Message: "tool " + d.Name + " is not registered"}}
	}
	return d.compiled.validate(args)
}
