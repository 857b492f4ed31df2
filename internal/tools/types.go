// Package tools provides the tool registry and the concurrent batch
// executor used by the enrichment stages.
//
// Tools here are structured-output channels, not side-effecting
// actions: the oracle "calls" a tool to hand back a typed payload
// (mathematical content, a visual plan, a narrative), and Execute
// validates and echoes the payload for the conversation transcript.
package tools

import (
	"context"

	"knowtree/internal/types"
)

// ToolCategory classifies tools by the pipeline stage they serve.
type ToolCategory string

const (
	// CategoryMath covers mathematical content capture.
	CategoryMath ToolCategory = "/math"

	// CategoryVisual covers visual planning.
	CategoryVisual ToolCategory = "/visual"

	// CategoryNarrative covers narrative composition.
	CategoryNarrative ToolCategory = "/narrative"

	// CategoryGeneral is for tools usable by any stage.
	CategoryGeneral ToolCategory = "/general"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	// Items describes array element schema (required for type="array")
	Items *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// ToolSchema defines the JSON schema for tool arguments.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
// Returns the result string and any error.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool defines a named, schema-described operation the oracle can invoke.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string

	// Description explains what the tool does. Sent to the oracle.
	Description string

	// Category classifies the tool by pipeline stage.
	Category ToolCategory

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// Definition converts the tool into the wire-level schema form the
// oracle gateway sends to providers.
func (t *Tool) Definition() types.ToolDefinition {
	props := make(map[string]any, len(t.Schema.Properties))
	for name, p := range t.Schema.Properties {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Items != nil {
			prop["items"] = map[string]any{"type": p.Items.Type}
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[name] = prop
	}

	required := t.Schema.Required
	if required == nil {
		required = []string{}
	}

	return types.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}
