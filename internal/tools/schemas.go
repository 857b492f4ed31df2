package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// =============================================================================
// BUILTIN ENRICHMENT TOOLS
//
// These tools exist so the oracle returns structured payloads instead of
// prose. Execute validates required fields and echoes the payload back
// as JSON; the enrichment stages read the payload off the invocation
// itself, the echo only feeds the conversation transcript.
// =============================================================================

// MathToolName is the structured-output channel for the math stage.
const MathToolName = "write_mathematical_content"

// VisualToolName is the structured-output channel for the visual stage.
const VisualToolName = "design_visual_plan"

// NarrativeToolName is the structured-output channel for composition.
const NarrativeToolName = "compose_narrative"

// RegisterBuiltins registers the three enrichment tools.
func RegisterBuiltins(r *Registry) {
	r.MustRegister(NewMathTool())
	r.MustRegister(NewVisualTool())
	r.MustRegister(NewNarrativeTool())
}

// NewMathTool returns the mathematical content capture tool.
func NewMathTool() *Tool {
	t := &Tool{
		Name:        MathToolName,
		Description: "Record the rigorous mathematical treatment of a concept: its key equations in LaTeX, definitions of every symbol, a physical interpretation, worked examples, and typical parameter values.",
		Category:    CategoryMath,
		Schema: ToolSchema{
			Required: []string{"equations", "definitions", "interpretation"},
			Properties: map[string]Property{
				"equations": {
					Type:        "array",
					Description: "Key equations in LaTeX notation",
					Items:       &PropertyItems{Type: "string"},
				},
				"definitions": {
					Type:        "object",
					Description: "Mapping from each symbol to its meaning",
				},
				"interpretation": {
					Type:        "string",
					Description: "Physical or intuitive interpretation of the mathematics",
				},
				"examples": {
					Type:        "array",
					Description: "Concrete worked examples",
					Items:       &PropertyItems{Type: "string"},
				},
				"typical_values": {
					Type:        "object",
					Description: "Typical parameter values with units",
				},
			},
		},
	}
	t.Execute = echoExecute(t)
	return t
}

// NewVisualTool returns the visual planning tool.
func NewVisualTool() *Tool {
	t := &Tool{
		Name:        VisualToolName,
		Description: "Design the visual presentation of a concept for an animated explanation: what is on screen, colors, how elements animate, scene transitions, camera work, timing, and spatial layout.",
		Category:    CategoryVisual,
		Schema: ToolSchema{
			Required: []string{"visual_description", "animation_description", "duration"},
			Properties: map[string]Property{
				"visual_description": {
					Type:        "string",
					Description: "What appears on screen for this concept",
				},
				"color_scheme": {
					Type:        "string",
					Description: "Colors used and what each encodes",
				},
				"animation_description": {
					Type:        "string",
					Description: "How elements move, appear, and transform",
				},
				"transitions": {
					Type:        "string",
					Description: "How this scene connects to the previous one",
				},
				"camera_movement": {
					Type:        "string",
					Description: "Camera zooms, pans, and rotations",
				},
				"duration": {
					Type:        "number",
					Description: "Scene duration in seconds",
				},
				"layout": {
					Type:        "string",
					Description: "Spatial arrangement of on-screen elements",
				},
			},
		},
	}
	t.Execute = echoExecute(t)
	return t
}

// NewNarrativeTool returns the narrative composition tool.
func NewNarrativeTool() *Tool {
	t := &Tool{
		Name:        NarrativeToolName,
		Description: "Compose the final verbose animation prompt that weaves every concept, in prerequisite order, into one continuous narrated journey.",
		Category:    CategoryNarrative,
		Schema: ToolSchema{
			Required: []string{"concept_order", "verbose_prompt"},
			Properties: map[string]Property{
				"concept_order": {
					Type:        "array",
					Description: "Concepts in presentation order, prerequisites first",
					Items:       &PropertyItems{Type: "string"},
				},
				"verbose_prompt": {
					Type:        "string",
					Description: "The complete narrative animation prompt",
				},
				"total_duration": {
					Type:        "number",
					Description: "Total animation duration in seconds",
				},
				"scene_count": {
					Type:        "integer",
					Description: "Number of scenes in the animation",
				},
			},
		},
	}
	t.Execute = echoExecute(t)
	return t
}

// echoExecute validates required fields then returns the arguments as
// compact JSON.
func echoExecute(t *Tool) ExecuteFunc {
	return func(ctx context.Context, args map[string]any) (string, error) {
		if err := validateArgs(t, args); err != nil {
			return "", err
		}
		data, err := json.Marshal(args)
		if err != nil {
			return "", fmt.Errorf("failed to encode %s payload: %w", t.Name, err)
		}
		return string(data), nil
	}
}
