// Package enrich fills explored knowledge trees with mathematical
// content and visual plans. The math stage runs deepest level first so
// every concept is treated before anything that builds on it; the
// visual stage runs shallowest first so each scene can extend its
// parent's visual language.
package enrich

import (
	"fmt"
)

// MathContent is the payload of the mathematical content tool.
type MathContent struct {
	Equations      []string          `json:"equations"`
	Definitions    map[string]string `json:"definitions"`
	Interpretation string            `json:"interpretation"`
	Examples       []string          `json:"examples,omitempty"`
	TypicalValues  map[string]any    `json:"typical_values,omitempty"`
}

// mathContentFromArgs decodes a tool-call argument map into MathContent.
func mathContentFromArgs(args map[string]any) (*MathContent, error) {
	mc := &MathContent{
		Definitions:   map[string]string{},
		TypicalValues: map[string]any{},
	}

	eqs, ok := args["equations"].([]any)
	if !ok {
		return nil, fmt.Errorf("equations missing or not a list")
	}
	for _, e := range eqs {
		if s, ok := e.(string); ok && s != "" {
			mc.Equations = append(mc.Equations, s)
		}
	}
	if len(mc.Equations) == 0 {
		return nil, fmt.Errorf("no usable equations in payload")
	}

	defs, ok := args["definitions"].(map[string]any)
	if !ok || len(defs) == 0 {
		return nil, fmt.Errorf("definitions missing or not an object")
	}
	for sym, meaning := range defs {
		if s, ok := meaning.(string); ok {
			mc.Definitions[sym] = s
		}
	}

	mc.Interpretation, _ = args["interpretation"].(string)

	if exs, ok := args["examples"].([]any); ok {
		for _, e := range exs {
			if s, ok := e.(string); ok {
				mc.Examples = append(mc.Examples, s)
			}
		}
	}
	if tv, ok := args["typical_values"].(map[string]any); ok {
		mc.TypicalValues = tv
	}

	return mc, nil
}

// visualSpecFromArgs normalizes a visual tool-call argument map into a
// visual spec. Only known fields are carried over.
func visualSpecFromArgs(args map[string]any) (map[string]any, error) {
	desc, _ := args["visual_description"].(string)
	anim, _ := args["animation_description"].(string)
	if desc == "" || anim == "" {
		return nil, fmt.Errorf("visual payload missing description or animation")
	}

	spec := map[string]any{
		"visual_description":    desc,
		"animation_description": anim,
	}
	for _, key := range []string{"color_scheme", "transitions", "camera_movement", "layout"} {
		if v, ok := args[key].(string); ok && v != "" {
			spec[key] = v
		}
	}
	switch d := args["duration"].(type) {
	case float64:
		spec["duration"] = d
	case int:
		spec["duration"] = float64(d)
	}
	return spec, nil
}
