package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"knowtree/internal/knowledge"
	"knowtree/internal/logging"
	"knowtree/internal/structured"
	"knowtree/internal/tools"
	"knowtree/internal/types"
)

const visualSystemPrompt = `You are a visual designer planning scenes for an animated
mathematics explanation. For the concept you are given, call the
design_visual_plan tool describing what appears on screen, the colors
and what they encode, how elements animate, scene transitions, camera
work, duration in seconds, and spatial layout. When a parent scene
plan is provided, keep its visual language: reuse its colors and
layout conventions so the animation feels continuous.`

// VisualDesigner produces scene plans for individual concepts. The
// parent node's plan is passed down so child scenes stay visually
// coherent with the scene that introduces them.
type VisualDesigner struct {
	client   types.OracleClient
	registry *tools.Registry

	mu    sync.Mutex
	cache map[string]map[string]any
}

// NewVisualDesigner creates a visual designer.
func NewVisualDesigner(client types.OracleClient, registry *tools.Registry) *VisualDesigner {
	return &VisualDesigner{
		client:   client,
		registry: registry,
		cache:    make(map[string]map[string]any),
	}
}

// Design fills node.VisualSpec, given the parent's spec (nil at the root).
func (v *VisualDesigner) Design(ctx context.Context, node *knowledge.Node, parentSpec map[string]any) error {
	if spec := v.cached(node.Concept); spec != nil {
		logging.Enrich("Visual %q: cache hit", node.Concept)
		v.apply(node, spec)
		return nil
	}

	prompt := fmt.Sprintf("Design the visual plan for %q.", node.Concept)
	if len(node.Equations) > 0 {
		prompt += fmt.Sprintf("\nIts key equations: %s", strings.Join(node.Equations, " ; "))
	}
	if len(parentSpec) > 0 {
		parentJSON, err := json.Marshal(parentSpec)
		if err == nil {
			prompt += fmt.Sprintf("\nParent scene plan for continuity: %s", parentJSON)
		}
	}

	resp, err := v.client.Converse(ctx, types.ConverseRequest{
		System:   visualSystemPrompt,
		Messages: []types.Message{{Role: "user", Content: prompt}},
		Tools:    v.registry.Definitions(tools.VisualToolName),
		Mode:     types.ModeSwarm,
	})
	if err != nil {
		return fmt.Errorf("visual design for %q: %w", node.Concept, err)
	}

	spec, err := v.extract(node.Concept, resp)
	if err != nil {
		return err
	}

	v.store(node.Concept, spec)
	v.apply(node, spec)
	return nil
}

func (v *VisualDesigner) extract(concept string, resp *types.OracleResponse) (map[string]any, error) {
	for _, call := range resp.ToolCalls {
		if call.Name != tools.VisualToolName || call.Input == nil {
			continue
		}
		spec, err := visualSpecFromArgs(call.Input)
		if err != nil {
			return nil, fmt.Errorf("visual payload for %q: %w", concept, err)
		}
		return spec, nil
	}

	obj, strategy, err := structured.RecoverObject(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("visual design for %q: no tool call and %w", concept, err)
	}
	logging.Enrich("Visual %q: recovered payload from text via %s", concept, strategy)
	spec, err := visualSpecFromArgs(obj)
	if err != nil {
		return nil, fmt.Errorf("visual payload for %q: %w", concept, err)
	}
	return spec, nil
}

// apply installs the plan without discarding fill-if-missing fields a
// previous stage may already have set.
func (v *VisualDesigner) apply(node *knowledge.Node, spec map[string]any) {
	if node.VisualSpec == nil {
		node.VisualSpec = make(map[string]any, len(spec))
	}
	for k, val := range spec {
		node.VisualSpec[k] = val
	}
}

// Cache keys are the exact concept name, matching the explorer cache
// and the composer's visited set.
func (v *VisualDesigner) cached(concept string) map[string]any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cache[concept]
}

func (v *VisualDesigner) store(concept string, spec map[string]any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache[concept] = spec
}
