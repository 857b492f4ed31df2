package enrich

import (
	"context"
	"fmt"
	"sync"

	"knowtree/internal/knowledge"
	"knowtree/internal/logging"
	"knowtree/internal/structured"
	"knowtree/internal/tools"
	"knowtree/internal/types"
)

const mathSystemPrompt = `You are a mathematician preparing rigorous material for an
animated explanation. For the concept you are given, call the
write_mathematical_content tool with its key equations in LaTeX,
a definition of every symbol, a physical interpretation, worked
examples, and typical parameter values.`

// MathEnricher produces mathematical content for individual concepts,
// caching results per concept name so repeated concepts cost one call.
type MathEnricher struct {
	client   types.OracleClient
	registry *tools.Registry

	mu    sync.Mutex
	cache map[string]*MathContent
}

// NewMathEnricher creates a math enricher.
func NewMathEnricher(client types.OracleClient, registry *tools.Registry) *MathEnricher {
	return &MathEnricher{
		client:   client,
		registry: registry,
		cache:    make(map[string]*MathContent),
	}
}

// Enrich fills node.Equations and node.Definitions, returning the full
// payload so the visual stage can reuse interpretation and examples.
func (m *MathEnricher) Enrich(ctx context.Context, node *knowledge.Node) (*MathContent, error) {
	if mc := m.cached(node.Concept); mc != nil {
		logging.Enrich("Math %q: cache hit", node.Concept)
		m.apply(node, mc)
		return mc, nil
	}

	resp, err := m.client.Converse(ctx, types.ConverseRequest{
		System: mathSystemPrompt,
		Messages: []types.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Write the mathematical content for %q.", node.Concept),
		}},
		Tools: m.registry.Definitions(tools.MathToolName),
		Mode:  types.ModeTool,
	})
	if err != nil {
		return nil, fmt.Errorf("math enrichment for %q: %w", node.Concept, err)
	}

	mc, err := m.extract(node.Concept, resp)
	if err != nil {
		return nil, err
	}

	m.store(node.Concept, mc)
	m.apply(node, mc)
	return mc, nil
}

// extract pulls the payload off the first tool call, falling back to
// recovering a JSON object from plain text when the oracle answered in
// prose instead of calling the tool.
func (m *MathEnricher) extract(concept string, resp *types.OracleResponse) (*MathContent, error) {
	for _, call := range resp.ToolCalls {
		if call.Name != tools.MathToolName || call.Input == nil {
			continue
		}
		mc, err := mathContentFromArgs(call.Input)
		if err != nil {
			return nil, fmt.Errorf("math payload for %q: %w", concept, err)
		}
		return mc, nil
	}

	obj, strategy, err := structured.RecoverObject(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("math enrichment for %q: no tool call and %w", concept, err)
	}
	logging.Enrich("Math %q: recovered payload from text via %s", concept, strategy)
	mc, err := mathContentFromArgs(obj)
	if err != nil {
		return nil, fmt.Errorf("math payload for %q: %w", concept, err)
	}
	return mc, nil
}

func (m *MathEnricher) apply(node *knowledge.Node, mc *MathContent) {
	node.Equations = mc.Equations
	node.Definitions = mc.Definitions
}

// ApplyVisualDefaults copies the textual parts of the math payload
// into the node's visual spec without overwriting designer output.
func ApplyVisualDefaults(node *knowledge.Node, mc *MathContent) {
	if mc == nil {
		return
	}
	if mc.Interpretation != "" {
		node.SetVisualDefault("interpretation", mc.Interpretation)
	}
	if len(mc.Examples) > 0 {
		node.SetVisualDefault("examples", mc.Examples)
	}
	if len(mc.TypicalValues) > 0 {
		node.SetVisualDefault("typical_values", mc.TypicalValues)
	}
}

// Cache keys are the exact concept name. Concepts differing only in
// case are distinct nodes and get their own oracle calls.
func (m *MathEnricher) cached(concept string) *MathContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache[concept]
}

func (m *MathEnricher) store(concept string, mc *MathContent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[concept] = mc
}
