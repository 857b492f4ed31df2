// Package compose turns an enriched knowledge tree into one continuous
// narrative animation prompt, presenting every concept exactly once
// with its prerequisites strictly before it.
package compose

import (
	"context"
	"fmt"
	"strings"

	"knowtree/internal/knowledge"
	"knowtree/internal/logging"
	"knowtree/internal/structured"
	"knowtree/internal/tools"
	"knowtree/internal/types"
)

// MaxContextChars caps the concept context handed to the oracle. The
// excess is cut and marked rather than silently dropped.
const MaxContextChars = 18000

// TruncationMarker is appended where context was cut.
const TruncationMarker = "\n...[context truncated]..."

// DefaultSceneDuration is assumed for nodes whose visual plan carries
// no duration, in seconds.
const DefaultSceneDuration = 15.0

const composeSystemPrompt = `You are composing the final prompt for a long-form animated
mathematics explanation. You are given every concept of a knowledge
tree in learning order, foundations first, with its equations,
definitions and scene plans. Call the compose_narrative tool with the
concept order, a single verbose prompt that narrates one continuous
journey through all of them, the total duration, and the scene count.`

// Narrative is the composed output.
type Narrative struct {
	TargetConcept string   `json:"target_concept"`
	Text          string   `json:"verbose_prompt"`
	ConceptOrder  []string `json:"concept_order"`
	TotalDuration float64  `json:"total_duration"`
	SceneCount    int      `json:"scene_count"`
}

// Composer builds narratives from enriched trees.
type Composer struct {
	client   types.OracleClient
	registry *tools.Registry
}

// New creates a composer.
func New(client types.OracleClient, registry *tools.Registry) *Composer {
	return &Composer{client: client, registry: registry}
}

// Compose produces the narrative for the tree and stores it on the
// root node. Oracle payload fields that are missing or unusable fall
// back to values derived from the tree itself.
func (c *Composer) Compose(ctx context.Context, root *knowledge.Node) (*Narrative, error) {
	ordered := LearningOrder(root)
	contextText := buildContext(ordered)

	logging.Compose("Composing %q: %d unique concepts, %d context chars",
		root.Concept, len(ordered), len(contextText))

	resp, err := c.client.Converse(ctx, types.ConverseRequest{
		System: composeSystemPrompt,
		Messages: []types.Message{{
			Role: "user",
			Content: fmt.Sprintf("Target concept: %q\n\n%s\n\nCompose the narrative.",
				root.Concept, contextText),
		}},
		Tools: c.registry.Definitions(tools.NarrativeToolName),
		Mode:  types.ModeReasoning,
	})
	if err != nil {
		return nil, fmt.Errorf("narrative composition for %q: %w", root.Concept, err)
	}

	narrative := c.extract(resp, root, ordered)
	root.Narrative = narrative.Text

	logging.Compose("Composed %q: %d scenes, %.0fs, %d chars",
		root.Concept, narrative.SceneCount, narrative.TotalDuration, len(narrative.Text))
	return narrative, nil
}

// extract reads the narrative payload off the tool call, then fills
// every hole from the tree: order from the traversal, duration from
// summed scene durations, scene count from the node count, and the
// prompt text from the plain reply.
func (c *Composer) extract(resp *types.OracleResponse, root *knowledge.Node, ordered []*knowledge.Node) *Narrative {
	narrative := &Narrative{TargetConcept: root.Concept}

	var payload map[string]any
	for _, call := range resp.ToolCalls {
		if call.Name == tools.NarrativeToolName && call.Input != nil {
			payload = call.Input
			break
		}
	}
	if payload == nil && resp.Text != "" {
		if obj, strategy, err := structured.RecoverObject(resp.Text); err == nil {
			logging.Compose("Recovered narrative payload from text via %s", strategy)
			payload = obj
		}
	}

	if payload != nil {
		narrative.Text, _ = payload["verbose_prompt"].(string)
		if order, ok := payload["concept_order"].([]any); ok {
			for _, v := range order {
				if s, ok := v.(string); ok {
					narrative.ConceptOrder = append(narrative.ConceptOrder, s)
				}
			}
		}
		if d, ok := payload["total_duration"].(float64); ok {
			narrative.TotalDuration = d
		}
		if sc, ok := payload["scene_count"].(float64); ok {
			narrative.SceneCount = int(sc)
		}
	}

	if narrative.Text == "" {
		narrative.Text = resp.Text
	}
	if len(narrative.ConceptOrder) == 0 {
		for _, n := range ordered {
			narrative.ConceptOrder = append(narrative.ConceptOrder, n.Concept)
		}
	}
	if narrative.TotalDuration <= 0 {
		narrative.TotalDuration = summedDuration(ordered)
	}
	if narrative.SceneCount <= 0 {
		narrative.SceneCount = len(ordered)
	}
	return narrative
}

// LearningOrder returns the tree's nodes in DFS post-order with a
// visited set keyed by concept name: prerequisites strictly before
// dependents, each concept exactly once even when it appears in
// several branches.
func LearningOrder(root *knowledge.Node) []*knowledge.Node {
	visited := make(map[string]bool)
	var ordered []*knowledge.Node

	var visit func(n *knowledge.Node)
	visit = func(n *knowledge.Node) {
		if visited[n.Concept] {
			return
		}
		visited[n.Concept] = true
		for _, p := range n.Prerequisites {
			visit(p)
		}
		ordered = append(ordered, n)
	}
	visit(root)
	return ordered
}

// buildContext renders one block per concept, capped at MaxContextChars.
func buildContext(ordered []*knowledge.Node) string {
	var sb strings.Builder
	for i, n := range ordered {
		block := formatBlock(i+1, n)
		if sb.Len()+len(block) > MaxContextChars {
			sb.WriteString(TruncationMarker)
			break
		}
		sb.WriteString(block)
	}
	return sb.String()
}

func formatBlock(position int, n *knowledge.Node) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### %d. %s", position, n.Concept)
	if n.IsFoundation {
		sb.WriteString(" [foundation]")
	}
	sb.WriteString("\n")

	if len(n.Equations) > 0 {
		fmt.Fprintf(&sb, "Equations: %s\n", strings.Join(n.Equations, " ; "))
	}
	for sym, meaning := range n.Definitions {
		fmt.Fprintf(&sb, "  %s: %s\n", sym, meaning)
	}
	if desc, ok := n.VisualSpec["visual_description"].(string); ok {
		fmt.Fprintf(&sb, "Scene: %s\n", desc)
	}
	if anim, ok := n.VisualSpec["animation_description"].(string); ok {
		fmt.Fprintf(&sb, "Animation: %s\n", anim)
	}
	if d, ok := n.VisualSpec["duration"].(float64); ok {
		fmt.Fprintf(&sb, "Duration: %.0fs\n", d)
	}
	sb.WriteString("\n")
	return sb.String()
}

// summedDuration totals per-node scene durations, defaulting nodes
// without one.
func summedDuration(ordered []*knowledge.Node) float64 {
	total := 0.0
	for _, n := range ordered {
		if d, ok := n.VisualSpec["duration"].(float64); ok && d > 0 {
			total += d
		} else {
			total += DefaultSceneDuration
		}
	}
	return total
}
