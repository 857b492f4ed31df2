package pipeline

import (
	"context"
	"fmt"
	"strings"

	"knowtree/internal/logging"
	"knowtree/internal/structured"
	"knowtree/internal/types"
)

const analyzeSystemPrompt = `You analyze requests for an educational animation pipeline.
Given a free-form request, reply with ONLY a JSON object:
{"core_concept": "...", "domain": "...", "level": "...", "goal": "..."}
core_concept is the single concept to explain, domain its field,
level the audience level, goal what the viewer should take away.`

// Analysis is the structured reading of a free-form user request.
type Analysis struct {
	CoreConcept string `json:"core_concept"`
	Domain      string `json:"domain,omitempty"`
	Level       string `json:"level,omitempty"`
	Goal        string `json:"goal,omitempty"`
}

// Analyze parses a user request into an Analysis. An unrecoverable
// oracle reply degrades to treating the whole input as the concept.
func Analyze(ctx context.Context, client types.OracleClient, input string) (*Analysis, error) {
	resp, err := client.Converse(ctx, types.ConverseRequest{
		System:   analyzeSystemPrompt,
		Messages: []types.Message{{Role: "user", Content: input}},
		Mode:     types.ModeFast,
	})
	if err != nil {
		return nil, fmt.Errorf("concept analysis: %w", err)
	}

	obj, strategy, err := structured.RecoverObject(resp.Text)
	if err != nil {
		logging.Pipeline("Analysis unrecoverable, using raw input as concept: %v", err)
		return &Analysis{CoreConcept: strings.TrimSpace(input)}, nil
	}

	a := &Analysis{}
	a.CoreConcept, _ = obj["core_concept"].(string)
	a.Domain, _ = obj["domain"].(string)
	a.Level, _ = obj["level"].(string)
	a.Goal, _ = obj["goal"].(string)
	if a.CoreConcept == "" {
		a.CoreConcept = strings.TrimSpace(input)
	}

	logging.Pipeline("Analysis via %s: concept=%q domain=%q level=%q",
		strategy, a.CoreConcept, a.Domain, a.Level)
	return a, nil
}
