// Package pipeline coordinates the full run: analyze the request,
// explore the prerequisite tree, enrich it, compose the narrative.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"knowtree/internal/compose"
	"knowtree/internal/config"
	"knowtree/internal/enrich"
	"knowtree/internal/explorer"
	"knowtree/internal/knowledge"
	"knowtree/internal/logging"
	"knowtree/internal/tools"
	"knowtree/internal/types"
)

// Result is the complete output of one pipeline run.
type Result struct {
	RunID         string             `json:"run_id"`
	UserInput     string             `json:"user_input"`
	TargetConcept string             `json:"target_concept"`
	Analysis      *Analysis          `json:"analysis,omitempty"`
	Tree          *knowledge.Node    `json:"tree"`
	Narrative     *compose.Narrative `json:"narrative,omitempty"`
	NodeCount     int                `json:"node_count"`
	MaxDepth      int                `json:"max_depth"`
	Timestamp     time.Time          `json:"timestamp"`
	Elapsed       time.Duration      `json:"elapsed_ns"`
	Errors        []string           `json:"errors,omitempty"`
	Warnings      []string           `json:"warnings,omitempty"`
}

// Pipeline wires the stages together over one oracle client.
type Pipeline struct {
	client   types.OracleClient
	cfg      *config.Config
	registry *tools.Registry
	explorer *explorer.Explorer
	enricher *enrich.Orchestrator
	composer *compose.Composer
}

// New builds a pipeline from configuration.
func New(client types.OracleClient, cfg *config.Config) *Pipeline {
	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry)

	return &Pipeline{
		client:   client,
		cfg:      cfg,
		registry: registry,
		explorer: explorer.New(client, explorer.Config{
			MaxDepth: cfg.Explorer.MaxDepth,
			Parallel: cfg.Explorer.Parallel,
			CacheTTL: cfg.GetCacheTTL(),
		}),
		enricher: enrich.NewOrchestrator(client, registry, enrich.Config{
			MaxConcurrent:  cfg.Enrichment.MaxConcurrent,
			CallTimeout:    cfg.GetCallTimeout(),
			RetryAttempts:  cfg.Enrichment.RetryAttempts,
			RetryBaseDelay: cfg.GetRetryBaseDelay(),
		}),
		composer: compose.New(client, registry),
	}
}

// Run executes the full pipeline. Exploration and composition failures
// abort the run; per-node enrichment failures are collected and the
// run continues with what it has.
func (p *Pipeline) Run(ctx context.Context, input string) (*Result, error) {
	start := time.Now()
	result := &Result{
		RunID:     uuid.NewString(),
		UserInput: input,
		Timestamp: start.UTC(),
	}
	logging.Pipeline("Run %s: %q", result.RunID, input)

	analysis, err := Analyze(ctx, p.client, input)
	if err != nil {
		return nil, err
	}
	result.Analysis = analysis
	result.TargetConcept = analysis.CoreConcept

	tree, err := p.explorer.Explore(ctx, analysis.CoreConcept)
	if err != nil {
		return nil, fmt.Errorf("exploration: %w", err)
	}
	result.Tree = tree
	result.NodeCount = tree.CountNodes()
	result.MaxDepth = tree.MaxDepth()

	enrichment := p.enricher.Run(ctx, tree)
	for _, e := range enrichment.Errors {
		result.Errors = append(result.Errors, e.Error())
	}
	if enrichment.MathEnriched == 0 {
		result.Warnings = append(result.Warnings, "no node received mathematical content")
	}

	narrative, err := p.composer.Compose(ctx, tree)
	if err != nil {
		return nil, fmt.Errorf("composition: %w", err)
	}
	result.Narrative = narrative

	result.Elapsed = time.Since(start)
	logging.Pipeline("Run %s done: %d nodes, %d errors in %v",
		result.RunID, result.NodeCount, len(result.Errors), result.Elapsed)
	return result, nil
}

// Save writes the run's artifacts into dir: the narrative prompt as
// text, the tree as JSON, and the full result as JSON.
func (r *Result) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	base := sanitizeFilename(r.TargetConcept)

	if r.Narrative != nil {
		promptPath := filepath.Join(dir, base+"_prompt.txt")
		if err := os.WriteFile(promptPath, []byte(r.Narrative.Text), 0644); err != nil {
			return fmt.Errorf("failed to write prompt: %w", err)
		}
	}

	if r.Tree != nil {
		treeData, err := r.Tree.ToJSON()
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, base+"_tree.json"), treeData, 0644); err != nil {
			return fmt.Errorf("failed to write tree: %w", err)
		}
	}

	resultData, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, base+"_result.json"), resultData, 0644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	logging.Pipeline("Saved run %s artifacts to %s", r.RunID, dir)
	return nil
}

// sanitizeFilename lowers a concept name into a safe file stem.
func sanitizeFilename(concept string) string {
	concept = strings.ToLower(strings.TrimSpace(concept))
	if concept == "" {
		return "result"
	}
	var sb strings.Builder
	for _, r := range concept {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	out := sb.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	return strings.Trim(out, "_")
}
