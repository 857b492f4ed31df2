package enrich

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"knowtree/internal/knowledge"
	"knowtree/internal/logging"
	"knowtree/internal/tools"
	"knowtree/internal/types"
)

// Config tunes the enrichment orchestrator.
type Config struct {
	// MaxConcurrent bounds concurrent oracle work within one level.
	MaxConcurrent int

	// CallTimeout bounds each per-node oracle call.
	CallTimeout time.Duration

	// RetryAttempts is the per-node attempt budget; the delay between
	// attempts starts at RetryBaseDelay and doubles.
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// Result summarizes one enrichment run. Per-node failures land in
// Errors; a failed node keeps its structural place in the tree.
type Result struct {
	NodesProcessed int
	MathEnriched   int
	VisualDesigned int
	Elapsed        time.Duration
	Errors         []error
}

// Orchestrator runs the two enrichment stages over a knowledge tree:
// math deepest level first, visuals shallowest first. Levels run
// strictly in sequence; nodes within a level run concurrently under a
// weighted semaphore.
type Orchestrator struct {
	math   *MathEnricher
	visual *VisualDesigner
	cfg    Config
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(client types.OracleClient, registry *tools.Registry, cfg Config) *Orchestrator {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 10
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	return &Orchestrator{
		math:   NewMathEnricher(client, registry),
		visual: NewVisualDesigner(client, registry),
		cfg:    cfg,
	}
}

// Run enriches the whole tree in place.
func (o *Orchestrator) Run(ctx context.Context, root *knowledge.Node) *Result {
	start := time.Now()
	result := &Result{}
	var mu sync.Mutex

	groups := root.GroupByDepth()
	depths := make([]int, 0, len(groups))
	for d := range groups {
		depths = append(depths, d)
	}
	sort.Ints(depths)

	mathContent := make(map[*knowledge.Node]*MathContent)
	sem := semaphore.NewWeighted(int64(o.cfg.MaxConcurrent))

	// Math pass: deepest level first, so every prerequisite is
	// treated before the concepts that build on it.
	for i := len(depths) - 1; i >= 0; i-- {
		level := groups[depths[i]]
		logging.Enrich("Math pass: level %d (%d nodes)", depths[i], len(level))

		var wg sync.WaitGroup
		for _, node := range level {
			wg.Add(1)
			go func(node *knowledge.Node) {
				defer wg.Done()
				if err := sem.Acquire(ctx, 1); err != nil {
					mu.Lock()
					result.Errors = append(result.Errors, err)
					mu.Unlock()
					return
				}
				defer sem.Release(1)

				var mc *MathContent
				err := o.withRetry(ctx, func(callCtx context.Context) error {
					var enrichErr error
					mc, enrichErr = o.math.Enrich(callCtx, node)
					return enrichErr
				})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					logging.EnrichError("Math %q: %v", node.Concept, err)
					result.Errors = append(result.Errors, err)
					return
				}
				mathContent[node] = mc
				result.MathEnriched++
			}(node)
		}
		wg.Wait()
	}

	parents := parentMap(root)

	// Visual pass: shallowest level first, so each scene can extend
	// its parent's plan.
	for _, d := range depths {
		level := groups[d]
		logging.Enrich("Visual pass: level %d (%d nodes)", d, len(level))

		var wg sync.WaitGroup
		for _, node := range level {
			wg.Add(1)
			go func(node *knowledge.Node) {
				defer wg.Done()
				if err := sem.Acquire(ctx, 1); err != nil {
					mu.Lock()
					result.Errors = append(result.Errors, err)
					mu.Unlock()
					return
				}
				defer sem.Release(1)

				var parentSpec map[string]any
				if parent := parents[node]; parent != nil {
					parentSpec = parent.VisualSpec
				}

				err := o.withRetry(ctx, func(callCtx context.Context) error {
					return o.visual.Design(callCtx, node, parentSpec)
				})

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					logging.EnrichError("Visual %q: %v", node.Concept, err)
					result.Errors = append(result.Errors, err)
				} else {
					result.VisualDesigned++
				}
				ApplyVisualDefaults(node, mathContent[node])
			}(node)
		}
		wg.Wait()
	}

	result.NodesProcessed = root.CountNodes()
	result.Elapsed = time.Since(start)
	logging.Enrich("Enrichment done: %d nodes, %d math, %d visual, %d errors in %v",
		result.NodesProcessed, result.MathEnriched, result.VisualDesigned,
		len(result.Errors), result.Elapsed)
	return result
}

// withRetry runs one per-node call under the configured timeout,
// retrying failures with a doubling delay. The parent context aborts
// the wait between attempts.
func (o *Orchestrator) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= o.cfg.RetryAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		err = fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == o.cfg.RetryAttempts {
			break
		}
		delay := o.cfg.RetryBaseDelay << (attempt - 1)
		logging.Enrich("Attempt %d/%d failed, retrying in %v: %v",
			attempt, o.cfg.RetryAttempts, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// parentMap indexes each node's parent for the visual pass.
func parentMap(root *knowledge.Node) map[*knowledge.Node]*knowledge.Node {
	parents := make(map[*knowledge.Node]*knowledge.Node)
	var walk func(n *knowledge.Node)
	walk = func(n *knowledge.Node) {
		for _, child := range n.Prerequisites {
			parents[child] = n
			walk(child)
		}
	}
	walk(root)
	return parents
}
