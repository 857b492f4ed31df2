// Package explorer builds the knowledge tree by recursively asking the
// oracle what a learner must understand before each concept. Recursion
// stops at foundation concepts or at the configured depth bound.
package explorer

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"knowtree/internal/knowledge"
	"knowtree/internal/logging"
	"knowtree/internal/structured"
	"knowtree/internal/types"
)

const foundationSystemPrompt = `You classify concepts for an educational pipeline.
A concept is FOUNDATIONAL if a high-school graduate could be expected to
already understand it without further explanation.
Answer with exactly "yes" or "no".`

const prerequisiteSystemPrompt = `You decompose concepts for an educational pipeline.
Given a concept, list the 3-5 concepts a learner must understand FIRST,
one step below it in sophistication. Reply with ONLY a JSON array of
concept names, most important first.`

// Config tunes the explorer.
type Config struct {
	// MaxDepth bounds recursion; nodes at this depth are foundation
	// terminals regardless of classification.
	MaxDepth int

	// Parallel explores sibling prerequisites concurrently. The tree
	// shape is identical either way.
	Parallel bool

	// CacheTTL is the prerequisite cache entry lifetime.
	CacheTTL time.Duration
}

// Explorer recursively decomposes a concept into its prerequisite tree.
type Explorer struct {
	client types.OracleClient
	cfg    Config
	cache  *TTLCache

	apiCalls atomic.Int64
}

// New creates an explorer.
func New(client types.OracleClient, cfg Config) *Explorer {
	if cfg.MaxDepth < 1 {
		cfg.MaxDepth = 4
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &Explorer{
		client: client,
		cfg:    cfg,
		cache:  NewTTLCache(cfg.CacheTTL),
	}
}

// APICalls returns the number of oracle round trips made so far.
func (e *Explorer) APICalls() int64 {
	return e.apiCalls.Load()
}

// Explore builds the knowledge tree rooted at concept.
func (e *Explorer) Explore(ctx context.Context, concept string) (*knowledge.Node, error) {
	logging.Explorer("Exploring %q (max_depth=%d parallel=%v)", concept, e.cfg.MaxDepth, e.cfg.Parallel)
	start := time.Now()

	root, err := e.explore(ctx, concept, 0)
	if err != nil {
		return nil, err
	}

	logging.Explorer("Explored %q: %d nodes, depth %d, %d oracle calls in %v",
		concept, root.CountNodes(), root.MaxDepth(), e.APICalls(), time.Since(start))
	return root, nil
}

func (e *Explorer) explore(ctx context.Context, concept string, depth int) (*knowledge.Node, error) {
	node := knowledge.NewNode(concept, depth)

	if depth >= e.cfg.MaxDepth {
		logging.Explorer("%q at depth %d: depth bound reached, marking foundation", concept, depth)
		node.IsFoundation = true
		return node, nil
	}

	foundational, err := e.isFoundation(ctx, concept)
	if err != nil {
		return nil, fmt.Errorf("foundation check for %q: %w", concept, err)
	}
	if foundational {
		node.IsFoundation = true
		return node, nil
	}

	prereqs, err := e.prerequisites(ctx, concept)
	if err != nil {
		return nil, err
	}
	if len(prereqs) == 0 {
		return node, nil
	}

	if e.cfg.Parallel {
		return node, e.exploreChildrenParallel(ctx, node, prereqs, depth+1)
	}
	for _, p := range prereqs {
		child, err := e.explore(ctx, p, depth+1)
		if err != nil {
			return nil, err
		}
		node.AddPrerequisite(child)
	}
	return node, nil
}

// exploreChildrenParallel fans sibling explorations out concurrently.
// Children land in a positional slice so the resulting order matches
// the sequential walk exactly.
func (e *Explorer) exploreChildrenParallel(ctx context.Context, node *knowledge.Node, prereqs []string, depth int) error {
	children := make([]*knowledge.Node, len(prereqs))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range prereqs {
		g.Go(func() error {
			child, err := e.explore(gctx, p, depth)
			if err != nil {
				return err
			}
			children[i] = child
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, child := range children {
		node.AddPrerequisite(child)
	}
	return nil
}

// isFoundation asks the oracle for a binary classification. Any reply
// whose first word starts with "yes" (case-insensitive) is a yes.
func (e *Explorer) isFoundation(ctx context.Context, concept string) (bool, error) {
	e.apiCalls.Add(1)
	resp, err := e.client.Converse(ctx, types.ConverseRequest{
		System: foundationSystemPrompt,
		Messages: []types.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Is %q foundational?", concept),
		}},
		Mode: types.ModeFast,
	})
	if err != nil {
		return false, err
	}

	answer := strings.ToLower(strings.TrimSpace(resp.Text))
	return strings.HasPrefix(answer, "yes"), nil
}

// prerequisites returns the concepts to learn before this one, using
// the TTL cache. A reply no recovery strategy can parse is a hard
// error; guessing at a prerequisite list would corrupt the tree.
func (e *Explorer) prerequisites(ctx context.Context, concept string) ([]string, error) {
	if cached, ok := e.cache.Get(concept); ok {
		logging.Explorer("%q: prerequisite cache hit (%d items)", concept, len(cached))
		return cached, nil
	}

	e.apiCalls.Add(1)
	resp, err := e.client.Converse(ctx, types.ConverseRequest{
		System: prerequisiteSystemPrompt,
		Messages: []types.Message{{
			Role:    "user",
			Content: fmt.Sprintf("What must a learner understand before %q?", concept),
		}},
		Mode: types.ModeFast,
	})
	if err != nil {
		return nil, fmt.Errorf("prerequisite query for %q: %w", concept, err)
	}

	prereqs, strategy, err := structured.RecoverList(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("prerequisites for %q: %w", concept, err)
	}
	logging.Explorer("%q: %d prerequisites via %s", concept, len(prereqs), strategy)

	e.cache.Put(concept, prereqs)
	return prereqs, nil
}
