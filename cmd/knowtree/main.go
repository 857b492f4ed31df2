package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"knowtree/internal/compose"
	"knowtree/internal/config"
	"knowtree/internal/explorer"
	"knowtree/internal/logging"
	"knowtree/internal/oracle"
	"knowtree/internal/pipeline"
	"knowtree/internal/tools"
)

const version = "0.3.0"

var (
	// Global flags
	verbose    bool
	apiKey     string
	workspace  string
	configPath string
	outputDir  string
	maxDepth   int
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "knowtree",
	Short: "knowtree - reverse knowledge tree animation prompter",
	Long: `knowtree turns a single question ("explain special relativity")
into a complete animation prompt by working backwards: it recursively
asks what a learner must understand first, builds the prerequisite
tree down to foundational concepts, enriches every node with rigorous
mathematics and a visual plan, then composes one continuous narrative
from the foundations up to the target.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if workspace == "" {
			workspace, _ = os.Getwd()
		}
		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("File logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// exploreCmd builds and prints the prerequisite tree only.
var exploreCmd = &cobra.Command{
	Use:   "explore [concept]",
	Short: "Build the prerequisite tree for a concept",
	Long: `Recursively decomposes a concept into the things a learner must
understand first, stopping at foundational concepts or the depth
bound, and prints the resulting tree.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExplore,
}

// animateCmd runs the full pipeline.
var animateCmd = &cobra.Command{
	Use:   "animate [request]",
	Short: "Run the full pipeline and write the animation prompt",
	Long: `Analyzes a free-form request, explores the prerequisite tree,
enriches every concept with mathematical content and a visual plan,
composes the narrative, and writes the artifacts to the output
directory.

Example:
  knowtree animate "explain the fourier transform" -o out/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnimate,
}

// toolsCmd lists the registered enrichment tools.
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the enrichment tool schemas",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := tools.NewRegistry()
		tools.RegisterBuiltins(registry)
		for _, name := range registry.Names() {
			tool := registry.Get(name)
			fmt.Printf("%-28s %s\n", tool.Name, tool.Description)
			fmt.Printf("%-28s required: %s\n", "", strings.Join(tool.Schema.Required, ", "))
		}
		return nil
	},
}

// versionCmd prints the version.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the knowtree version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("knowtree %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Oracle API key (or set MOONSHOT_API_KEY / GEMINI_API_KEY)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <workspace>/.knowtree/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Minute, "Operation timeout")

	exploreCmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Override recursion depth bound")
	animateCmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Override recursion depth bound")
	animateCmd.Flags().StringVarP(&outputDir, "output", "o", "output", "Directory for run artifacts")

	rootCmd.AddCommand(exploreCmd)
	rootCmd.AddCommand(animateCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(workspace, ".knowtree", "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		cfg.Oracle.APIKey = apiKey
	}
	if maxDepth > 0 {
		cfg.Explorer.MaxDepth = maxDepth
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runContext returns a timeout context that also cancels on SIGINT/SIGTERM.
func runContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func runExplore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := runContext()
	defer cancel()

	client, err := oracle.NewClient(ctx, cfg)
	if err != nil {
		return err
	}

	concept := strings.Join(args, " ")
	logger.Info("Exploring prerequisites", zap.String("concept", concept))

	exp := explorer.New(client, explorer.Config{
		MaxDepth: cfg.Explorer.MaxDepth,
		Parallel: cfg.Explorer.Parallel,
		CacheTTL: cfg.GetCacheTTL(),
	})
	root, err := exp.Explore(ctx, concept)
	if err != nil {
		return err
	}

	root.PrintTree(os.Stdout)
	fmt.Printf("\n%d concepts, max depth %d, %d oracle calls\n",
		root.CountNodes(), root.MaxDepth(), exp.APICalls())

	order := compose.LearningOrder(root)
	fmt.Println("\nLearning order:")
	for i, n := range order {
		fmt.Printf("  %2d. %s\n", i+1, n.Concept)
	}
	return nil
}

func runAnimate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := runContext()
	defer cancel()

	client, err := oracle.NewClient(ctx, cfg)
	if err != nil {
		return err
	}

	input := strings.Join(args, " ")
	logger.Info("Running pipeline", zap.String("input", input))

	result, err := pipeline.New(client, cfg).Run(ctx, input)
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		logger.Warn(w)
	}
	for _, e := range result.Errors {
		logger.Warn("Node enrichment failed", zap.String("error", e))
	}

	if err := result.Save(outputDir); err != nil {
		return err
	}

	fmt.Printf("Target: %s\n", result.TargetConcept)
	fmt.Printf("Tree: %d concepts, max depth %d\n", result.NodeCount, result.MaxDepth)
	if result.Narrative != nil {
		fmt.Printf("Narrative: %d scenes, %.0fs\n",
			result.Narrative.SceneCount, result.Narrative.TotalDuration)
	}
	fmt.Printf("Artifacts written to %s\n", outputDir)
	if len(result.Errors) > 0 {
		fmt.Printf("Completed with %d node errors (see logs)\n", len(result.Errors))
	}
	return nil
}
