// Package main provides the uforge CLI entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/orneryd/uforge/pkg/config"
	"github.com/orneryd/uforge/pkg/embed"
	"github.com/orneryd/uforge/pkg/ingest"
	"github.com/orneryd/uforge/pkg/search"
	"github.com/orneryd/uforge/pkg/uforge"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "uforge",
		Short: "uforge - a local knowledge graph for tabletop RPG worldbuilding",
		Long: `uforge is an embedded, single-user knowledge graph engine for tabletop
RPG worldbuilding.

Features:
  • Typed property graph of characters, factions, locations, and artifacts
  • Breadth-first subgraph traversal across typed relationships
  • Exact name lookup and semantic vector search over text chunks
  • Async embedding pipeline backed by a local hash embedder or Ollama
  • JSON schema ingestion for custom object/edge types`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("uforge v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newStatsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new uforge world",
		RunE:  runInit,
	}
	cmd.Flags().String("data-dir", "./data", "Graph data directory")
	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")

	fmt.Printf("Initializing world in %s\n", dataDir)

	if err := os.MkdirAll(filepath.Join(dataDir, "index"), 0755); err != nil {
		return fmt.Errorf("creating index dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dataDir, "cache"), 0755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	g, err := openGraph(dataDir)
	if err != nil {
		return fmt.Errorf("opening graph: %w", err)
	}
	defer g.Close()

	fmt.Println("World initialized.")
	fmt.Printf("  Data dir: %s\n", dataDir)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  uforge ingest schema ./schemas --data-dir", dataDir)
	fmt.Println("  uforge ingest data ./world.jsonl --data-dir", dataDir)
	return nil
}

func newIngestCmd() *cobra.Command {
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load schemas or world data into the graph",
	}

	schemaCmd := &cobra.Command{
		Use:   "schema [directory]",
		Short: "Load a directory of JSON schema files into the imported_schemas schema",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngestSchema,
	}
	schemaCmd.Flags().String("data-dir", "./data", "Graph data directory")
	ingestCmd.AddCommand(schemaCmd)

	dataCmd := &cobra.Command{
		Use:   "data [file]",
		Short: "Ingest a line-delimited JSON graph file of nodes and edges",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngestData,
	}
	dataCmd.Flags().String("data-dir", "./data", "Graph data directory")
	ingestCmd.AddCommand(dataCmd)

	return ingestCmd
}

func runIngestSchema(cmd *cobra.Command, args []string) error {
	directory := args[0]
	dataDir, _ := cmd.Flags().GetString("data-dir")

	g, err := openGraph(dataDir)
	if err != nil {
		return fmt.Errorf("opening graph: %w", err)
	}
	defer g.Close()

	def, stats, err := ingest.LoadSchemasFromDirectory(directory, "imported_schemas", "1.0.0")
	if err != nil {
		return fmt.Errorf("loading schemas: %w", err)
	}

	mgr := g.GetSchemaManager()
	if err := mgr.SaveSchema(def); err != nil {
		return fmt.Errorf("saving schema: %w", err)
	}

	fmt.Printf("Loaded %d object types, %d edge types from %s\n",
		len(def.ObjectTypes), len(def.EdgeTypes), directory)
	if stats.FilesFailed > 0 {
		fmt.Printf("  %d files skipped (malformed)\n", stats.FilesFailed)
	}
	return nil
}

func runIngestData(cmd *cobra.Command, args []string) error {
	path := args[0]
	dataDir, _ := cmd.Flags().GetString("data-dir")

	g, err := openGraph(dataDir)
	if err != nil {
		return fmt.Errorf("opening graph: %w", err)
	}
	defer g.Close()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	ingester := ingest.NewDataIngester(g.Store(), g.GetSchemaManager())
	start := time.Now()
	stats, err := ingester.IngestReader(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", path, err)
	}

	fmt.Printf("Ingested %d objects, %d relationships in %v\n",
		stats.ObjectsCreated, stats.RelationshipsCreated, time.Since(start))
	if stats.ParseErrors > 0 {
		fmt.Printf("  %d lines skipped (parse errors)\n", stats.ParseErrors)
	}

	if err := g.RebuildSearchIndexes(); err != nil {
		return fmt.Errorf("rebuilding name index: %w", err)
	}
	n, err := g.RebuildVectorIndex(context.Background())
	if err != nil {
		return fmt.Errorf("rebuilding vector index: %w", err)
	}
	fmt.Printf("Indexed %d existing chunks for semantic search\n", n)
	return nil
}

func newSearchCmd() *cobra.Command {
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Search the graph by name or by meaning",
	}

	dataDirFlag := func(c *cobra.Command) {
		c.Flags().String("data-dir", "./data", "Graph data directory")
		c.Flags().Int("limit", 10, "Maximum number of results")
	}

	semanticCmd := &cobra.Command{
		Use:   "semantic [query]",
		Short: "Find text chunks by embedding similarity",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearchSemantic,
	}
	dataDirFlag(semanticCmd)
	searchCmd.AddCommand(semanticCmd)

	exactCmd := &cobra.Command{
		Use:   "exact [query]",
		Short: "Find objects by name prefix",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearchExact,
	}
	dataDirFlag(exactCmd)
	searchCmd.AddCommand(exactCmd)

	hybridCmd := &cobra.Command{
		Use:   "hybrid [query]",
		Short: "Run both semantic and exact search",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearchHybrid,
	}
	dataDirFlag(hybridCmd)
	searchCmd.AddCommand(hybridCmd)

	return searchCmd
}

func runSearchSemantic(cmd *cobra.Command, args []string) error {
	query := args[0]
	dataDir, _ := cmd.Flags().GetString("data-dir")
	limit, _ := cmd.Flags().GetInt("limit")

	g, err := openGraph(dataDir)
	if err != nil {
		return fmt.Errorf("opening graph: %w", err)
	}
	defer g.Close()

	hits, err := g.SearchSemantic(context.Background(), query, limit)
	if err != nil {
		return fmt.Errorf("semantic search: %w", err)
	}
	printSemanticHits(hits)
	return nil
}

func runSearchExact(cmd *cobra.Command, args []string) error {
	query := args[0]
	dataDir, _ := cmd.Flags().GetString("data-dir")
	limit, _ := cmd.Flags().GetInt("limit")

	g, err := openGraph(dataDir)
	if err != nil {
		return fmt.Errorf("opening graph: %w", err)
	}
	defer g.Close()

	hits := g.SearchExact(query, limit)
	printExactHits(hits)
	return nil
}

func runSearchHybrid(cmd *cobra.Command, args []string) error {
	query := args[0]
	dataDir, _ := cmd.Flags().GetString("data-dir")
	limit, _ := cmd.Flags().GetInt("limit")

	g, err := openGraph(dataDir)
	if err != nil {
		return fmt.Errorf("opening graph: %w", err)
	}
	defer g.Close()

	result, err := g.SearchHybrid(context.Background(), query, limit, limit)
	if err != nil {
		return fmt.Errorf("hybrid search: %w", err)
	}
	fmt.Println("Semantic:")
	printSemanticHits(result.Semantic)
	fmt.Println("Exact:")
	printExactHits(result.Exact)
	return nil
}

func printSemanticHits(hits []search.SemanticHit) {
	if len(hits) == 0 {
		fmt.Println("  (no matches)")
		return
	}
	for _, h := range hits {
		fmt.Printf("  %.3f  %s  %q\n", h.Similarity, h.ObjectID, h.Preview)
	}
}

func printExactHits(hits []search.ExactHit) {
	if len(hits) == 0 {
		fmt.Println("  (no matches)")
		return
	}
	for _, h := range hits {
		fmt.Printf("  %s  (%s)\n", h.ObjectID, h.ObjectType)
	}
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print graph and schema size statistics",
		RunE:  runStats,
	}
	cmd.Flags().String("data-dir", "./data", "Graph data directory")
	return cmd
}

func runStats(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")

	g, err := openGraph(dataDir)
	if err != nil {
		return fmt.Errorf("opening graph: %w", err)
	}
	defer g.Close()

	stats, err := g.GetStats()
	if err != nil {
		return fmt.Errorf("fetching stats: %w", err)
	}

	fmt.Println("Graph:")
	fmt.Printf("  Objects:    %s\n", humanize.Comma(int64(stats.NodeCount)))
	fmt.Printf("  Edges:      %s\n", humanize.Comma(int64(stats.EdgeCount)))
	fmt.Printf("  Chunks:     %s\n", humanize.Comma(int64(stats.ChunkCount)))
	fmt.Printf("  Tokens:     %s\n", humanize.Comma(int64(stats.TotalTokens)))

	schemaStats, err := g.GetSchemaStats("default")
	if err == nil {
		fmt.Println("Default schema:")
		fmt.Printf("  Object types: %d\n", schemaStats.ObjectTypeCount)
		fmt.Printf("  Edge types:   %d\n", schemaStats.EdgeTypeCount)
	}
	return nil
}

// openGraph opens the graph at dataDir using configuration loaded from the
// environment, with dataDir overriding UFORGE_DATA_DIR for CLI callers that
// pass --data-dir explicitly.
func openGraph(dataDir string) (*uforge.Graph, error) {
	cfg := config.LoadFromEnv()
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.ApplyRuntimeMemory()

	provider, err := resolveProvider(cfg)
	if err != nil {
		return nil, err
	}

	return uforge.Open(cfg.Storage.DataDir, cfg.Storage.EmbeddingCacheDir, uforge.Config{
		EmbeddingProvider: provider,
		HNSW: search.HNSWConfig{
			M:               cfg.Search.HNSWM,
			EfConstruction:  cfg.Search.HNSWEfConstruction,
			EfSearch:        cfg.Search.HNSWEfSearch,
			MaxElements:     cfg.Search.HNSWMaxElements,
			LevelMultiplier: 1.0 / math.Log(float64(cfg.Search.HNSWM)),
		},
		QueueCapacity: cfg.Ingest.QueueCapacity,
	})
}

func resolveProvider(cfg *config.Config) (embed.Provider, error) {
	if cfg.Search.EmbeddingProvider == "hash" {
		return embed.NewHashEmbedder(cfg.Search.EmbeddingDimensions), nil
	}
	return embed.NewProvider(&embed.Config{
		Provider:   cfg.Search.EmbeddingProvider,
		APIURL:     cfg.Search.EmbeddingAPIURL,
		APIPath:    "/api/embeddings",
		Model:      cfg.Search.EmbeddingModel,
		Dimensions: cfg.Search.EmbeddingDimensions,
		Timeout:    30 * time.Second,
	})
}
