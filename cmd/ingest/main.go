// Command ingest builds and inspects the document index used for research.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/finbrain/finbrain/internal/config"
	"github.com/finbrain/finbrain/internal/database"
	"github.com/finbrain/finbrain/internal/llm"
	"github.com/finbrain/finbrain/internal/retrieval"
	"github.com/finbrain/finbrain/migrations"
)

var (
	documentsDir string
	reset        bool
	topK         int
)

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Build the document index from a directory of text files",
	Long: `Reads every text document under the documents directory, splits it into
chunks, embeds them and stores them in PostgreSQL. An index that already
holds chunks is reused unless --reset is given.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Print the chunks the index returns for a query",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&documentsDir, "dir", "", "documents directory (default RETRIEVAL_DOCUMENTS_PATH)")
	rootCmd.Flags().BoolVar(&reset, "reset", false, "drop the existing index before building")
	searchCmd.Flags().IntVar(&topK, "top-k", 0, "number of chunks to print (default RETRIEVAL_SIMILARITY_TOP_K)")
	rootCmd.AddCommand(searchCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// env holds what both commands need.
type env struct {
	cfg  *config.Config
	pool *pgxpool.Pool
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	setupLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := database.RunMigrations(cfg.DB.DSN(), migrations.FS); err != nil {
		pool.Close()
		return nil, err
	}
	return &env{cfg: cfg, pool: pool}, nil
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.pool.Close()

	dir := documentsDir
	if dir == "" {
		dir = e.cfg.Retrieval.DocumentsPath
	}

	embedder, err := llm.NewGenAIEmbedder(ctx, e.cfg.LLM.GoogleAPIKey, e.cfg.LLM.EmbeddingModel, "RETRIEVAL_DOCUMENT", e.cfg.LLM.EmbeddingDimensions)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	index := retrieval.NewPostgresIndex(e.pool, embedder)
	if reset {
		if err := index.Reset(ctx); err != nil {
			return err
		}
		slog.Info("document index reset")
	}

	n, err := retrieval.NewLoader(index, embedder, e.cfg.Retrieval.ChunkSize, e.cfg.Retrieval.ChunkOverlap).EnsureIndex(ctx, dir)
	if err != nil {
		return fmt.Errorf("building index from %s: %w", dir, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks\n", n)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.pool.Close()

	embedder, err := llm.NewGenAIEmbedder(ctx, e.cfg.LLM.GoogleAPIKey, e.cfg.LLM.EmbeddingModel, "RETRIEVAL_QUERY", e.cfg.LLM.EmbeddingDimensions)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	k := topK
	if k <= 0 {
		k = e.cfg.Retrieval.SimilarityTopK
	}
	chunks, err := retrieval.NewRetriever(retrieval.NewPostgresIndex(e.pool, embedder), k).Retrieve(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, c := range chunks {
		fmt.Fprintf(out, "%d. [%.3f] %s\n%s\n\n", i+1, c.Score, c.Source, c.Text)
	}
	return nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
