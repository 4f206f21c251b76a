// Package main provides the ingestion CLI for the paper retrieval corpus.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/paper-rag/internal/chunker"
	"github.com/bull/paper-rag/internal/config"
	"github.com/bull/paper-rag/internal/embedding"
	"github.com/bull/paper-rag/internal/ingest"
	"github.com/bull/paper-rag/internal/source"
	"github.com/bull/paper-rag/internal/source/arxiv"
	"github.com/bull/paper-rag/internal/source/githubdocs"
	"github.com/bull/paper-rag/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Corpus ingestion tool",
	Long: `CLI tool for populating and maintaining the vector store.

Environment variables:
  STORE_BACKEND   Store backend: postgres, qdrant or memory (default: postgres)
  POSTGRES_*      Postgres connection settings for the postgres backend
  QDRANT_HOST     Qdrant hostname (default: localhost)
  QDRANT_PORT     Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY  OpenAI API key for embeddings (required for ingestion)
  GITHUB_TOKEN    GitHub token for higher rate limits (optional)`,
}

var (
	arxivQuery      string
	arxivMaxResults int

	githubOwner string
	githubRepo  string
	githubPath  string
)

var arxivCmd = &cobra.Command{
	Use:   "arxiv",
	Short: "Ingest paper abstracts from the arXiv API",
	RunE:  runArxiv,
}

var githubCmd = &cobra.Command{
	Use:   "github",
	Short: "Ingest markdown documentation from a GitHub repository",
	RunE:  runGithub,
}

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Collapse duplicate chunks, keeping the lowest id of each group",
	RunE:  runDedup,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the store schema or collection",
	RunE:  runInit,
}

func init() {
	arxivCmd.Flags().StringVar(&arxivQuery, "query", "cat:cs.CL", "arXiv search query")
	arxivCmd.Flags().IntVar(&arxivMaxResults, "max-results", 100, "maximum papers to fetch")

	githubCmd.Flags().StringVar(&githubOwner, "owner", "", "repository owner")
	githubCmd.Flags().StringVar(&githubRepo, "repo", "", "repository name")
	githubCmd.Flags().StringVar(&githubPath, "path", "docs", "path to the docs tree")
	githubCmd.MarkFlagRequired("owner")
	githubCmd.MarkFlagRequired("repo")

	rootCmd.AddCommand(arxivCmd, githubCmd, dedupCmd, initCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runArxiv(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	return runIngestion(cmd.Context(), cfg, arxiv.NewClient(cfg.ArxivAPIURL, arxivQuery, arxivMaxResults))
}

func runGithub(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	client, err := githubdocs.NewClient(cmd.Context())
	if err != nil {
		return fmt.Errorf("create GitHub client: %w", err)
	}
	return runIngestion(cmd.Context(), cfg, githubdocs.NewFetcher(client, githubOwner, githubRepo, githubPath))
}

func runIngestion(ctx context.Context, cfg *config.Config, src source.Source) error {
	start := time.Now()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := storage.EnsureSchema(ctx, store); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	client, err := embedding.NewClient()
	if err != nil {
		return fmt.Errorf("create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingDim, 0)

	fmt.Println("Fetching documents...")
	docs, err := src.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch documents: %w", err)
	}
	fmt.Printf("Fetched %d documents\n", len(docs))

	pipeline := ingest.NewPipeline(chunker.New(chunker.DefaultMaxWords, chunker.DefaultOverlapWords), embedder, store, slog.Default())

	summary, err := pipeline.Ingest(ctx, docs)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Ingestion complete!")
	fmt.Printf("  Documents: %d/%d\n", summary.TotalDocs-len(summary.Failed)-summary.Skipped, summary.TotalDocs)
	fmt.Printf("  Chunks: %d\n", summary.Inserted)
	fmt.Printf("  Duplicates removed: %d\n", summary.Removed)
	fmt.Printf("  Duration: %s\n", summary.Duration.Round(time.Second))

	if len(summary.Failed) > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, failed := range summary.Failed {
			fmt.Printf("  - %s: %s\n", failed.Title, failed.Reason)
		}
	}

	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Second))
	return nil
}

func runDedup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	removed, err := store.DeleteDuplicates(cmd.Context())
	if err != nil {
		return fmt.Errorf("delete duplicates: %w", err)
	}
	fmt.Printf("Removed %d duplicate chunks\n", removed)
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := storage.EnsureSchema(cmd.Context(), store); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	fmt.Printf("Initialized %s store\n", cfg.StoreBackend)
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	fmt.Printf("Connecting to %s store...\n", cfg.StoreBackend)
	store, err := storage.Open(ctx, storage.Options{
		Backend:     cfg.StoreBackend,
		Dimension:   cfg.EmbeddingDim,
		PostgresDSN: cfg.PostgresDSN(),
		QdrantHost:  cfg.QdrantHost,
		QdrantPort:  cfg.QdrantPort,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}

	if err := store.Health(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("store health check failed: %w", err)
	}
	return store, nil
}
