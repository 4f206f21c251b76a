// Package main provides the HTTP retrieval and generation server.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bull/paper-rag/internal/api"
	"github.com/bull/paper-rag/internal/config"
	"github.com/bull/paper-rag/internal/embedding"
	"github.com/bull/paper-rag/internal/expand"
	"github.com/bull/paper-rag/internal/generate"
	"github.com/bull/paper-rag/internal/retriever"
	"github.com/bull/paper-rag/internal/storage"
)

const shutdownGrace = 10 * time.Second

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Cancel on SIGTERM/SIGINT so the HTTP server can drain.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	store, err := storage.Open(ctx, storage.Options{
		Backend:     cfg.StoreBackend,
		Dimension:   cfg.EmbeddingDim,
		PostgresDSN: cfg.PostgresDSN(),
		QdrantHost:  cfg.QdrantHost,
		QdrantPort:  cfg.QdrantPort,
	})
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer store.Close()

	if err := storage.EnsureSchema(ctx, store); err != nil {
		log.Fatalf("failed to ensure store schema: %v", err)
	}

	client, err := embedding.NewClient()
	if err != nil {
		log.Fatalf("failed to create OpenAI client: %v", err)
	}
	embedder := embedding.NewEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingDim, 0)

	var expander retriever.Expander
	switch cfg.QueryExpansion {
	case "static":
		expander = expand.Static{}
	case "llm":
		expander = expand.NewLLM(client.Client(), cfg.GenerationModel, expand.DefaultVariants, logger)
	}

	ret := retriever.New(embedder, store, expander, logger)
	gen := generate.New(
		generate.NewOpenAIBackend(client.Client()),
		cfg.GenerationModel,
		generate.Options{
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
		},
		logger,
	)

	server := api.NewServer(api.ServerConfig{
		Port:           cfg.HTTPPort,
		RequestTimeout: cfg.RequestTimeout,
		Retriever:      ret,
		Generator:      gen,
		Store:          store,
		Logger:         logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", "error", err)
		}
	}
}
