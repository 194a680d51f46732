// Command milvus-schema creates the vector collection for a knowledge base
// ahead of the first ingestion and prints the resulting schema.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"mathchat-backend/config"
	"mathchat-backend/service/embedding"
	"mathchat-backend/service/vectorstore"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	collection := flag.String("collection", "", "collection to create")
	flag.Parse()

	if *collection == "" {
		slog.Error("the -collection flag is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	embedder, err := embedding.NewProvider(ctx, cfg.Embedding)
	if err != nil {
		slog.Error("failed to initialize embedding provider", "err", err)
		os.Exit(1)
	}

	store, err := vectorstore.Connect(ctx, cfg.Milvus.Endpoint, cfg.Milvus.APIKey, embedder)
	if err != nil {
		slog.Error("failed to connect to vector store", "err", err)
		os.Exit(1)
	}

	if err := store.EnsureCollection(ctx, *collection); err != nil {
		slog.Error("failed to create collection", "collection", *collection, "err", err)
		os.Exit(1)
	}

	fields, err := store.DescribeSchema(ctx, *collection)
	if err != nil {
		slog.Error("failed to describe collection", "collection", *collection, "err", err)
		os.Exit(1)
	}

	for _, f := range fields {
		slog.Info("field", "name", f.Name, "type", f.Type)
	}
	slog.Info("collection ready", "collection", *collection)
}
