package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"time"

	"mathchat-backend/config"
	"mathchat-backend/controller"
	"mathchat-backend/dao"
	"mathchat-backend/router"
	"mathchat-backend/service/embedding"
	"mathchat-backend/service/ingest"
	"mathchat-backend/service/llm"
	"mathchat-backend/service/mq"
	"mathchat-backend/service/rag"
	"mathchat-backend/service/splitter"
	"mathchat-backend/service/storage"
	"mathchat-backend/service/vectorstore"
)

const startupTimeout = 2 * time.Minute

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	setupLogger(cfg.Server.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	store, err := dao.Open(cfg.Database.DSN())
	if err != nil {
		slog.Error("failed to open database", "err", err)
		os.Exit(1)
	}

	embedder, err := embedding.NewProvider(ctx, cfg.Embedding)
	if err != nil {
		slog.Error("failed to initialize embedding provider", "err", err)
		os.Exit(1)
	}

	vectors, err := vectorstore.Connect(ctx, cfg.Milvus.Endpoint, cfg.Milvus.APIKey, embedder)
	if err != nil {
		slog.Error("failed to connect to vector store", "err", err)
		os.Exit(1)
	}

	files, err := storage.New(cfg.Storage)
	if err != nil {
		slog.Error("failed to initialize storage", "err", err)
		os.Exit(1)
	}

	registry := llm.NewRegistry(cfg.Model)
	ragSvc := rag.NewService(vectors, registry)

	chunker := splitter.NewMathAware(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	pipeline := ingest.NewPipeline(store, vectors, files, chunker)

	var broker *mq.Broker
	var publisher ingest.Publisher
	if cfg.MQ.Enabled {
		broker, err = mq.New(cfg.MQ)
		if err != nil {
			slog.Error("failed to initialize message queue", "err", err)
			os.Exit(1)
		}
		publisher = broker
	}

	dispatcher, err := ingest.NewDispatcher(pipeline, publisher)
	if err != nil {
		slog.Error("failed to initialize ingestion dispatcher", "err", err)
		os.Exit(1)
	}
	defer dispatcher.Shutdown()

	if broker != nil {
		if err := broker.Start(dispatcher.Handle); err != nil {
			slog.Error("failed to start message queue", "err", err)
			os.Exit(1)
		}
		defer broker.Shutdown()
	}

	handler := controller.NewHandler(store, vectors, ragSvc, dispatcher, files)
	engine := router.Register(handler, cfg.JWT.SecretKey)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	slog.Info("server starting", "addr", addr)
	if err := engine.Run(addr); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func setupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}
