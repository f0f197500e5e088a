// Ragd serves similarity search over an ingested document collection.
//
// It embeds each query with the configured embedding provider, looks up the
// nearest chunks in the persisted vector store and returns their text.
//
// Configuration is read from ~/.config/ragd/config.yaml (optional), then
// environment variables, then defaults. A .env file in the working directory
// is loaded first so OPENAI_API_KEY can live there.
//
// Usage:
//
//	# Start server with defaults (0.0.0.0:8001, ../chroma_langchain_dbV3)
//	ragd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9000 VECTORSTORE_PATH=/data/chroma ragd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	httpserver "github.com/fyrsmithlabs/ragd/internal/http"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/rag"
	"github.com/fyrsmithlabs/ragd/internal/telemetry"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/ragd/config.yaml)")
	flag.Usage = func() {
		printUsage(flag.CommandLine.Output())
		flag.PrintDefaults()
	}
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
			printUsage(os.Stderr)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  ragd [-config path]   Start the query service\n")
	fmt.Fprintf(w, "  ragd version          Show version information\n")
	fmt.Fprintf(w, "\nDefaults: listen 0.0.0.0:8001, store %s, collection %s\n",
		config.DefaultStorePath, config.DefaultCollection)
}

func printVersion() {
	fmt.Printf("ragd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the query service and blocks until ctx is canceled, then shuts
// the HTTP server down within the configured timeout. The embedding provider
// and the store are created once here and shared by every request.
func run(ctx context.Context, configPath string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Observability, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logCfg, err := logging.FromConfig(cfg.Logging)
	if err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "starting ragd",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("embeddings_provider", cfg.Embeddings.Provider),
		zap.String("embeddings_model", cfg.Embeddings.Model),
		zap.String("vectorstore_provider", cfg.VectorStore.Provider),
		zap.String("collection", cfg.VectorStore.Collection),
		zap.Bool("telemetry", tel.IsEnabled()),
	)
	if !cfg.Embeddings.APIKey.IsSet() && cfg.Embeddings.Provider == "openai" {
		logger.Warn(ctx, "no embeddings API key configured; searches will fail until OPENAI_API_KEY is set")
	}

	store, err := vectorstore.NewStore(cfg.VectorStore, logger.Underlying())
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer store.Close()

	embedder, err := embeddings.NewProvider(cfg.Embeddings, logger.Underlying())
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}
	defer embedder.Close()

	logCollection(ctx, logger, store, cfg.VectorStore.Collection)

	svc, err := rag.NewService(embedder, store, cfg.VectorStore.Collection, logger)
	if err != nil {
		return fmt.Errorf("failed to create search service: %w", err)
	}

	srv, err := httpserver.NewServer(svc, svc, logger, &httpserver.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// logCollection reports how many chunks are available. A missing collection
// is not fatal; searches return no results until ingestion runs.
func logCollection(ctx context.Context, logger *logging.Logger, store vectorstore.Store, collection string) {
	info, err := store.GetCollectionInfo(ctx, collection)
	switch {
	case errors.Is(err, vectorstore.ErrCollectionNotFound):
		logger.Warn(ctx, "collection not found; run `ragctl ingest` to populate it",
			zap.String("collection", collection))
	case err != nil:
		logger.Warn(ctx, "failed to inspect collection", zap.String("collection", collection), zap.Error(err))
	default:
		logger.Info(ctx, "collection ready",
			zap.String("collection", collection),
			zap.Int("chunks", info.PointCount))
	}
}
