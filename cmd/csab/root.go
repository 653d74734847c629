package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hyperengineering/csab/internal/api"
	"github.com/hyperengineering/csab/internal/config"
	"github.com/hyperengineering/csab/internal/ingest"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:          "csab",
	Short:        "CSAB - company data ingestion service",
	RunE:         run,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(dataCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateEmbedding(); err != nil {
		return err
	}
	slog.Info("configuration loaded")

	// 3. Initialize logger
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))
	slog.Info("logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	// 4. Initialize store (migrations)
	db, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "driver", cfg.Database.Driver)

	// 5. Initialize embedding service and splitter
	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		db.Close()
		return err
	}
	slog.Info("embedder initialized", "provider", cfg.Embedding.Provider, "model", embedder.ModelName())

	splitter, err := newSplitter(cfg.Chunking)
	if err != nil {
		db.Close()
		return err
	}

	service := ingest.NewService(ingest.Deps{
		Admins:    db,
		Companies: db,
		Chunks:    db,
		Writer:    db,
		Embedder:  embedder,
		Splitter:  splitter,
	})

	// 6. Initialize HTTP router
	var limiter *api.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = api.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	}
	handler := api.NewHandler(service, db, embedder.ModelName(), Version, cfg.Server.MaxUploadBytes)
	router := api.NewRouter(handler, limiter, cfg.Server.TrustProxyHeaders)
	slog.Info("router initialized")

	// 7. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 8. Background workers
	var wg sync.WaitGroup
	if limiter != nil {
		startWorker(ctx, &wg, "rate-limit-pruner", func(ctx context.Context) {
			limiter.Run(ctx, time.Minute)
		})
	}

	// 9. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel() // Trigger shutdown on server failure
		}
	}()

	// 10. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 11. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 11a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 11b. Wait for workers to complete
	wg.Wait()

	// 11c. Close store
	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
