package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/hyperengineering/csab/internal/chunking"
	"github.com/hyperengineering/csab/internal/config"
	"github.com/hyperengineering/csab/internal/embedding"
	"github.com/hyperengineering/csab/internal/ingest"
	"github.com/hyperengineering/csab/internal/store"
)

// defaultOllamaURL is used when the ollama provider has no base URL.
const defaultOllamaURL = "http://localhost:11434"

// openStore opens the configured storage backend and runs its migrations.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		s, err := store.NewPostgresStore(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// newEmbedder builds the configured embedding provider. Tests replace it.
var newEmbedder = func(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return embedding.NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	case config.ProviderOllama:
		serverURL := cfg.BaseURL
		if serverURL == "" {
			serverURL = defaultOllamaURL
		}
		o, err := embedding.NewOllama(serverURL, cfg.Model)
		if err != nil {
			return nil, err
		}
		return o, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// newSplitter builds the token splitter. Tests replace it.
var newSplitter = func(cfg config.ChunkingConfig) (ingest.Splitter, error) {
	tokenizer, err := chunking.NewTiktokenTokenizer()
	if err != nil {
		return nil, err
	}
	splitter, err := chunking.NewSplitter(tokenizer, cfg.MaxTokens, cfg.Overlap)
	if err != nil {
		return nil, err
	}
	return splitter, nil
}

// newLogger returns a slog logger for the configured level and format.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
