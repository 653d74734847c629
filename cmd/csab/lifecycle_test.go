package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperengineering/csab/internal/api"
	"github.com/hyperengineering/csab/internal/config"
)

// logCapture captures slog output for testing
type logCapture struct {
	mu      sync.Mutex
	entries []map[string]any
}

func (c *logCapture) handler() slog.Handler {
	return slog.NewJSONHandler(c, &slog.HandlerOptions{Level: slog.LevelDebug})
}

func (c *logCapture) Write(p []byte) (n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var entry map[string]any
	if err := json.Unmarshal(p, &entry); err == nil {
		c.entries = append(c.entries, entry)
	}
	return len(p), nil
}

func (c *logCapture) hasMessage(msg string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if m, ok := e["msg"].(string); ok && m == msg {
			return true
		}
	}
	return false
}

func TestStartWorker_LaunchesGoroutineAndTracksCompletion(t *testing.T) {
	capture := &logCapture{}
	oldDefault := slog.Default()
	slog.SetDefault(slog.New(capture.handler()))
	defer slog.SetDefault(oldDefault)

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	workerRan := atomic.Bool{}
	startWorker(ctx, &wg, "test-worker", func(ctx context.Context) {
		workerRan.Store(true)
		close(started)
		<-ctx.Done()
	})

	<-started
	cancel()
	wg.Wait()

	if !workerRan.Load() {
		t.Error("worker function was not called")
	}
	if !capture.hasMessage("worker started") {
		t.Error("expected 'worker started' log message")
	}
	if !capture.hasMessage("worker stopped") {
		t.Error("expected 'worker stopped' log message")
	}
}

func TestStartWorker_WaitGroupCoversCleanup(t *testing.T) {
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	completed := atomic.Bool{}
	startWorker(ctx, &wg, "slow-worker", func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		completed.Store(true)
	})

	cancel()
	wg.Wait()

	if !completed.Load() {
		t.Error("wg.Wait() returned before worker completed")
	}
}

func TestStartWorker_LogsWorkerName(t *testing.T) {
	capture := &logCapture{}
	oldDefault := slog.Default()
	slog.SetDefault(slog.New(capture.handler()))
	defer slog.SetDefault(oldDefault)

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())
	startWorker(ctx, &wg, "rate-limit-pruner", func(ctx context.Context) {
		<-ctx.Done()
	})
	cancel()
	wg.Wait()

	capture.mu.Lock()
	defer capture.mu.Unlock()
	for _, entry := range capture.entries {
		if entry["worker"] == "rate-limit-pruner" {
			return
		}
	}
	t.Error("expected log entry with worker='rate-limit-pruner' attribute")
}

func TestRateLimitPrunerStopsOnCancel(t *testing.T) {
	limiter := api.NewRateLimiter(60, 5)
	limiter.Allow("10.0.0.1")

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())
	startWorker(ctx, &wg, "rate-limit-pruner", func(ctx context.Context) {
		limiter.Run(ctx, time.Millisecond)
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruner did not stop after cancellation")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(config.LogConfig{Level: "info", Format: "json"}, &buf).Info("hello", "component", "test")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json format did not produce JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "hello" {
		t.Errorf("msg = %v, want hello", entry["msg"])
	}

	buf.Reset()
	newLogger(config.LogConfig{Level: "info", Format: "text"}, &buf).Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text format output = %q, want msg=hello", buf.String())
	}
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn not logged: %q", buf.String())
	}
}

func TestOpenStore_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "csab.db")
	db, err := openStore(context.Background(), config.DatabaseConfig{Driver: config.DriverSQLite, Path: path})
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer db.Close()

	stats, err := db.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.CompanyCount != 0 {
		t.Errorf("CompanyCount = %d, want 0", stats.CompanyCount)
	}
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	db, err := openStore(context.Background(), config.DatabaseConfig{Driver: "mysql"})
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if db != nil {
		t.Error("expected nil store on error")
	}
}

func TestNewEmbedder_Providers(t *testing.T) {
	openai, err := newEmbedder(config.EmbeddingConfig{Provider: config.ProviderOpenAI, APIKey: "sk-test", Model: "text-embedding-3-small"})
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	if openai.ModelName() != "text-embedding-3-small" {
		t.Errorf("openai model = %q", openai.ModelName())
	}

	ollama, err := newEmbedder(config.EmbeddingConfig{Provider: config.ProviderOllama, Model: "nomic-embed-text"})
	if err != nil {
		t.Fatalf("ollama: %v", err)
	}
	if ollama.ModelName() != "nomic-embed-text" {
		t.Errorf("ollama model = %q", ollama.ModelName())
	}

	if _, err := newEmbedder(config.EmbeddingConfig{Provider: "cohere"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}
