package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/licenseiq/licenseiq/internal/api"
	"github.com/licenseiq/licenseiq/internal/archive"
	"github.com/licenseiq/licenseiq/internal/config"
	"github.com/licenseiq/licenseiq/internal/llm"
	"github.com/licenseiq/licenseiq/internal/store"
	"github.com/licenseiq/licenseiq/internal/synthesis"
	"github.com/licenseiq/licenseiq/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:          "licenseiq",
	Short:        "LicenseIQ - Royalty Rule Synthesis Service",
	RunE:         run,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server (default)",
	Args:  cobra.NoArgs,
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(synthesizeCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(mappingsCmd)
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

	// 3. Initialize logger
	slog.SetDefault(newLogger(os.Stdout, cfg.Log))
	slog.Info("logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	// 4. Initialize store (migrations run on open)
	db, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "driver", cfg.Database.Driver)

	// 5. Initialize synthesis pipeline
	svc, err := newService(cfg, db)
	if err != nil {
		db.Close()
		return err
	}
	slog.Info("synthesis initialized", "model", svc.Model())

	// 6. Initialize HTTP router
	handler := api.NewHandler(db, svc, cfg.Auth.APIKey, Version)
	router := api.NewRouter(handler, cfg.Server.CORSAllowedOrigins)

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
	statsWorker := worker.NewStatsWorker(db, time.Duration(cfg.Server.StatsInterval))
	startWorker(ctx, &wg, "store-stats", statsWorker.Run)

	// 9. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// Any error other than ErrServerClosed is a real failure and triggers shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
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

	// 11a. Stop HTTP server (drains in-flight synthesis runs)
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

// newService wires the completion client, run archive, and store into the
// synthesis pipeline.
func newService(cfg *config.Config, db *store.SQLStore) (*synthesis.Service, error) {
	completer := llm.NewOpenAI(llm.Options{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		Timeout:    time.Duration(cfg.LLM.Timeout),
		MaxRetries: cfg.LLM.MaxRetries,
	})

	archiver, err := archive.New(cfg.Archive)
	if err != nil {
		return nil, err
	}
	if cfg.Archive.Bucket != "" {
		slog.Info("run archive enabled", "bucket", cfg.Archive.Bucket)
	}

	return synthesis.NewService(completer, db, archiver, synthesis.ConfigFromSettings(cfg.Synthesis)), nil
}

// newLogger builds the process logger from the log config.
// Unknown formats fall back to JSON.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
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
